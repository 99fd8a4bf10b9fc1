package accumulator

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func obs(recordID, fingerprint string) Observation {
	return Observation{RecordID: recordID, Fingerprint: fingerprint}
}

func TestMemoryAccumulator_PartitionOrderIndependent(t *testing.T) {
	ctx := context.Background()

	p1 := []Observation{obs("r1", "fp-a"), obs("r2", "fp-b")}
	p2 := []Observation{obs("r3", "fp-a"), obs("r4", "fp-c")}
	p3 := []Observation{obs("r5", "fp-b"), obs("r6", "fp-a")}

	collect := func(partitions ...[]Observation) map[string][]string {
		a := NewMemoryAccumulator()
		for _, p := range partitions {
			require.NoError(t, a.Absorb(ctx, "run-1", p))
		}
		buckets, err := a.DuplicateBuckets(ctx, "run-1")
		require.NoError(t, err)
		got := make(map[string][]string)
		for _, b := range buckets {
			members := append([]string(nil), b.MemberIDs...)
			got[b.Fingerprint] = members
		}
		return got
	}

	forward := collect(p1, p2, p3)
	reversed := collect(p3, p2, p1)

	assert.ElementsMatch(t, forward["fp-a"], reversed["fp-a"])
	assert.ElementsMatch(t, forward["fp-b"], reversed["fp-b"])
	assert.ElementsMatch(t, []string{"r1", "r3", "r6"}, forward["fp-a"])
	assert.ElementsMatch(t, []string{"r2", "r5"}, forward["fp-b"])

	// fp-c has a single member and must not surface as a duplicate bucket.
	_, ok := forward["fp-c"]
	assert.False(t, ok)
}

func TestMemoryAccumulator_BlankFingerprintIgnored(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryAccumulator()

	require.NoError(t, a.Absorb(ctx, "run-1", []Observation{obs("r1", ""), obs("r2", "")}))

	buckets, err := a.DuplicateBuckets(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, buckets)
}

func TestMemoryAccumulator_RepeatedMemberDeduplicated(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryAccumulator()

	require.NoError(t, a.Absorb(ctx, "run-1", []Observation{obs("r1", "fp"), obs("r2", "fp")}))
	require.NoError(t, a.Absorb(ctx, "run-1", []Observation{obs("r1", "fp")}))

	buckets, err := a.DuplicateBuckets(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.ElementsMatch(t, []string{"r1", "r2"}, []string(buckets[0].MemberIDs))
}

func TestMemoryAccumulator_ConcurrentAbsorb(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryAccumulator()

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := fmt.Sprintf("r-%d-%d", w, i)
				_ = a.Absorb(ctx, "run-1", []Observation{obs(id, "shared-fp")})
			}
		}(w)
	}
	wg.Wait()

	buckets, err := a.DuplicateBuckets(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Len(t, buckets[0].MemberIDs, workers*perWorker)
}

func TestMemoryAccumulator_RunsAreDisjoint(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryAccumulator()

	require.NoError(t, a.Absorb(ctx, "run-1", []Observation{obs("r1", "fp"), obs("r2", "fp")}))
	require.NoError(t, a.Absorb(ctx, "run-2", []Observation{obs("r3", "fp")}))

	buckets1, err := a.DuplicateBuckets(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, buckets1, 1)
	assert.ElementsMatch(t, []string{"r1", "r2"}, []string(buckets1[0].MemberIDs))

	buckets2, err := a.DuplicateBuckets(ctx, "run-2")
	require.NoError(t, err)
	assert.Empty(t, buckets2)
}

func TestMemoryAccumulator_Clear(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryAccumulator()

	require.NoError(t, a.Absorb(ctx, "run-1", []Observation{obs("r1", "fp"), obs("r2", "fp")}))
	require.NoError(t, a.Clear(ctx, "run-1"))

	buckets, err := a.DuplicateBuckets(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, buckets)
}
