package accumulator

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
)

const stripeCount = 32

// bucketStripe is one lock-guarded shard of a run's buckets.
type bucketStripe struct {
	mu      sync.Mutex
	buckets map[string][]string
}

// runBuckets holds one run's accumulated state, sharded by fingerprint hash
// so concurrent partition workers rarely contend.
type runBuckets struct {
	stripes [stripeCount]*bucketStripe
}

func newRunBuckets() *runBuckets {
	rb := &runBuckets{}
	for i := range rb.stripes {
		rb.stripes[i] = &bucketStripe{buckets: make(map[string][]string)}
	}
	return rb
}

func (rb *runBuckets) stripeFor(fingerprint string) *bucketStripe {
	h := fnv.New32a()
	h.Write([]byte(fingerprint))
	return rb.stripes[h.Sum32()%stripeCount]
}

// MemoryAccumulator keeps fingerprint buckets in process memory. It is the
// accumulator of choice for single-process runs and tests; state does not
// survive a restart.
type MemoryAccumulator struct {
	mu   sync.RWMutex
	runs map[string]*runBuckets
}

// NewMemoryAccumulator creates an empty MemoryAccumulator.
func NewMemoryAccumulator() *MemoryAccumulator {
	return &MemoryAccumulator{runs: make(map[string]*runBuckets)}
}

var _ Accumulator = (*MemoryAccumulator)(nil)

// Absorb merges one partition's observations into the run's buckets.
func (a *MemoryAccumulator) Absorb(ctx context.Context, runResultID string, observations []Observation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rb := a.bucketsFor(runResultID)
	for fp, ids := range groupByFingerprint(observations) {
		stripe := rb.stripeFor(fp)
		stripe.mu.Lock()
		stripe.buckets[fp] = mergeMembers(stripe.buckets[fp], ids)
		stripe.mu.Unlock()
	}
	return nil
}

// DuplicateBuckets returns every bucket of the run with two or more members,
// ordered by fingerprint for deterministic iteration.
func (a *MemoryAccumulator) DuplicateBuckets(ctx context.Context, runResultID string) ([]*model.FingerprintBucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	rb, ok := a.runs[runResultID]
	a.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var result []*model.FingerprintBucket
	now := time.Now()
	for _, stripe := range rb.stripes {
		stripe.mu.Lock()
		for fp, members := range stripe.buckets {
			if len(members) < 2 {
				continue
			}
			ids := make(model.IDList, len(members))
			copy(ids, members)
			result = append(result, &model.FingerprintBucket{
				RunResultID: runResultID,
				Fingerprint: fp,
				MemberIDs:   ids,
				LastUpdated: now,
			})
		}
		stripe.mu.Unlock()
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Fingerprint < result[j].Fingerprint })
	return result, nil
}

// Clear discards all accumulated state of the run.
func (a *MemoryAccumulator) Clear(ctx context.Context, runResultID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	delete(a.runs, runResultID)
	a.mu.Unlock()
	return nil
}

// bucketsFor returns the run's bucket shards, creating them on first use.
func (a *MemoryAccumulator) bucketsFor(runResultID string) *runBuckets {
	a.mu.RLock()
	rb, ok := a.runs[runResultID]
	a.mu.RUnlock()
	if ok {
		return rb
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if rb, ok = a.runs[runResultID]; ok {
		return rb
	}
	rb = newRunBuckets()
	a.runs[runResultID] = rb
	return rb
}
