package merge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	"github.com/tidemill/dedupe/pkg/dedupe/core/port"
	dedupetest "github.com/tidemill/dedupe/pkg/dedupe/test"
)

const objectType = "Account"

func newFixture() (*dedupetest.FakeRecordStore, *Executor) {
	store := dedupetest.NewFakeRecordStore()
	introspector := dedupetest.NewStaticIntrospector(map[string][]port.Relationship{
		objectType: {
			{RelationshipField: "account_id", ChildObjectType: "Contact"},
		},
	})
	return store, NewExecutor(store, introspector, nil)
}

func pendingGroup(master string, members ...string) *model.DuplicateGroup {
	return &model.DuplicateGroup{
		Fingerprint: "fp-" + master,
		MemberIDs:   members,
		MasterID:    master,
		MatchScore:  1.0,
		Phase:       model.MergePhasePending,
	}
}

func TestExecuteAll_MergesAndReparents(t *testing.T) {
	ctx := context.Background()
	store, exec := newFixture()

	store.AddRecord(objectType, dedupetest.NewAccount("a", 0, "ACME Corp", "", ""))
	store.AddRecord(objectType, dedupetest.NewAccount("b", time.Hour, "ACME Corp", "", ""))
	store.AddChild("Contact", "contact-1", "account_id", "b")

	cfg := dedupetest.NewRunConfiguration(objectType)
	result := model.NewRunResult(cfg)
	g := pendingGroup("a", "a", "b")

	require.NoError(t, exec.ExecuteAll(ctx, cfg, result, []*model.DuplicateGroup{g}))

	assert.Equal(t, model.MergePhaseMerged, g.Phase)
	assert.True(t, store.Has(objectType, "a"), "master survives")
	assert.False(t, store.Has(objectType, "b"), "duplicate deleted")
	assert.Equal(t, "a", store.ParentOf("Contact", "contact-1", "account_id"), "child reparented to master")
}

func TestExecuteAll_DryRunTouchesNothing(t *testing.T) {
	ctx := context.Background()
	store, exec := newFixture()

	store.AddRecord(objectType, dedupetest.NewAccount("a", 0, "ACME Corp", "", ""))
	store.AddRecord(objectType, dedupetest.NewAccount("b", time.Hour, "ACME Corp", "", ""))

	cfg := dedupetest.NewRunConfiguration(objectType)
	cfg.DryRun = true
	result := model.NewRunResult(cfg)
	g := pendingGroup("a", "a", "b")

	require.NoError(t, exec.ExecuteAll(ctx, cfg, result, []*model.DuplicateGroup{g}))

	assert.Equal(t, model.MergePhasePending, g.Phase)
	assert.True(t, store.Has(objectType, "a"))
	assert.True(t, store.Has(objectType, "b"))
	assert.Empty(t, store.MergedGroups)
}

func TestExecuteAll_FailureIsolatedPerGroup(t *testing.T) {
	ctx := context.Background()
	store, exec := newFixture()

	store.AddRecord(objectType, dedupetest.NewAccount("a", 0, "ACME Corp", "", ""))
	store.AddRecord(objectType, dedupetest.NewAccount("b", time.Hour, "ACME Corp", "", ""))
	store.AddRecord(objectType, dedupetest.NewAccount("c", 0, "Globex", "", ""))
	store.AddRecord(objectType, dedupetest.NewAccount("d", time.Hour, "Globex", "", ""))

	store.FailMergeForMaster["a"] = errors.New("row locked")

	cfg := dedupetest.NewRunConfiguration(objectType)
	result := model.NewRunResult(cfg)
	failing := pendingGroup("a", "a", "b")
	healthy := pendingGroup("c", "c", "d")

	err := exec.ExecuteAll(ctx, cfg, result, []*model.DuplicateGroup{failing, healthy})
	require.Error(t, err)

	assert.Equal(t, model.MergePhaseFailed, failing.Phase)
	require.Error(t, failing.MergeErr)
	assert.True(t, store.Has(objectType, "b"), "failed group left intact")

	assert.Equal(t, model.MergePhaseMerged, healthy.Phase)
	assert.False(t, store.Has(objectType, "d"))
}

func TestExecuteAll_CancelledContextStopsBeforeNextGroup(t *testing.T) {
	store, exec := newFixture()

	store.AddRecord(objectType, dedupetest.NewAccount("a", 0, "ACME Corp", "", ""))
	store.AddRecord(objectType, dedupetest.NewAccount("b", time.Hour, "ACME Corp", "", ""))

	cfg := dedupetest.NewRunConfiguration(objectType)
	result := model.NewRunResult(cfg)
	g := pendingGroup("a", "a", "b")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := exec.ExecuteAll(ctx, cfg, result, []*model.DuplicateGroup{g})
	require.Error(t, err)
	assert.Equal(t, model.MergePhasePending, g.Phase)
	assert.True(t, store.Has(objectType, "b"))
}
