package recorder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	"github.com/tidemill/dedupe/pkg/dedupe/infrastructure/repository/inmemory"
	dedupetest "github.com/tidemill/dedupe/pkg/dedupe/test"
)

func group(master string, phase model.MergePhase, mergeErr error, members ...string) *model.DuplicateGroup {
	return &model.DuplicateGroup{
		Fingerprint: "fp-" + master,
		MemberIDs:   members,
		MasterID:    master,
		MatchScore:  1.0,
		Phase:       phase,
		MergeErr:    mergeErr,
	}
}

func TestStartRun_PersistsRunningResult(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewRunRepository()
	rec := NewRunRecorder(repo)

	cfg := dedupetest.NewRunConfiguration("Account")
	result, err := rec.StartRun(ctx, cfg)
	require.NoError(t, err)

	stored, err := repo.FindRunResultByID(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, stored.Status)
	assert.Equal(t, "Account", stored.ObjectType)
	assert.NotEmpty(t, stored.BatchJobID)
}

func TestRecordPartition_AccumulatesProcessedCount(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewRunRepository()
	rec := NewRunRecorder(repo)

	result, err := rec.StartRun(ctx, dedupetest.NewRunConfiguration("Account"))
	require.NoError(t, err)

	require.NoError(t, rec.RecordPartition(ctx, result, 200))
	require.NoError(t, rec.RecordPartition(ctx, result, 137))

	stored, err := repo.FindRunResultByID(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, 337, stored.RecordsProcessed)
}

func TestFinalizeRun_ComputesMergeArithmetic(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewRunRepository()
	rec := NewRunRecorder(repo)

	result, err := rec.StartRun(ctx, dedupetest.NewRunConfiguration("Account"))
	require.NoError(t, err)
	require.NoError(t, rec.RecordPartition(ctx, result, 6))

	groups := []*model.DuplicateGroup{
		group("a", model.MergePhaseMerged, nil, "a", "b", "c"),
		group("d", model.MergePhaseMerged, nil, "d", "e"),
	}
	require.NoError(t, rec.FinalizeRun(ctx, result, groups, nil))

	stored, err := repo.FindRunResultByID(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, stored.Status)
	assert.Equal(t, 6, stored.RecordsProcessed)
	assert.Equal(t, 3, stored.DuplicatesFound)
	assert.Equal(t, 3, stored.RecordsMerged)
	assert.InDelta(t, 1.0, stored.AverageMatchScore, 0.0001)
	assert.GreaterOrEqual(t, stored.ProcessingTimeMs, int64(0))
	require.NotNil(t, stored.EndTime)

	count, err := repo.CountGroupDetails(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestFinalizeRun_GroupFailureYieldsCompletedWithErrors(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewRunRepository()
	rec := NewRunRecorder(repo)

	result, err := rec.StartRun(ctx, dedupetest.NewRunConfiguration("Account"))
	require.NoError(t, err)

	groups := []*model.DuplicateGroup{
		group("a", model.MergePhaseMerged, nil, "a", "b"),
		group("c", model.MergePhaseFailed, errors.New("reparenting rejected"), "c", "d"),
	}
	require.NoError(t, rec.FinalizeRun(ctx, result, groups, nil))

	stored, err := repo.FindRunResultByID(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompletedWithErrors, stored.Status)
	assert.Equal(t, 2, stored.DuplicatesFound)
	assert.Equal(t, 1, stored.RecordsMerged, "no credit for the failed group")
	assert.NotEmpty(t, stored.ErrorMessage)

	details, err := repo.FindGroupDetails(ctx, result.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, details, 2)
	var failedDetail *model.GroupDetail
	for _, d := range details {
		if d.ErrorMessage != "" {
			failedDetail = d
		}
	}
	require.NotNil(t, failedDetail, "the failed group's detail carries its error")
	assert.Equal(t, "c", failedDetail.MasterRecordID)
}

func TestFinalizeRun_DryRunKeepsMergedAtZero(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewRunRepository()
	rec := NewRunRecorder(repo)

	cfg := dedupetest.NewRunConfiguration("Account")
	cfg.DryRun = true
	result, err := rec.StartRun(ctx, cfg)
	require.NoError(t, err)

	// Dry-run groups never leave PENDING.
	groups := []*model.DuplicateGroup{
		group("a", model.MergePhasePending, nil, "a", "b"),
	}
	require.NoError(t, rec.FinalizeRun(ctx, result, groups, nil))

	stored, err := repo.FindRunResultByID(ctx, result.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDryRun)
	assert.Equal(t, model.RunStatusCompleted, stored.Status)
	assert.Equal(t, 1, stored.DuplicatesFound)
	assert.Equal(t, 0, stored.RecordsMerged)

	count, err := repo.CountGroupDetails(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "dry-run groups are still recorded")
}

func TestFinalizeRun_TerminalStatusSetOnlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewRunRepository()
	rec := NewRunRecorder(repo)

	result, err := rec.StartRun(ctx, dedupetest.NewRunConfiguration("Account"))
	require.NoError(t, err)

	require.NoError(t, rec.FinalizeRun(ctx, result, nil, nil))
	assert.Equal(t, model.RunStatusCompleted, result.Status)

	// A second finalization must not overwrite the terminal status.
	require.NoError(t, rec.FinalizeRun(ctx, result, nil, errors.New("late failure")))
	stored, err := repo.FindRunResultByID(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, stored.Status)
}

func TestFailRun_MarksFailedWithMessage(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewRunRepository()
	rec := NewRunRecorder(repo)

	result, err := rec.StartRun(ctx, dedupetest.NewRunConfiguration("Account"))
	require.NoError(t, err)

	require.NoError(t, rec.FailRun(ctx, result, errors.New("scan interrupted")))

	stored, err := repo.FindRunResultByID(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "scan interrupted")
}
