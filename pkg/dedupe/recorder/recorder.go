// Package recorder owns all writes of run bookkeeping. The RunRecorder is
// the single writer of RunResult and GroupDetail rows; no other component
// mutates a RunResult, and a RunResult is never touched again once its
// terminal status is set.
package recorder

import (
	"context"
	"time"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/repository"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/exception"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/logger"
)

const moduleName = "recorder"

// RunRecorder persists the lifecycle of a run.
type RunRecorder struct {
	repo repository.RunRepository
}

// NewRunRecorder creates a RunRecorder writing through the given repository.
func NewRunRecorder(repo repository.RunRepository) *RunRecorder {
	return &RunRecorder{repo: repo}
}

// StartRun creates and persists a RunResult in the RUNNING state.
func (r *RunRecorder) StartRun(ctx context.Context, cfg *model.RunConfiguration) (*model.RunResult, error) {
	result := model.NewRunResult(cfg)
	if err := r.repo.SaveRunResult(ctx, result); err != nil {
		return nil, exception.NewDedupError(moduleName, "failed to persist new run result", err, true)
	}
	logger.Infof("Run %s started (batchJobId=%s, objectType=%s, dryRun=%t)",
		result.ID, result.BatchJobID, result.ObjectType, result.IsDryRun)
	return result, nil
}

// RecordPartition adds one absorbed partition's record count to the run and
// persists the updated counter.
func (r *RunRecorder) RecordPartition(ctx context.Context, result *model.RunResult, size int) error {
	result.RecordsProcessed += size
	result.LastUpdated = time.Now()
	if err := r.repo.UpdateRunResult(ctx, result); err != nil {
		return exception.NewDedupError(moduleName, "failed to update run progress", err, true)
	}
	return nil
}

// FinalizeRun writes one GroupDetail per finalized group, computes the run
// statistics from the groups, stamps processing time, and sets the terminal
// status exactly once. When runErr is non-nil the run is marked FAILED
// regardless of group outcomes.
func (r *RunRecorder) FinalizeRun(ctx context.Context, result *model.RunResult, groups []*model.DuplicateGroup, runErr error) error {
	if result.Status.IsTerminal() {
		logger.Warnf("Run %s is already terminal (%s); refusing to finalize again", result.ID, result.Status)
		return nil
	}

	details := make([]*model.GroupDetail, 0, len(groups))
	failures := 0
	var scoreSum float64
	for _, g := range groups {
		result.DuplicatesFound += len(g.MemberIDs) - 1
		scoreSum += g.MatchScore

		switch g.Phase {
		case model.MergePhaseMerged:
			result.RecordsMerged += len(g.MemberIDs) - 1
		case model.MergePhaseFailed:
			failures++
		}

		detail := model.NewGroupDetail(result.ID, result.ObjectType, g)
		if g.MergeErr != nil {
			detail.ErrorMessage = exception.ExtractErrorMessage(g.MergeErr)
		}
		details = append(details, detail)
	}
	if len(groups) > 0 {
		result.AverageMatchScore = scoreSum / float64(len(groups))
	}

	if len(details) > 0 {
		if err := r.repo.SaveGroupDetails(ctx, details); err != nil {
			runErr = exception.NewDedupError(moduleName, "failed to persist group details", err, true)
		}
	}

	result.ProcessingTimeMs = time.Since(result.StartTime).Milliseconds()

	switch {
	case runErr != nil:
		result.MarkAsFailed(runErr)
	case failures > 0:
		result.MarkAsCompletedWithErrors(failureSummary(groups, failures))
	default:
		result.MarkAsCompleted()
	}

	if err := r.repo.UpdateRunResult(ctx, result); err != nil {
		return exception.NewDedupError(moduleName, "failed to persist terminal run result", err, true)
	}
	logger.Infof("Run %s finished: status=%s processed=%d duplicates=%d merged=%d (%dms)",
		result.ID, result.Status, result.RecordsProcessed, result.DuplicatesFound,
		result.RecordsMerged, result.ProcessingTimeMs)
	return nil
}

// FailRun marks a run FAILED before any groups were finalized, typically on a
// scan error or cancellation.
func (r *RunRecorder) FailRun(ctx context.Context, result *model.RunResult, cause error) error {
	return r.FinalizeRun(ctx, result, nil, cause)
}

// failureSummary builds the errorMessage for a run that completed with group
// failures.
func failureSummary(groups []*model.DuplicateGroup, failures int) string {
	for _, g := range groups {
		if g.Phase == model.MergePhaseFailed && g.MergeErr != nil {
			msg := exception.ExtractErrorMessage(g.MergeErr)
			if failures == 1 {
				return "1 group failed to merge: " + msg
			}
			return "multiple groups failed to merge; first failure: " + msg
		}
	}
	return "one or more groups failed to merge"
}
