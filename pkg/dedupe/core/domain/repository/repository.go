// Package repository defines the persistence contracts for run bookkeeping.
package repository

import (
	"context"
	"errors"

	model "github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
)

// ErrRunResultNotFound is the error returned when a RunResult is not found.
var ErrRunResultNotFound = errors.New("run result not found")

// ErrGroupDetailNotFound is the error returned when a GroupDetail is not found.
var ErrGroupDetailNotFound = errors.New("group detail not found")

// RunResultRepository defines operations for persisting and retrieving run summaries.
type RunResultRepository interface {
	// SaveRunResult persists a new RunResult.
	SaveRunResult(ctx context.Context, result *model.RunResult) error

	// UpdateRunResult updates the state of an existing RunResult using optimistic locking.
	UpdateRunResult(ctx context.Context, result *model.RunResult) error

	// FindRunResultByID finds a RunResult by its ID.
	FindRunResultByID(ctx context.Context, id string) (*model.RunResult, error)

	// FindRunResultByBatchJobID finds a RunResult by its batch job id.
	FindRunResultByBatchJobID(ctx context.Context, batchJobID string) (*model.RunResult, error)
}

// GroupDetailRepository defines operations for persisting and paging group details.
type GroupDetailRepository interface {
	// SaveGroupDetails persists the group detail rows of a run in one write.
	SaveGroupDetails(ctx context.Context, details []*model.GroupDetail) error

	// CountGroupDetails returns the number of group details recorded for a run.
	CountGroupDetails(ctx context.Context, runResultID string) (int, error)

	// FindGroupDetails returns one page of a run's group details ordered by
	// descending match score. offset and limit follow SQL semantics.
	FindGroupDetails(ctx context.Context, runResultID string, offset, limit int) ([]*model.GroupDetail, error)
}

// FingerprintBucketRepository defines the durable accumulator operations.
// AppendBucketMembers must serialize concurrent appends to the same
// (runResultID, fingerprint) key so that no member id is lost.
type FingerprintBucketRepository interface {
	// AppendBucketMembers merges memberIDs into the bucket for the fingerprint,
	// creating the bucket when absent.
	AppendBucketMembers(ctx context.Context, runResultID, fingerprint string, memberIDs []string) error

	// FindDuplicateBuckets returns every bucket of the run holding two or more members.
	FindDuplicateBuckets(ctx context.Context, runResultID string) ([]*model.FingerprintBucket, error)

	// DeleteBuckets removes all accumulator rows of the run.
	DeleteBuckets(ctx context.Context, runResultID string) error
}

// RunRepository aggregates all persistence operations of the engine.
type RunRepository interface {
	RunResultRepository
	GroupDetailRepository
	FingerprintBucketRepository

	// Close releases any resources held by the repository.
	Close() error
}
