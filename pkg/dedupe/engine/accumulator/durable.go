package accumulator

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/repository"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/exception"
)

const moduleName = "accumulator"

// DurableAccumulator persists fingerprint buckets through the run repository,
// so accumulation survives process restarts and can be shared by multiple
// scan workers. Append serialization is delegated to the repository.
type DurableAccumulator struct {
	repo repository.FingerprintBucketRepository
}

// NewDurableAccumulator creates a DurableAccumulator backed by the given repository.
func NewDurableAccumulator(repo repository.FingerprintBucketRepository) *DurableAccumulator {
	return &DurableAccumulator{repo: repo}
}

var _ Accumulator = (*DurableAccumulator)(nil)

// Absorb merges one partition's observations into the run's durable buckets.
// Each fingerprint is appended independently; failures are collected so one
// bad bucket does not mask the others.
func (a *DurableAccumulator) Absorb(ctx context.Context, runResultID string, observations []Observation) error {
	var errs *multierror.Error
	for fp, ids := range groupByFingerprint(observations) {
		if err := a.repo.AppendBucketMembers(ctx, runResultID, fp, ids); err != nil {
			errs = multierror.Append(errs, exception.NewDedupError(moduleName,
				"failed to append bucket members for fingerprint", err, true))
		}
	}
	return errs.ErrorOrNil()
}

// DuplicateBuckets returns the run's buckets holding two or more members.
func (a *DurableAccumulator) DuplicateBuckets(ctx context.Context, runResultID string) ([]*model.FingerprintBucket, error) {
	buckets, err := a.repo.FindDuplicateBuckets(ctx, runResultID)
	if err != nil {
		return nil, exception.NewDedupError(moduleName, "failed to load duplicate buckets", err, true)
	}
	return buckets, nil
}

// Clear removes the run's accumulator rows.
func (a *DurableAccumulator) Clear(ctx context.Context, runResultID string) error {
	if err := a.repo.DeleteBuckets(ctx, runResultID); err != nil {
		return exception.NewDedupError(moduleName, "failed to delete accumulator buckets", err, true)
	}
	return nil
}
