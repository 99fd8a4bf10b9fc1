// Package resolver turns accumulated fingerprint buckets into finalized
// duplicate groups: it fetches the member records, scores the group, and
// applies the configured master-selection strategy.
package resolver

import (
	"context"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	"github.com/tidemill/dedupe/pkg/dedupe/core/port"
	"github.com/tidemill/dedupe/pkg/dedupe/engine/strategy"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/exception"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/logger"
)

const moduleName = "resolver"

// ExactMatchScore is the confidence assigned to groups formed by exact
// fingerprint equality. Approximate matchers would assign lower scores.
const ExactMatchScore = 1.0

// GroupResolver resolves fingerprint buckets into DuplicateGroups.
type GroupResolver struct {
	store port.RecordStore
}

// NewGroupResolver creates a GroupResolver reading member records from the store.
func NewGroupResolver(store port.RecordStore) *GroupResolver {
	return &GroupResolver{store: store}
}

// Resolve finalizes one bucket into a DuplicateGroup in the PENDING phase.
//
// Members that vanished from the store since they were scanned are dropped;
// a bucket left with fewer than two live members resolves to nil without error.
func (r *GroupResolver) Resolve(ctx context.Context, cfg *model.RunConfiguration, bucket *model.FingerprintBucket, s strategy.MasterStrategy) (*model.DuplicateGroup, error) {
	if len(bucket.MemberIDs) < 2 {
		return nil, nil
	}

	records, err := r.store.FetchByIDs(ctx, cfg.ObjectType, bucket.MemberIDs)
	if err != nil {
		return nil, exception.NewDedupError(moduleName, "failed to fetch group member records", err, true)
	}
	if len(records) < len(bucket.MemberIDs) {
		logger.Debugf("Bucket %s: %d of %d members no longer present in the store",
			bucket.Fingerprint, len(bucket.MemberIDs)-len(records), len(bucket.MemberIDs))
	}
	if len(records) < 2 {
		return nil, nil
	}

	master, err := s.SelectMaster(records)
	if err != nil {
		return nil, err
	}

	memberIDs := make([]string, len(records))
	for i, rec := range records {
		memberIDs[i] = rec.ID
	}

	return &model.DuplicateGroup{
		Fingerprint: bucket.Fingerprint,
		MemberIDs:   memberIDs,
		MasterID:    master.ID,
		MatchScore:  ExactMatchScore,
		FieldValues: matchFieldSnapshot(master, cfg.MatchFields),
		Phase:       model.MergePhasePending,
	}, nil
}

// ResolveAll resolves every bucket, skipping those that degenerate below two
// live members. The returned groups preserve bucket order.
func (r *GroupResolver) ResolveAll(ctx context.Context, cfg *model.RunConfiguration, buckets []*model.FingerprintBucket) ([]*model.DuplicateGroup, error) {
	s, err := strategy.ForName(cfg.MasterStrategy)
	if err != nil {
		return nil, err
	}

	groups := make([]*model.DuplicateGroup, 0, len(buckets))
	for _, bucket := range buckets {
		group, err := r.Resolve(ctx, cfg, bucket, s)
		if err != nil {
			return nil, err
		}
		if group == nil {
			continue
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// matchFieldSnapshot captures the master's raw match-field values for the
// persisted group detail.
func matchFieldSnapshot(master *model.SourceRecord, matchFields []model.MatchField) model.FieldValues {
	snapshot := make(model.FieldValues, len(matchFields))
	for _, f := range matchFields {
		snapshot[f.Name] = master.FieldValue(f.Name)
	}
	return snapshot
}
