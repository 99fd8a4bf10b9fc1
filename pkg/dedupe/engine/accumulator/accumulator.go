// Package accumulator collects fingerprint observations across scan
// partitions. Absorbing a partition is commutative and associative, so
// partitions may arrive in any order and from any number of workers without
// changing the final set of duplicate groups.
package accumulator

import (
	"context"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
)

// Observation pairs a record id with its computed fingerprint.
type Observation struct {
	// RecordID is the observed record's id.
	RecordID string
	// Fingerprint is the record's normalized group key. Never empty; records
	// with blank fingerprints are filtered before absorption.
	Fingerprint string
}

// Accumulator merges per-partition fingerprint observations into durable or
// in-memory buckets keyed by fingerprint.
//
// Implementations must serialize concurrent Absorb calls touching the same
// fingerprint so that no member id is lost.
type Accumulator interface {
	// Absorb merges one partition's observations into the run's buckets.
	Absorb(ctx context.Context, runResultID string, observations []Observation) error

	// DuplicateBuckets returns every bucket holding two or more distinct
	// member ids, with members deduplicated.
	DuplicateBuckets(ctx context.Context, runResultID string) ([]*model.FingerprintBucket, error)

	// Clear discards all accumulated state of the run.
	Clear(ctx context.Context, runResultID string) error
}

// groupByFingerprint folds a partition's observations into per-fingerprint id
// lists, preserving first-seen order within the partition.
func groupByFingerprint(observations []Observation) map[string][]string {
	grouped := make(map[string][]string)
	for _, o := range observations {
		if o.Fingerprint == "" {
			continue
		}
		grouped[o.Fingerprint] = append(grouped[o.Fingerprint], o.RecordID)
	}
	return grouped
}

// mergeMembers appends ids into members, skipping ids already present.
func mergeMembers(members []string, ids []string) []string {
	seen := make(map[string]struct{}, len(members))
	for _, id := range members {
		seen[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	return members
}
