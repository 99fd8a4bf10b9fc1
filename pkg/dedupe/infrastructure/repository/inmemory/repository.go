// Package inmemory provides a process-local RunRepository. It backs tests
// and single-process runs that do not need run bookkeeping to survive a
// restart.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/repository"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/exception"
)

const moduleName = "inmemory_repository"

// RunRepository is an in-memory implementation of repository.RunRepository.
// All methods are safe for concurrent use.
type RunRepository struct {
	mu      sync.Mutex
	runs    map[string]*model.RunResult
	details map[string][]*model.GroupDetail         // runResultID -> details
	buckets map[string]map[string]*bucketState      // runResultID -> fingerprint -> members
}

type bucketState struct {
	members     []string
	memberSet   map[string]struct{}
	lastUpdated time.Time
}

// NewRunRepository creates an empty in-memory repository.
func NewRunRepository() *RunRepository {
	return &RunRepository{
		runs:    make(map[string]*model.RunResult),
		details: make(map[string][]*model.GroupDetail),
		buckets: make(map[string]map[string]*bucketState),
	}
}

var _ repository.RunRepository = (*RunRepository)(nil)

// SaveRunResult persists a copy of the run result.
func (r *RunRepository) SaveRunResult(ctx context.Context, result *model.RunResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *result
	r.runs[result.ID] = &cp
	return nil
}

// UpdateRunResult replaces the stored run result with an optimistic version
// check mirroring the SQL repository.
func (r *RunRepository) UpdateRunResult(ctx context.Context, result *model.RunResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.runs[result.ID]
	if !ok {
		return repository.ErrRunResultNotFound
	}
	if stored.Version != result.Version {
		return exception.NewDedupError(moduleName, "optimistic lock failure on run result update", nil, true)
	}
	result.Version++
	cp := *result
	r.runs[result.ID] = &cp
	return nil
}

// FindRunResultByID returns a copy of the run result with the given id.
func (r *RunRepository) FindRunResultByID(ctx context.Context, id string) (*model.RunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.runs[id]
	if !ok {
		return nil, repository.ErrRunResultNotFound
	}
	cp := *stored
	return &cp, nil
}

// FindRunResultByBatchJobID returns a copy of the run result with the given batch job id.
func (r *RunRepository) FindRunResultByBatchJobID(ctx context.Context, batchJobID string) (*model.RunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.runs {
		if stored.BatchJobID == batchJobID {
			cp := *stored
			return &cp, nil
		}
	}
	return nil, repository.ErrRunResultNotFound
}

// SaveGroupDetails appends the details to the run's detail set.
func (r *RunRepository) SaveGroupDetails(ctx context.Context, details []*model.GroupDetail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range details {
		cp := *d
		r.details[d.RunResultID] = append(r.details[d.RunResultID], &cp)
	}
	return nil
}

// CountGroupDetails returns the number of details recorded for the run.
func (r *RunRepository) CountGroupDetails(ctx context.Context, runResultID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.details[runResultID]), nil
}

// FindGroupDetails returns one page of the run's details ordered by
// descending match score, ties broken by group key for stable paging.
func (r *RunRepository) FindGroupDetails(ctx context.Context, runResultID string, offset, limit int) ([]*model.GroupDetail, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	all := append([]*model.GroupDetail(nil), r.details[runResultID]...)
	sort.Slice(all, func(i, j int) bool {
		if all[i].MatchScore != all[j].MatchScore {
			return all[i].MatchScore > all[j].MatchScore
		}
		return all[i].GroupKey < all[j].GroupKey
	})

	if offset < 0 || offset >= len(all) {
		return []*model.GroupDetail{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}

	page := make([]*model.GroupDetail, 0, end-offset)
	for _, d := range all[offset:end] {
		cp := *d
		page = append(page, &cp)
	}
	return page, nil
}

// AppendBucketMembers merges memberIDs into the bucket for the fingerprint.
func (r *RunRepository) AppendBucketMembers(ctx context.Context, runResultID, fingerprint string, memberIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.buckets[runResultID] == nil {
		r.buckets[runResultID] = make(map[string]*bucketState)
	}
	b := r.buckets[runResultID][fingerprint]
	if b == nil {
		b = &bucketState{memberSet: make(map[string]struct{})}
		r.buckets[runResultID][fingerprint] = b
	}
	for _, id := range memberIDs {
		if _, ok := b.memberSet[id]; ok {
			continue
		}
		b.memberSet[id] = struct{}{}
		b.members = append(b.members, id)
	}
	b.lastUpdated = time.Now()
	return nil
}

// FindDuplicateBuckets returns every bucket of the run with two or more
// members, ordered by fingerprint.
func (r *RunRepository) FindDuplicateBuckets(ctx context.Context, runResultID string) ([]*model.FingerprintBucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*model.FingerprintBucket
	for fp, b := range r.buckets[runResultID] {
		if len(b.members) < 2 {
			continue
		}
		ids := make(model.IDList, len(b.members))
		copy(ids, b.members)
		result = append(result, &model.FingerprintBucket{
			RunResultID: runResultID,
			Fingerprint: fp,
			MemberIDs:   ids,
			LastUpdated: b.lastUpdated,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Fingerprint < result[j].Fingerprint })
	return result, nil
}

// DeleteBuckets removes all accumulator rows of the run.
func (r *RunRepository) DeleteBuckets(ctx context.Context, runResultID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buckets, runResultID)
	return nil
}

// Close releases nothing for the in-memory repository.
func (r *RunRepository) Close() error {
	return nil
}
