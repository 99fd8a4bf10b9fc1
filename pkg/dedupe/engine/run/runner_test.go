package run

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	"github.com/tidemill/dedupe/pkg/dedupe/core/port"
	"github.com/tidemill/dedupe/pkg/dedupe/engine/accumulator"
	"github.com/tidemill/dedupe/pkg/dedupe/engine/merge"
	"github.com/tidemill/dedupe/pkg/dedupe/engine/resolver"
	"github.com/tidemill/dedupe/pkg/dedupe/infrastructure/repository/inmemory"
	"github.com/tidemill/dedupe/pkg/dedupe/normalize"
	"github.com/tidemill/dedupe/pkg/dedupe/recorder"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/exception"
	dedupetest "github.com/tidemill/dedupe/pkg/dedupe/test"
)

const objectType = "Account"

type fixture struct {
	store  *dedupetest.FakeRecordStore
	repo   *inmemory.RunRepository
	runner *Runner
}

func newFixture(t *testing.T, checker port.AccessChecker, opts ...RunnerOption) *fixture {
	t.Helper()
	store := dedupetest.NewFakeRecordStore()
	repo := inmemory.NewRunRepository()
	introspector := dedupetest.NewStaticIntrospector(map[string][]port.Relationship{
		objectType: {{RelationshipField: "account_id", ChildObjectType: "Contact"}},
	})

	runner := NewRunner(
		store,
		checker,
		accumulator.NewMemoryAccumulator(),
		resolver.NewGroupResolver(store),
		merge.NewExecutor(store, introspector, nil),
		recorder.NewRunRecorder(repo),
		normalize.NewCachedNormalizer(),
		opts...,
	)
	return &fixture{store: store, repo: repo, runner: runner}
}

// seedSixRecordScenario loads two exact-duplicate pairs, one further
// duplicate pair, and no unique record is needed beyond the pairs' survivors:
// six records collapsing to three after a merge.
func seedSixRecordScenario(store *dedupetest.FakeRecordStore) {
	store.AddRecord(objectType, dedupetest.NewAccount("a1", 0, "ACME Corp", "(555) 123-4567", "sales@acme.com"))
	store.AddRecord(objectType, dedupetest.NewAccount("a2", time.Hour, "acme corp", "555-123-4567", "Sales@Acme.com"))
	store.AddRecord(objectType, dedupetest.NewAccount("b1", 0, "Globex", "5559990000", "info@globex.com"))
	store.AddRecord(objectType, dedupetest.NewAccount("b2", 2*time.Hour, "GLOBEX", "(555) 999-0000", "info@globex.com"))
	store.AddRecord(objectType, dedupetest.NewAccount("c1", 0, "Initech", "5551112222", "it@initech.com"))
	store.AddRecord(objectType, dedupetest.NewAccount("c2", 3*time.Hour, "Initech", "555 111 2222", "IT@Initech.com"))
}

func TestExecute_SixRecordScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &dedupetest.AllowAllAccessChecker{})
	seedSixRecordScenario(f.store)

	cfg := dedupetest.NewRunConfiguration(objectType)
	result, err := f.runner.Execute(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusCompleted, result.Status)
	assert.Equal(t, 6, result.RecordsProcessed)
	assert.Equal(t, 3, result.DuplicatesFound)
	assert.Equal(t, 3, result.RecordsMerged)
	assert.InDelta(t, 1.0, result.AverageMatchScore, 0.0001)

	remaining, err := f.store.CountRecords(ctx, objectType)
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)

	// Oldest member of each pair survives.
	assert.True(t, f.store.Has(objectType, "a1"))
	assert.True(t, f.store.Has(objectType, "b1"))
	assert.True(t, f.store.Has(objectType, "c1"))

	count, err := f.repo.CountGroupDetails(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestExecute_DryRunTwin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &dedupetest.AllowAllAccessChecker{})
	seedSixRecordScenario(f.store)

	cfg := dedupetest.NewRunConfiguration(objectType)
	cfg.DryRun = true
	result, err := f.runner.Execute(ctx, cfg)
	require.NoError(t, err)

	assert.True(t, result.IsDryRun)
	assert.Equal(t, model.RunStatusCompleted, result.Status)
	assert.Equal(t, 6, result.RecordsProcessed)
	assert.Greater(t, result.DuplicatesFound, 0)
	assert.Equal(t, 0, result.RecordsMerged)

	remaining, err := f.store.CountRecords(ctx, objectType)
	require.NoError(t, err)
	assert.Equal(t, 6, remaining, "dry run must not delete records")
}

func TestExecute_GroupMembershipPartitionsScannedRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &dedupetest.AllowAllAccessChecker{})

	// Duplicates interleaved so each pair straddles partition boundaries,
	// plus one unique record and one with every match field blank.
	f.store.AddRecord(objectType, dedupetest.NewAccount("a1", 0, "ACME Corp", "(555) 123-4567", "sales@acme.com"))
	f.store.AddRecord(objectType, dedupetest.NewAccount("b1", 0, "Globex", "5559990000", "info@globex.com"))
	f.store.AddRecord(objectType, dedupetest.NewAccount("a2", time.Hour, "acme corp", "555-123-4567", "Sales@Acme.com"))
	f.store.AddRecord(objectType, dedupetest.NewAccount("b2", 2*time.Hour, "GLOBEX", "(555) 999-0000", "info@globex.com"))
	f.store.AddRecord(objectType, dedupetest.NewAccount("a3", 3*time.Hour, "Acme, Corp.", "5551234567", "sales@acme.com"))
	f.store.AddRecord(objectType, dedupetest.NewAccount("u1", 0, "Initech", "5551112222", "it@initech.com"))
	f.store.AddRecord(objectType, dedupetest.NewAccount("z1", 0, "", "", ""))

	cfg := dedupetest.NewRunConfiguration(objectType)
	cfg.PartitionSize = 2
	cfg.DryRun = true
	result, err := f.runner.Execute(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 7, result.RecordsProcessed)

	count, err := f.repo.CountGroupDetails(ctx, result.ID)
	require.NoError(t, err)
	details, err := f.repo.FindGroupDetails(ctx, result.ID, 0, count)
	require.NoError(t, err)
	require.Len(t, details, 2)

	// Member sets are pairwise disjoint: no record id appears in two groups.
	seen := make(map[string]string)
	total := 0
	for _, d := range details {
		members := append([]string{d.MasterRecordID}, d.ParseDuplicateIDs()...)
		assert.Equal(t, d.RecordCount, len(members))
		assert.GreaterOrEqual(t, len(members), 2)
		total += len(members)
		for _, id := range members {
			other, dup := seen[id]
			assert.False(t, dup, "record %s is in groups %s and %s", id, other, d.GroupKey)
			seen[id] = d.GroupKey
		}
	}
	assert.Equal(t, total, len(seen))

	// The union covers only scanned records with a non-empty fingerprint:
	// the unique record and the all-blank record belong to no group.
	for id := range seen {
		assert.Contains(t, []string{"a1", "a2", "a3", "b1", "b2"}, id)
	}
	assert.NotContains(t, seen, "u1")
	assert.NotContains(t, seen, "z1")
}

// countingStore observes CountRecords calls made by the runner.
type countingStore struct {
	*dedupetest.FakeRecordStore
	countCalls int
}

func (s *countingStore) CountRecords(ctx context.Context, objectType string) (int, error) {
	s.countCalls++
	return s.FakeRecordStore.CountRecords(ctx, objectType)
}

func TestExecute_CountsRecordsOncePerRun(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{FakeRecordStore: dedupetest.NewFakeRecordStore()}
	dedupetest.SeedAccounts(store.FakeRecordStore, objectType, 4)

	repo := inmemory.NewRunRepository()
	introspector := dedupetest.NewStaticIntrospector(map[string][]port.Relationship{objectType: nil})
	runner := NewRunner(
		store,
		&dedupetest.AllowAllAccessChecker{},
		accumulator.NewMemoryAccumulator(),
		resolver.NewGroupResolver(store),
		merge.NewExecutor(store, introspector, nil),
		recorder.NewRunRecorder(repo),
		normalize.NewCachedNormalizer(),
	)

	_, err := runner.Execute(ctx, dedupetest.NewRunConfiguration(objectType))
	require.NoError(t, err)
	assert.Equal(t, 1, store.countCalls)
}

// failingScanStore errors on every ScanPartition call.
type failingScanStore struct {
	*dedupetest.FakeRecordStore
}

func (s *failingScanStore) ScanPartition(ctx context.Context, objectType, cursor string, limit int) (*port.ScanPage, error) {
	return nil, errors.New("store unavailable")
}

func TestExecute_ScanFailureMarksRunFailed(t *testing.T) {
	ctx := context.Background()
	store := &failingScanStore{FakeRecordStore: dedupetest.NewFakeRecordStore()}
	dedupetest.SeedAccounts(store.FakeRecordStore, objectType, 3)

	repo := inmemory.NewRunRepository()
	introspector := dedupetest.NewStaticIntrospector(map[string][]port.Relationship{objectType: nil})
	runner := NewRunner(
		store,
		&dedupetest.AllowAllAccessChecker{},
		accumulator.NewMemoryAccumulator(),
		resolver.NewGroupResolver(store),
		merge.NewExecutor(store, introspector, nil),
		recorder.NewRunRecorder(repo),
		normalize.NewCachedNormalizer(),
	)

	result, err := runner.Execute(ctx, dedupetest.NewRunConfiguration(objectType))
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, model.RunStatusFailed, result.Status)
	assert.Contains(t, result.ErrorMessage, "partition scan failed")

	persisted, findErr := repo.FindRunResultByID(ctx, result.ID)
	require.NoError(t, findErr)
	assert.Equal(t, model.RunStatusFailed, persisted.Status)
}

func TestExecute_GridSizeConcurrentAbsorb(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &dedupetest.AllowAllAccessChecker{})
	dedupetest.SeedAccounts(f.store, objectType, 97)

	cfg := dedupetest.NewRunConfiguration(objectType)
	cfg.PartitionSize = 10
	cfg.GridSize = 4
	result, err := f.runner.Execute(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusCompleted, result.Status)
	assert.Equal(t, 97, result.RecordsProcessed)
	assert.Equal(t, 0, result.DuplicatesFound, "seeded accounts are all distinct")
}

func TestExecute_ValidationRejectsBeforeScan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &dedupetest.AllowAllAccessChecker{})

	cfg := dedupetest.NewRunConfiguration(objectType)
	cfg.MatchFields = nil
	_, err := f.runner.Execute(ctx, cfg)
	require.Error(t, err)
	assert.True(t, exception.IsConfigurationError(err))
}

func TestExecute_UnknownObjectTypeIsConfigurationError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &dedupetest.AllowAllAccessChecker{})

	cfg := dedupetest.NewRunConfiguration("Nonexistent")
	_, err := f.runner.Execute(ctx, cfg)
	require.Error(t, err)
	assert.True(t, exception.IsConfigurationError(err))
}

func TestExecute_UnknownStrategyIsConfigurationError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &dedupetest.AllowAllAccessChecker{})
	dedupetest.SeedAccounts(f.store, objectType, 1)

	cfg := dedupetest.NewRunConfiguration(objectType)
	cfg.MasterStrategy = "Unregistered"
	_, err := f.runner.Execute(ctx, cfg)
	require.Error(t, err)
	assert.True(t, exception.IsConfigurationError(err))
}

func TestExecute_AccessDeniedBeforeScan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &dedupetest.DenyAccessChecker{DeniedOps: map[port.Operation]bool{port.OperationMerge: true}})
	dedupetest.SeedAccounts(f.store, objectType, 2)

	cfg := dedupetest.NewRunConfiguration(objectType)
	_, err := f.runner.Execute(ctx, cfg)
	require.Error(t, err)
	assert.True(t, exception.IsAccessDenied(err))

	// The same caller may still dry-run, which only needs READ.
	cfg.DryRun = true
	result, err := f.runner.Execute(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, result.Status)
}

// gatedStore blocks the first ScanPartition call until released, so a second
// Execute can be attempted while the first run holds the object-type lock.
type gatedStore struct {
	*dedupetest.FakeRecordStore
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedStore) ScanPartition(ctx context.Context, objectType, cursor string, limit int) (*port.ScanPage, error) {
	s.once.Do(func() {
		close(s.started)
		<-s.release
	})
	return s.FakeRecordStore.ScanPartition(ctx, objectType, cursor, limit)
}

func TestExecute_ExclusivityLockPerObjectType(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{
		FakeRecordStore: dedupetest.NewFakeRecordStore(),
		started:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	dedupetest.SeedAccounts(store.FakeRecordStore, objectType, 3)

	repo := inmemory.NewRunRepository()
	introspector := dedupetest.NewStaticIntrospector(map[string][]port.Relationship{objectType: nil})
	runner := NewRunner(
		store,
		&dedupetest.AllowAllAccessChecker{},
		accumulator.NewMemoryAccumulator(),
		resolver.NewGroupResolver(store),
		merge.NewExecutor(store, introspector, nil),
		recorder.NewRunRecorder(repo),
		normalize.NewCachedNormalizer(),
	)

	done := make(chan error, 1)
	go func() {
		_, err := runner.Execute(ctx, dedupetest.NewRunConfiguration(objectType))
		done <- err
	}()

	<-store.started
	_, err := runner.Execute(ctx, dedupetest.NewRunConfiguration(objectType))
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrRunInProgress)

	close(store.release)
	require.NoError(t, <-done)

	// The lock is released once the first run finished.
	_, err = runner.Execute(ctx, dedupetest.NewRunConfiguration(objectType))
	require.NoError(t, err)
}

func TestExecute_CancellationMarksRunFailed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFixture(t, &dedupetest.AllowAllAccessChecker{})
	dedupetest.SeedAccounts(f.store, objectType, 5)
	cancelingStore := &cancelOnScanStore{FakeRecordStore: f.store, cancel: cancel}

	repo := inmemory.NewRunRepository()
	introspector := dedupetest.NewStaticIntrospector(map[string][]port.Relationship{objectType: nil})
	runner := NewRunner(
		cancelingStore,
		&dedupetest.AllowAllAccessChecker{},
		accumulator.NewMemoryAccumulator(),
		resolver.NewGroupResolver(cancelingStore),
		merge.NewExecutor(cancelingStore, introspector, nil),
		recorder.NewRunRecorder(repo),
		normalize.NewCachedNormalizer(),
	)

	cfg := dedupetest.NewRunConfiguration(objectType)
	cfg.PartitionSize = 2
	result, err := runner.Execute(ctx, cfg)
	require.Error(t, err)
	require.NotNil(t, result, "a started run always yields a terminal result")
	assert.Equal(t, model.RunStatusFailed, result.Status)
	assert.NotEmpty(t, result.ErrorMessage)
}

// cancelOnScanStore cancels the run context after serving the first partition.
type cancelOnScanStore struct {
	*dedupetest.FakeRecordStore
	cancel context.CancelFunc
	calls  int
	mu     sync.Mutex
}

func (s *cancelOnScanStore) ScanPartition(ctx context.Context, objectType, cursor string, limit int) (*port.ScanPage, error) {
	s.mu.Lock()
	s.calls++
	if s.calls == 1 {
		defer s.cancel()
	}
	s.mu.Unlock()
	return s.FakeRecordStore.ScanPartition(ctx, objectType, cursor, limit)
}

func TestExecute_ListenersObserveLifecycle(t *testing.T) {
	ctx := context.Background()
	listener := &dedupetest.RecordingListener{}
	f := newFixture(t, &dedupetest.AllowAllAccessChecker{}, WithListeners(listener))
	seedSixRecordScenario(f.store)

	cfg := dedupetest.NewRunConfiguration(objectType)
	cfg.PartitionSize = 3
	_, err := f.runner.Execute(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, listener.BeforeRunCalls)
	assert.Equal(t, []int{3, 3}, listener.Partitions)
	assert.Len(t, listener.Groups, 3)
	require.Len(t, listener.FinalStatuses, 1)
	assert.Equal(t, model.RunStatusCompleted, listener.FinalStatuses[0])
}

func TestExecuteNamed_ResolvesConfiguration(t *testing.T) {
	ctx := context.Background()
	named := &dedupetest.MapConfigurationStore{
		Configurations: map[string]model.RunConfiguration{
			"accounts-nightly": *dedupetest.NewRunConfiguration(objectType),
		},
	}
	f := newFixture(t, &dedupetest.AllowAllAccessChecker{}, WithConfigurationStore(named))
	seedSixRecordScenario(f.store)

	result, err := f.runner.ExecuteNamed(ctx, "accounts-nightly")
	require.NoError(t, err)
	assert.Equal(t, "accounts-nightly", result.ConfigurationName)

	_, err = f.runner.ExecuteNamed(ctx, "missing")
	require.Error(t, err)
	assert.True(t, exception.IsNotFound(err))
}
