// Package run orchestrates a complete dedupe run: configuration validation,
// the partitioned scan, fingerprint accumulation, group resolution, merge
// execution, and run bookkeeping. Callers always receive a terminal,
// queryable RunResult once a run was started.
package run

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	coremetrics "github.com/tidemill/dedupe/pkg/dedupe/core/metrics"
	"github.com/tidemill/dedupe/pkg/dedupe/core/port"
	"github.com/tidemill/dedupe/pkg/dedupe/engine/accumulator"
	"github.com/tidemill/dedupe/pkg/dedupe/engine/fingerprint"
	"github.com/tidemill/dedupe/pkg/dedupe/engine/merge"
	"github.com/tidemill/dedupe/pkg/dedupe/engine/resolver"
	"github.com/tidemill/dedupe/pkg/dedupe/engine/strategy"
	"github.com/tidemill/dedupe/pkg/dedupe/recorder"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/exception"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/logger"
)

const moduleName = "run"

// objectLocks enforces one active run per object type per engine instance.
type objectLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newObjectLocks() *objectLocks {
	return &objectLocks{held: make(map[string]bool)}
}

func (l *objectLocks) acquire(objectType string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[objectType] {
		return exception.NewDedupError(moduleName,
			"a run is already in progress for object type '"+objectType+"'",
			exception.ErrRunInProgress, false)
	}
	l.held[objectType] = true
	return nil
}

func (l *objectLocks) release(objectType string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, objectType)
}

// Runner executes dedupe runs end to end.
type Runner struct {
	store         port.RecordStore
	accessChecker port.AccessChecker
	configStore   port.ConfigurationStore
	accum         accumulator.Accumulator
	resolver      *resolver.GroupResolver
	merger        *merge.Executor
	recorder      *recorder.RunRecorder
	normalizer    port.Normalizer
	listeners     []port.RunListener
	metrics       coremetrics.Recorder
	tracer        coremetrics.Tracer
	locks         *objectLocks

	// bookkeepingMu serializes progress recording from concurrent partition workers.
	bookkeepingMu sync.Mutex
}

// RunnerOption customizes optional Runner collaborators.
type RunnerOption func(*Runner)

// WithConfigurationStore wires the store used by ExecuteNamed.
func WithConfigurationStore(cs port.ConfigurationStore) RunnerOption {
	return func(r *Runner) { r.configStore = cs }
}

// WithListeners registers run lifecycle listeners.
func WithListeners(listeners ...port.RunListener) RunnerOption {
	return func(r *Runner) { r.listeners = append(r.listeners, listeners...) }
}

// WithMetrics wires a metrics recorder.
func WithMetrics(m coremetrics.Recorder) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithTracer wires a tracer for run spans.
func WithTracer(t coremetrics.Tracer) RunnerOption {
	return func(r *Runner) { r.tracer = t }
}

// NewRunner creates a Runner over the required collaborators.
func NewRunner(
	store port.RecordStore,
	accessChecker port.AccessChecker,
	accum accumulator.Accumulator,
	res *resolver.GroupResolver,
	merger *merge.Executor,
	rec *recorder.RunRecorder,
	normalizer port.Normalizer,
	opts ...RunnerOption,
) *Runner {
	r := &Runner{
		store:         store,
		accessChecker: accessChecker,
		accum:         accum,
		resolver:      res,
		merger:        merger,
		recorder:      rec,
		normalizer:    normalizer,
		locks:         newObjectLocks(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ExecuteNamed resolves a stored configuration by name and executes it.
func (r *Runner) ExecuteNamed(ctx context.Context, name string) (*model.RunResult, error) {
	if r.configStore == nil {
		return nil, exception.NewConfigError(moduleName, "no configuration store is wired; named runs are unavailable")
	}
	cfg, err := r.configStore.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, cfg)
}

// Execute runs one dedupe run with the given configuration.
//
// Validation, access control, and the run-exclusivity lock are checked before
// any scanning; their failures return an error without a RunResult. Once the
// RunResult exists, every outcome, including cancellation, finalizes it to a
// terminal status before returning.
func (r *Runner) Execute(ctx context.Context, cfg *model.RunConfiguration) (*model.RunResult, error) {
	if err := r.validate(ctx, cfg); err != nil {
		return nil, err
	}

	if err := r.locks.acquire(cfg.ObjectType); err != nil {
		return nil, err
	}
	defer r.locks.release(cfg.ObjectType)

	result, err := r.recorder.StartRun(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if total, err := r.store.CountRecords(ctx, cfg.ObjectType); err != nil {
		logger.Warnf("Run %s: failed to count %s records: %v", result.ID, cfg.ObjectType, err)
	} else {
		logger.Infof("Run %s: scanning %d %s record(s)", result.ID, total, cfg.ObjectType)
	}

	runCtx := ctx
	if r.tracer != nil {
		var end func()
		runCtx, end = r.tracer.StartRunSpan(ctx, result)
		defer end()
	}
	for _, l := range r.listeners {
		l.BeforeRun(runCtx, result)
	}
	if r.metrics != nil {
		r.metrics.RecordRunStart(runCtx, result)
	}

	groups, runErr := r.execute(runCtx, cfg, result)

	// Finalization must reach the repository even when the run context was
	// canceled: callers always get a terminal, queryable RunResult.
	finalizeCtx := context.WithoutCancel(runCtx)
	var finalizeErr error
	if runErr != nil && groups == nil {
		finalizeErr = r.recorder.FailRun(finalizeCtx, result, runErr)
	} else {
		finalizeErr = r.recorder.FinalizeRun(finalizeCtx, result, groups, runErr)
	}
	if finalizeErr != nil {
		logger.Errorf("Run %s: failed to finalize: %v", result.ID, finalizeErr)
	}
	if err := r.accum.Clear(finalizeCtx, result.ID); err != nil {
		logger.Warnf("Run %s: failed to clear accumulator state: %v", result.ID, err)
	}

	for _, l := range r.listeners {
		l.AfterRun(runCtx, result)
	}
	if r.metrics != nil {
		r.metrics.RecordRunEnd(runCtx, result)
	}
	if runErr != nil && r.tracer != nil {
		r.tracer.RecordError(runCtx, moduleName, runErr)
	}
	return result, runErr
}

// validate rejects misconfigured or unauthorized runs before scanning starts.
func (r *Runner) validate(ctx context.Context, cfg *model.RunConfiguration) error {
	if cfg.PartitionSize == 0 {
		cfg.PartitionSize = model.DefaultPartitionSize
	}
	if cfg.GridSize <= 0 {
		cfg.GridSize = 1
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := strategy.ForName(cfg.MasterStrategy); err != nil {
		return err
	}

	known, err := r.store.HasObjectType(ctx, cfg.ObjectType)
	if err != nil {
		return exception.NewDedupError(moduleName, "failed to check object type", err, true)
	}
	if !known {
		return exception.NewConfigError(moduleName, "unknown object type '%s'", cfg.ObjectType)
	}

	if err := r.accessChecker.Check(ctx, cfg.ObjectType, port.OperationRead); err != nil {
		return err
	}
	if !cfg.DryRun {
		if err := r.accessChecker.Check(ctx, cfg.ObjectType, port.OperationMerge); err != nil {
			return err
		}
	}
	return nil
}

// execute performs the scan, resolution, and merge phases. The returned
// groups are finalized regardless of the returned error, so bookkeeping can
// record partial outcomes.
func (r *Runner) execute(ctx context.Context, cfg *model.RunConfiguration, result *model.RunResult) ([]*model.DuplicateGroup, error) {
	if err := r.scan(ctx, cfg, result); err != nil {
		return nil, err
	}

	// Hard barrier: every partition is absorbed before any group is resolved.
	buckets, err := r.accum.DuplicateBuckets(ctx, result.ID)
	if err != nil {
		return nil, err
	}

	groups, err := r.resolver.ResolveAll(ctx, cfg, buckets)
	if err != nil {
		return nil, err
	}

	mergeErr := r.merger.ExecuteAll(ctx, cfg, result, groups)
	for _, g := range groups {
		for _, l := range r.listeners {
			l.AfterGroup(ctx, result, g)
		}
		if r.metrics != nil {
			r.metrics.RecordGroup(ctx, result, g)
		}
	}

	// Cancellation mid-merge fails the run; ordinary group failures are
	// reflected per group and summarized as CompletedWithErrors.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return groups, exception.NewDedupError(moduleName, "run canceled", ctxErr, false)
	}
	if mergeErr != nil {
		logger.Warnf("Run %s: %d group merge failure(s): %v", result.ID, countFailed(groups), mergeErr)
	}
	return groups, nil
}

// scan walks the record store in partitions and absorbs each one into the
// accumulator, fanning out up to GridSize concurrent absorbs.
func (r *Runner) scan(ctx context.Context, cfg *model.RunConfiguration, result *model.RunResult) error {
	sem := make(chan struct{}, cfg.GridSize)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var scanErrs *multierror.Error

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return exception.NewDedupError(moduleName, "run canceled during scan", err, false)
		}

		page, err := r.store.ScanPartition(ctx, cfg.ObjectType, cursor, cfg.PartitionSize)
		if err != nil {
			wg.Wait()
			return exception.NewDedupError(moduleName, "partition scan failed", err, true)
		}

		if len(page.Records) > 0 {
			wg.Add(1)
			sem <- struct{}{}
			go func(records []*model.SourceRecord) {
				defer wg.Done()
				defer func() { <-sem }()
				if err := r.absorbPartition(ctx, cfg, result, records); err != nil {
					mu.Lock()
					scanErrs = multierror.Append(scanErrs, err)
					mu.Unlock()
				}
			}(page.Records)
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	wg.Wait()
	return scanErrs.ErrorOrNil()
}

// absorbPartition fingerprints one partition and merges it into the
// accumulator, then records progress. Bookkeeping is serialized so the
// recorder stays the sole writer of the RunResult.
func (r *Runner) absorbPartition(ctx context.Context, cfg *model.RunConfiguration, result *model.RunResult, records []*model.SourceRecord) error {
	observations := make([]accumulator.Observation, 0, len(records))
	for _, rec := range records {
		fp := fingerprint.Of(rec, cfg.MatchFields, r.normalizer)
		if fp == "" {
			// All match fields blank; the record can never be grouped.
			continue
		}
		observations = append(observations, accumulator.Observation{RecordID: rec.ID, Fingerprint: fp})
	}

	if err := r.accum.Absorb(ctx, result.ID, observations); err != nil {
		return err
	}

	r.bookkeepingMu.Lock()
	defer r.bookkeepingMu.Unlock()
	if err := r.recorder.RecordPartition(ctx, result, len(records)); err != nil {
		return err
	}
	for _, l := range r.listeners {
		l.AfterPartition(ctx, result, len(records))
	}
	if r.metrics != nil {
		r.metrics.RecordPartition(ctx, result, len(records))
	}
	return nil
}

// countFailed counts groups in the FAILED phase.
func countFailed(groups []*model.DuplicateGroup) int {
	n := 0
	for _, g := range groups {
		if g.Phase == model.MergePhaseFailed {
			n++
		}
	}
	return n
}
