package run

import (
	"go.uber.org/fx"

	coremetrics "github.com/tidemill/dedupe/pkg/dedupe/core/metrics"
	"github.com/tidemill/dedupe/pkg/dedupe/core/port"
	"github.com/tidemill/dedupe/pkg/dedupe/engine/accumulator"
	"github.com/tidemill/dedupe/pkg/dedupe/engine/merge"
	"github.com/tidemill/dedupe/pkg/dedupe/engine/resolver"
	"github.com/tidemill/dedupe/pkg/dedupe/recorder"
)

// RunnerParams defines the dependencies for NewRunnerProvider.
type RunnerParams struct {
	fx.In
	Store         port.RecordStore
	AccessChecker port.AccessChecker
	Accumulator   accumulator.Accumulator
	Resolver      *resolver.GroupResolver
	Merger        *merge.Executor
	Recorder      *recorder.RunRecorder
	Normalizer    port.Normalizer
	ConfigStore   port.ConfigurationStore `optional:"true"`
	Listeners     []port.RunListener      `group:"run_listeners"`
	Metrics       coremetrics.Recorder    `optional:"true"`
	Tracer        coremetrics.Tracer      `optional:"true"`
}

// NewRunnerProvider assembles the Runner from its Fx-provided collaborators.
func NewRunnerProvider(p RunnerParams) *Runner {
	opts := []RunnerOption{WithListeners(p.Listeners...)}
	if p.ConfigStore != nil {
		opts = append(opts, WithConfigurationStore(p.ConfigStore))
	}
	if p.Metrics != nil {
		opts = append(opts, WithMetrics(p.Metrics))
	}
	if p.Tracer != nil {
		opts = append(opts, WithTracer(p.Tracer))
	}
	return NewRunner(p.Store, p.AccessChecker, p.Accumulator, p.Resolver, p.Merger, p.Recorder, p.Normalizer, opts...)
}

// MergeExecutorParams defines the dependencies for the merge executor provider.
type MergeExecutorParams struct {
	fx.In
	Store        port.RecordStore
	Introspector port.SchemaIntrospector
	Tracer       coremetrics.Tracer `optional:"true"`
}

// NewMergeExecutorProvider assembles the merge executor.
func NewMergeExecutorProvider(p MergeExecutorParams) *merge.Executor {
	return merge.NewExecutor(p.Store, p.Introspector, p.Tracer)
}

// Module provides the run engine components to Fx.
var Module = fx.Options(
	fx.Provide(resolver.NewGroupResolver),
	fx.Provide(NewMergeExecutorProvider),
	fx.Provide(recorder.NewRunRecorder),
	fx.Provide(NewRunnerProvider),
)
