package metrics

import (
	"context"

	model "github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
)

// NoOpRecorder is an implementation of Recorder that does nothing.
// It is used when metrics are disabled or during testing.
type NoOpRecorder struct{}

// NewNoOpRecorder creates a new instance of NoOpRecorder.
func NewNoOpRecorder() Recorder {
	return &NoOpRecorder{}
}

// RecordRunStart does nothing.
func (r *NoOpRecorder) RecordRunStart(ctx context.Context, result *model.RunResult) {}

// RecordRunEnd does nothing.
func (r *NoOpRecorder) RecordRunEnd(ctx context.Context, result *model.RunResult) {}

// RecordPartition does nothing.
func (r *NoOpRecorder) RecordPartition(ctx context.Context, result *model.RunResult, size int) {}

// RecordGroup does nothing.
func (r *NoOpRecorder) RecordGroup(ctx context.Context, result *model.RunResult, group *model.DuplicateGroup) {
}

var _ Recorder = (*NoOpRecorder)(nil)

// NoOpTracer is an implementation of Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

// StartRunSpan returns the context unchanged.
func (t *NoOpTracer) StartRunSpan(ctx context.Context, result *model.RunResult) (context.Context, func()) {
	return ctx, func() {}
}

// StartGroupSpan returns the context unchanged.
func (t *NoOpTracer) StartGroupSpan(ctx context.Context, result *model.RunResult, fingerprint string) (context.Context, func()) {
	return ctx, func() {}
}

// RecordError does nothing.
func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

var _ Tracer = (*NoOpTracer)(nil)
