// Package metrics defines the observability contracts of the dedupe engine.
package metrics

import (
	"context"

	model "github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
)

// Recorder records run, partition, and group metrics.
type Recorder interface {
	// RecordRunStart records the start of a run.
	RecordRunStart(ctx context.Context, result *model.RunResult)

	// RecordRunEnd records a terminal run with its duration and outcome.
	RecordRunEnd(ctx context.Context, result *model.RunResult)

	// RecordPartition records one absorbed partition of the given size.
	RecordPartition(ctx context.Context, result *model.RunResult, size int)

	// RecordGroup records one merged or reported group.
	RecordGroup(ctx context.Context, result *model.RunResult, group *model.DuplicateGroup)
}

// Tracer creates spans around run and group execution.
type Tracer interface {
	// StartRunSpan starts a span for the run. The returned function ends the span.
	StartRunSpan(ctx context.Context, result *model.RunResult) (context.Context, func())

	// StartGroupSpan starts a span for one group's merge.
	StartGroupSpan(ctx context.Context, result *model.RunResult, fingerprint string) (context.Context, func())

	// RecordError records an error in the current span.
	RecordError(ctx context.Context, module string, err error)
}
