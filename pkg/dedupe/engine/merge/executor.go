// Package merge executes the merge of finalized duplicate groups. Each group
// walks the phase machine PENDING -> REPARENTING -> DELETING -> MERGED, with
// FAILED reachable from every non-terminal phase. Group failures are isolated:
// one failing group never blocks the others.
package merge

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	coremetrics "github.com/tidemill/dedupe/pkg/dedupe/core/metrics"
	"github.com/tidemill/dedupe/pkg/dedupe/core/port"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/exception"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/logger"
)

const moduleName = "merge"

// Executor merges duplicate groups through the record store.
type Executor struct {
	store        port.RecordStore
	introspector port.SchemaIntrospector
	tracer       coremetrics.Tracer
}

// NewExecutor creates an Executor. tracer may be nil, in which case no spans
// are created.
func NewExecutor(store port.RecordStore, introspector port.SchemaIntrospector, tracer coremetrics.Tracer) *Executor {
	return &Executor{store: store, introspector: introspector, tracer: tracer}
}

// ExecuteAll merges every group of the run. In dry-run mode groups are
// reported untouched and remain PENDING. Failures are collected per group and
// returned aggregated; successfully merged groups are final even when
// siblings fail.
func (e *Executor) ExecuteAll(ctx context.Context, cfg *model.RunConfiguration, result *model.RunResult, groups []*model.DuplicateGroup) error {
	if cfg.DryRun {
		logger.Infof("Dry run: %d duplicate groups reported for object type '%s', no records modified", len(groups), cfg.ObjectType)
		return nil
	}
	if len(groups) == 0 {
		return nil
	}

	relationships, err := e.introspector.ChildRelationshipsOf(ctx, cfg.ObjectType)
	if err != nil {
		return exception.NewDedupError(moduleName, "failed to introspect child relationships", err, false)
	}

	var errs *multierror.Error
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			// Remaining groups stay PENDING; the run is finalized as failed upstream.
			errs = multierror.Append(errs, err)
			break
		}
		if err := e.executeGroup(ctx, cfg.ObjectType, result, g, relationships); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// executeGroup merges one group, advancing its phase machine. Any store error
// marks the group FAILED with the cause retained on the group.
func (e *Executor) executeGroup(ctx context.Context, objectType string, result *model.RunResult, g *model.DuplicateGroup, relationships []port.Relationship) error {
	groupCtx := ctx
	if e.tracer != nil {
		var end func()
		groupCtx, end = e.tracer.StartGroupSpan(ctx, result, g.Fingerprint)
		defer end()
	}

	if err := g.TransitionTo(model.MergePhaseReparenting); err != nil {
		return e.fail(groupCtx, g, exception.NewDedupError(moduleName, "group is not mergeable", err, false))
	}

	// The store performs reparenting and deletion as one atomic unit; the
	// DELETING phase marks the point of no return for bookkeeping.
	if err := e.store.MergeGroup(groupCtx, objectType, g.MasterID, g.DuplicateIDs(), relationships); err != nil {
		return e.fail(groupCtx, g, exception.NewDedupError(moduleName, "record store rejected the merge", err, true))
	}

	if err := g.TransitionTo(model.MergePhaseDeleting); err != nil {
		logger.Warnf("Group %s: unexpected phase on delete transition: %v", g.Fingerprint, err)
	}
	g.MarkAsMerged()
	logger.Debugf("Merged group %s: master=%s duplicates=%d", g.Fingerprint, g.MasterID, len(g.DuplicateIDs()))
	return nil
}

// fail marks the group FAILED, records the error on the span, and returns it.
func (e *Executor) fail(ctx context.Context, g *model.DuplicateGroup, err error) error {
	g.MarkAsMergeFailed(err)
	if e.tracer != nil {
		e.tracer.RecordError(ctx, moduleName, err)
	}
	logger.Errorf("Group %s merge failed: %v", g.Fingerprint, err)
	return err
}
