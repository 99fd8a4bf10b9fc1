// Package port defines the collaborator contracts the dedupe engine consumes.
// External systems (the record store, schema introspection, access control,
// named-configuration storage) are reached only through these interfaces.
package port

import (
	"context"

	model "github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
)

// Normalizer canonicalizes field values for comparison.
// All methods are nil-safe: blank input yields the empty string, and every
// rule is idempotent (normalizing a normalized value is a no-op).
type Normalizer interface {
	// Normalize applies the general text rule: lowercase, punctuation stripped,
	// whitespace collapsed.
	Normalize(value string) string

	// NormalizePhone reduces a phone value to its digits.
	NormalizePhone(value string) string

	// NormalizeEmail lowercases and trims an email value.
	NormalizeEmail(value string) string

	// ClearCache discards the process-scoped memoization. Correctness never
	// depends on cache contents, only performance.
	ClearCache()
}

// Relationship describes one child relationship of an object type.
type Relationship struct {
	// RelationshipField is the foreign-key field on the child object that
	// references the parent.
	RelationshipField string
	// ChildObjectType is the child object type holding the reference.
	ChildObjectType string
}

// SchemaIntrospector lists the child relationships of an object type,
// needed for reparenting during merge.
type SchemaIntrospector interface {
	// ChildRelationshipsOf returns every child relationship of the object type.
	// An unknown object type is a configuration error.
	ChildRelationshipsOf(ctx context.Context, objectType string) ([]Relationship, error)
}

// Operation names the access-controlled operations of the engine.
type Operation string

const (
	OperationRead  Operation = "READ"
	OperationMerge Operation = "MERGE"
)

// AccessChecker enforces access control. Check returns nil when the caller may
// perform the operation, or an error wrapping exception.ErrAccessDenied.
type AccessChecker interface {
	Check(ctx context.Context, objectType string, op Operation) error
}

// ScanPage is one bounded partition of the record scan.
type ScanPage struct {
	// Records are the partition's records, at most the requested partition size.
	Records []*model.SourceRecord
	// NextCursor positions the following partition; empty when the scan is done.
	NextCursor string
}

// RecordStore is the engine's gateway to the external record store. Scan,
// reparent, and delete operations may block or be rate-limited; every method
// takes a context and is treated as potentially slow.
type RecordStore interface {
	// ScanPartition returns the next partition of at most limit records of the
	// object type, starting after cursor ("" starts the scan). Ordering must be
	// stable across calls within one run.
	ScanPartition(ctx context.Context, objectType, cursor string, limit int) (*ScanPage, error)

	// FetchByIDs returns the full records for the given ids.
	FetchByIDs(ctx context.Context, objectType string, ids []string) ([]*model.SourceRecord, error)

	// CountRecords returns the total number of records of the object type.
	CountRecords(ctx context.Context, objectType string) (int, error)

	// MergeGroup reparents every child row referencing a duplicate id to the
	// master id and deletes the duplicate records, as one atomic unit of work.
	// A rejection by the store surfaces as a validation failure scoped to the
	// group.
	MergeGroup(ctx context.Context, objectType, masterID string, duplicateIDs []string, relationships []Relationship) error

	// HasObjectType reports whether the store knows the object type.
	HasObjectType(ctx context.Context, objectType string) (bool, error)
}

// ConfigurationStore resolves a named configuration into run parameters.
type ConfigurationStore interface {
	// Resolve returns the RunConfiguration stored under name, or an error
	// wrapping exception.ErrNotFound.
	Resolve(ctx context.Context, name string) (*model.RunConfiguration, error)
}

// RunListener observes the lifecycle of a run. Implementations must not
// mutate the models they receive.
type RunListener interface {
	// BeforeRun is called after the RunResult is created, before the first partition.
	BeforeRun(ctx context.Context, result *model.RunResult)

	// AfterPartition is called after each partition is absorbed.
	AfterPartition(ctx context.Context, result *model.RunResult, partitionSize int)

	// AfterGroup is called after each group is merged or reported.
	AfterGroup(ctx context.Context, result *model.RunResult, group *model.DuplicateGroup)

	// AfterRun is called once the RunResult reached a terminal status.
	AfterRun(ctx context.Context, result *model.RunResult)
}
