package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidemill/dedupe/pkg/dedupe/support/util/exception"
	logger "github.com/tidemill/dedupe/pkg/dedupe/support/util/logger"

	"github.com/google/uuid"
)

// RunStatus represents the state of a dedupe run.
type RunStatus string

const (
	RunStatusRunning             RunStatus = "RUNNING"
	RunStatusCompleted           RunStatus = "COMPLETED"
	RunStatusCompletedWithErrors RunStatus = "COMPLETED_WITH_ERRORS"
	RunStatusFailed              RunStatus = "FAILED"
)

// String returns the string representation of the RunStatus.
func (s RunStatus) String() string {
	return string(s)
}

// IsTerminal checks if the RunStatus represents a finished state.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusCompletedWithErrors, RunStatusFailed:
		return true
	default:
		return false
	}
}

// MergePhase represents the state of a single group's merge.
type MergePhase string

const (
	MergePhasePending     MergePhase = "PENDING"
	MergePhaseReparenting MergePhase = "REPARENTING"
	MergePhaseDeleting    MergePhase = "DELETING"
	MergePhaseMerged      MergePhase = "MERGED"
	MergePhaseFailed      MergePhase = "FAILED"
)

// String returns the string representation of the MergePhase.
func (p MergePhase) String() string {
	return string(p)
}

// FieldValues is a snapshot of the matched field values of a duplicate group,
// keyed by field identifier.
type FieldValues map[string]string

// Value implements the `driver.Valuer` interface, converting the FieldValues to a JSON string.
func (fv FieldValues) Value() (driver.Value, error) {
	if fv == nil {
		return "{}", nil
	}
	data, err := json.Marshal(fv)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the `sql.Scanner` interface, converting a JSON string to FieldValues.
func (fv *FieldValues) Scan(value interface{}) error {
	if value == nil {
		*fv = make(FieldValues)
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for FieldValues: %T", value)
	}

	if len(b) == 0 {
		*fv = make(FieldValues)
		return nil
	}

	if err := json.Unmarshal(b, fv); err != nil {
		return fmt.Errorf("failed to unmarshal FieldValues JSON: %w", err)
	}
	return nil
}

// IDList holds an ordered list of record ids.
type IDList []string

// Value implements the `driver.Valuer` interface, converting the IDList to a JSON string.
func (l IDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the `sql.Scanner` interface, converting a JSON string to an IDList.
func (l *IDList) Scan(value interface{}) error {
	if value == nil {
		*l = make(IDList, 0)
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for IDList: %T", value)
	}

	if len(b) == 0 {
		*l = make(IDList, 0)
		return nil
	}

	if err := json.Unmarshal(b, l); err != nil {
		return fmt.Errorf("failed to unmarshal IDList JSON: %w", err)
	}
	return nil
}

// DuplicateDelimiter separates record ids in GroupDetail.DuplicateRecordIDs.
const DuplicateDelimiter = ";"

// MatchFieldType classifies a match field for normalization rule selection.
type MatchFieldType string

const (
	// MatchFieldText selects the general text rule: lowercase, punctuation stripped,
	// whitespace collapsed.
	MatchFieldText MatchFieldType = "TEXT"
	// MatchFieldPhone selects the digits-only rule.
	MatchFieldPhone MatchFieldType = "PHONE"
	// MatchFieldEmail selects the lowercase+trim rule.
	MatchFieldEmail MatchFieldType = "EMAIL"
)

// MatchField identifies one field of the target object type used for grouping.
type MatchField struct {
	// Name is the field identifier in the source record.
	Name string `yaml:"name"`
	// Type selects the normalization rule. Defaults to TEXT when empty.
	Type MatchFieldType `yaml:"type,omitempty"`
}

// RunConfiguration holds the parameters of one dedupe run.
// It is immutable once a run starts.
type RunConfiguration struct {
	// ObjectType is the target object type whose records are scanned.
	ObjectType string `yaml:"object_type"`
	// MatchFields is the ordered list of fields whose normalized values form the fingerprint.
	MatchFields []MatchField `yaml:"match_fields"`
	// MasterStrategy is the named master-selection policy (e.g., "OldestCreated").
	MasterStrategy string `yaml:"master_strategy"`
	// PartitionSize bounds the number of records processed in one scan step.
	PartitionSize int `yaml:"partition_size"`
	// GridSize bounds the number of partitions absorbed or groups merged concurrently.
	GridSize int `yaml:"grid_size"`
	// DryRun reports duplicate groups without mutating any record when true.
	DryRun bool `yaml:"dry_run"`
	// ConfigurationName is the optional name this configuration was resolved from.
	ConfigurationName string `yaml:"configuration_name,omitempty"`
}

// DefaultPartitionSize is used when a configuration does not specify a partition size.
const DefaultPartitionSize = 200

// Built-in master-selection strategy names.
const (
	// StrategyOldestCreated keeps the record with the earliest creation timestamp.
	StrategyOldestCreated = "OldestCreated"
	// StrategyMostCompleteRecord keeps the record with the most populated fields.
	StrategyMostCompleteRecord = "MostCompleteRecord"
)

// Validate checks the configuration invariants that must hold before any scanning begins.
func (rc *RunConfiguration) Validate() error {
	if rc.ObjectType == "" {
		return exception.NewConfigError("config", "object type must not be empty")
	}
	if len(rc.MatchFields) == 0 {
		return exception.NewConfigError("config", "at least one match field is required for object type '%s'", rc.ObjectType)
	}
	for _, f := range rc.MatchFields {
		if f.Name == "" {
			return exception.NewConfigError("config", "match field name must not be empty")
		}
	}
	if rc.PartitionSize <= 0 {
		return exception.NewConfigError("config", "partition size must be positive, got %d", rc.PartitionSize)
	}
	if rc.MasterStrategy == "" {
		return exception.NewConfigError("config", "master strategy must not be empty")
	}
	return nil
}

// FieldNames returns the ordered field identifiers of the match fields.
func (rc *RunConfiguration) FieldNames() []string {
	names := make([]string, len(rc.MatchFields))
	for i, f := range rc.MatchFields {
		names[i] = f.Name
	}
	return names
}

// SourceRecord is the engine's read-side view of one record in the external store.
type SourceRecord struct {
	// ID is the stable, unique, comparable record id.
	ID string
	// CreatedAt is the record's creation timestamp, used by master selection.
	CreatedAt time.Time
	// Fields holds the record's field values keyed by identifier.
	Fields map[string]string
}

// FieldValue returns the raw value of the named field, or "" when absent.
func (r *SourceRecord) FieldValue(name string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[name]
}

// DuplicateGroup is one finalized group of records sharing a fingerprint.
// Instances live only within a run's execution; they are projected into
// GroupDetail rows for persistence.
type DuplicateGroup struct {
	// Fingerprint is the normalized group key shared by all members.
	Fingerprint string
	// MemberIDs are the ids of every record in the group (size >= 2).
	MemberIDs []string
	// MasterID is the canonical survivor, chosen once and never changed.
	MasterID string
	// MatchScore is the group's match confidence in [0,1]. Exact fingerprint
	// equality scores 1.0.
	MatchScore float64
	// FieldValues is the snapshot of the master's matched field values.
	FieldValues FieldValues
	// Phase tracks the group through the merge state machine.
	Phase MergePhase
	// MergeErr records the failure when Phase is FAILED.
	MergeErr error
}

// isValidMergeTransition checks if the phase transition for DuplicateGroup is valid.
func isValidMergeTransition(current, next MergePhase) bool {
	switch current {
	case MergePhasePending:
		return next == MergePhaseReparenting || next == MergePhaseFailed
	case MergePhaseReparenting:
		return next == MergePhaseDeleting || next == MergePhaseFailed
	case MergePhaseDeleting:
		return next == MergePhaseMerged || next == MergePhaseFailed
	default:
		// MERGED and FAILED are terminal.
		return false
	}
}

// TransitionTo safely transitions the merge phase of the group.
func (g *DuplicateGroup) TransitionTo(next MergePhase) error {
	if !isValidMergeTransition(g.Phase, next) {
		return fmt.Errorf("DuplicateGroup (fingerprint: %s): invalid phase transition: %s -> %s", g.Fingerprint, g.Phase, next)
	}
	g.Phase = next
	return nil
}

// MarkAsMerged updates the group phase to MERGED.
func (g *DuplicateGroup) MarkAsMerged() {
	if err := g.TransitionTo(MergePhaseMerged); err != nil {
		logger.Warnf("Could not update DuplicateGroup (fingerprint: %s) phase to MERGED: %v", g.Fingerprint, err)
		g.Phase = MergePhaseMerged
	}
}

// MarkAsMergeFailed updates the group phase to FAILED and records the error.
func (g *DuplicateGroup) MarkAsMergeFailed(err error) {
	if terr := g.TransitionTo(MergePhaseFailed); terr != nil {
		logger.Warnf("Could not update DuplicateGroup (fingerprint: %s) phase to FAILED: %v", g.Fingerprint, terr)
		g.Phase = MergePhaseFailed
	}
	g.MergeErr = err
}

// DuplicateIDs returns the non-master member ids, preserving member order.
func (g *DuplicateGroup) DuplicateIDs() []string {
	dups := make([]string, 0, len(g.MemberIDs)-1)
	for _, id := range g.MemberIDs {
		if id != g.MasterID {
			dups = append(dups, id)
		}
	}
	return dups
}

// RunResult is the persisted summary of one dedupe run. It is created with
// status RUNNING at run start and finalized exactly once at run end.
type RunResult struct {
	ID                string
	BatchJobID        string
	ConfigurationName string
	ObjectType        string
	IsDryRun          bool
	DuplicatesFound   int
	RecordsProcessed  int
	RecordsMerged     int
	ProcessingTimeMs  int64
	AverageMatchScore float64
	Status            RunStatus
	ErrorMessage      string
	StartTime         time.Time
	EndTime           *time.Time
	LastUpdated       time.Time
	Version           int
}

// GroupDetail is the persisted projection of one DuplicateGroup.
type GroupDetail struct {
	ID                 string
	RunResultID        string
	GroupKey           string
	RecordCount        int
	MatchScore         float64
	FieldValues        FieldValues
	MasterRecordID     string
	DuplicateRecordIDs string
	ObjectName         string
	ErrorMessage       string
	CreateTime         time.Time
}

// ParseDuplicateIDs parses the delimited DuplicateRecordIDs string into a slice.
// An empty string parses to an empty slice, not a one-element slice.
func (gd *GroupDetail) ParseDuplicateIDs() []string {
	if gd.DuplicateRecordIDs == "" {
		return []string{}
	}
	return strings.Split(gd.DuplicateRecordIDs, DuplicateDelimiter)
}

// FingerprintBucket is one durable accumulator row: the membership of a single
// fingerprint gathered across scan partitions of one run.
type FingerprintBucket struct {
	RunResultID string
	Fingerprint string
	MemberIDs   IDList
	LastUpdated time.Time
}

// NewID generates a new UUID string.
func NewID() string {
	return uuid.New().String()
}

// NewRunResult creates a RunResult in the RUNNING state with a generated batch job id.
func NewRunResult(cfg *RunConfiguration) *RunResult {
	now := time.Now()
	return &RunResult{
		ID:                NewID(),
		BatchJobID:        NewID(),
		ConfigurationName: cfg.ConfigurationName,
		ObjectType:        cfg.ObjectType,
		IsDryRun:          cfg.DryRun,
		Status:            RunStatusRunning,
		StartTime:         now,
		LastUpdated:       now,
	}
}

// isValidRunTransition checks if the state transition for RunResult is valid.
func isValidRunTransition(current, next RunStatus) bool {
	switch current {
	case RunStatusRunning:
		return next == RunStatusCompleted || next == RunStatusCompletedWithErrors || next == RunStatusFailed
	default:
		// Terminal states never transition.
		return false
	}
}

// TransitionTo safely transitions the state of the RunResult.
// Fields other than Status and LastUpdated must be set separately by the caller.
func (rr *RunResult) TransitionTo(newStatus RunStatus) error {
	if !isValidRunTransition(rr.Status, newStatus) {
		return fmt.Errorf("RunResult (ID: %s): invalid state transition: %s -> %s", rr.ID, rr.Status, newStatus)
	}
	rr.Status = newStatus
	rr.LastUpdated = time.Now()
	return nil
}

// MarkAsCompleted updates the RunResult status to COMPLETED.
func (rr *RunResult) MarkAsCompleted() {
	if err := rr.TransitionTo(RunStatusCompleted); err != nil {
		logger.Warnf("Could not update RunResult (ID: %s) status to COMPLETED: %v", rr.ID, err)
		rr.Status = RunStatusCompleted
	}
	now := time.Now()
	rr.EndTime = &now
	rr.LastUpdated = now
}

// MarkAsCompletedWithErrors updates the RunResult status to COMPLETED_WITH_ERRORS
// and records the summarized group failures.
func (rr *RunResult) MarkAsCompletedWithErrors(summary string) {
	if err := rr.TransitionTo(RunStatusCompletedWithErrors); err != nil {
		logger.Warnf("Could not update RunResult (ID: %s) status to COMPLETED_WITH_ERRORS: %v", rr.ID, err)
		rr.Status = RunStatusCompletedWithErrors
	}
	rr.ErrorMessage = summary
	now := time.Now()
	rr.EndTime = &now
	rr.LastUpdated = now
}

// MarkAsFailed updates the RunResult status to FAILED and records the error.
func (rr *RunResult) MarkAsFailed(err error) {
	if terr := rr.TransitionTo(RunStatusFailed); terr != nil {
		logger.Warnf("Could not update RunResult (ID: %s) status to FAILED: %v", rr.ID, terr)
		rr.Status = RunStatusFailed
	}
	if err != nil {
		rr.ErrorMessage = exception.ExtractErrorMessage(err)
	}
	now := time.Now()
	rr.EndTime = &now
	rr.LastUpdated = now
}

// NewGroupDetail projects a finalized DuplicateGroup into its persisted form.
func NewGroupDetail(runResultID, objectName string, g *DuplicateGroup) *GroupDetail {
	gd := &GroupDetail{
		ID:             NewID(),
		RunResultID:    runResultID,
		GroupKey:       g.Fingerprint,
		RecordCount:    len(g.MemberIDs),
		MatchScore:     g.MatchScore,
		FieldValues:    g.FieldValues,
		MasterRecordID: g.MasterID,
		ObjectName:     objectName,
		CreateTime:     time.Now(),
	}
	gd.DuplicateRecordIDs = strings.Join(g.DuplicateIDs(), DuplicateDelimiter)
	if g.MergeErr != nil {
		gd.ErrorMessage = exception.ExtractErrorMessage(g.MergeErr)
	}
	return gd
}
