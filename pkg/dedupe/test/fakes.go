package test

import (
	"context"
	"sync"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	"github.com/tidemill/dedupe/pkg/dedupe/core/port"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/exception"
)

// StaticIntrospector is a port.SchemaIntrospector backed by a fixed map of
// object types to child relationships.
type StaticIntrospector struct {
	Relationships map[string][]port.Relationship
}

// NewStaticIntrospector creates a StaticIntrospector over the given map.
func NewStaticIntrospector(relationships map[string][]port.Relationship) *StaticIntrospector {
	return &StaticIntrospector{Relationships: relationships}
}

var _ port.SchemaIntrospector = (*StaticIntrospector)(nil)

// ChildRelationshipsOf returns the configured relationships of the object type.
func (i *StaticIntrospector) ChildRelationshipsOf(ctx context.Context, objectType string) ([]port.Relationship, error) {
	rels, ok := i.Relationships[objectType]
	if !ok {
		return nil, exception.NewConfigError("static_introspector", "unknown object type '%s'", objectType)
	}
	return rels, nil
}

// AllowAllAccessChecker grants every operation.
type AllowAllAccessChecker struct{}

var _ port.AccessChecker = (*AllowAllAccessChecker)(nil)

// Check always returns nil.
func (c *AllowAllAccessChecker) Check(ctx context.Context, objectType string, op port.Operation) error {
	return nil
}

// DenyAccessChecker denies the configured operations.
type DenyAccessChecker struct {
	// DeniedOps is the set of denied operations. An empty set denies everything.
	DeniedOps map[port.Operation]bool
}

var _ port.AccessChecker = (*DenyAccessChecker)(nil)

// Check returns an access-denied error for denied operations.
func (c *DenyAccessChecker) Check(ctx context.Context, objectType string, op port.Operation) error {
	if len(c.DeniedOps) == 0 || c.DeniedOps[op] {
		return exception.NewAccessDeniedError("deny_access_checker", "operation %s denied on object type '%s'", op, objectType)
	}
	return nil
}

// MapConfigurationStore is a port.ConfigurationStore over a plain map.
type MapConfigurationStore struct {
	Configurations map[string]model.RunConfiguration
}

var _ port.ConfigurationStore = (*MapConfigurationStore)(nil)

// Resolve returns the configuration stored under name.
func (s *MapConfigurationStore) Resolve(ctx context.Context, name string) (*model.RunConfiguration, error) {
	cfg, ok := s.Configurations[name]
	if !ok {
		return nil, exception.NewNotFoundError("map_configuration_store", "configuration '%s' not found", name)
	}
	cfg.ConfigurationName = name
	return &cfg, nil
}

// RecordingListener is a port.RunListener that captures every callback for
// later assertions.
type RecordingListener struct {
	mu             sync.Mutex
	BeforeRunCalls int
	Partitions     []int
	Groups         []*model.DuplicateGroup
	FinalStatuses  []model.RunStatus
}

var _ port.RunListener = (*RecordingListener)(nil)

// BeforeRun records the callback.
func (l *RecordingListener) BeforeRun(ctx context.Context, result *model.RunResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.BeforeRunCalls++
}

// AfterPartition records the partition size.
func (l *RecordingListener) AfterPartition(ctx context.Context, result *model.RunResult, partitionSize int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Partitions = append(l.Partitions, partitionSize)
}

// AfterGroup records the group.
func (l *RecordingListener) AfterGroup(ctx context.Context, result *model.RunResult, group *model.DuplicateGroup) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Groups = append(l.Groups, group)
}

// AfterRun records the terminal status.
func (l *RecordingListener) AfterRun(ctx context.Context, result *model.RunResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.FinalStatuses = append(l.FinalStatuses, result.Status)
}
