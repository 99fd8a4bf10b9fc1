// Package test provides in-memory fakes and factories shared by the engine's
// unit tests.
package test

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	"github.com/tidemill/dedupe/pkg/dedupe/core/port"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/exception"
)

// FakeRecordStore is an in-memory port.RecordStore. Records are held per
// object type; child rows can be registered so MergeGroup exercises
// reparenting. All methods are safe for concurrent use.
type FakeRecordStore struct {
	mu      sync.Mutex
	records map[string]map[string]*model.SourceRecord // objectType -> id -> record
	orders  map[string][]string                       // objectType -> stable scan order

	// children: childObjectType -> childID -> (relationshipField -> parentID)
	children map[string]map[string]map[string]string

	// Failure injection. When set, MergeGroup fails for the given master id.
	FailMergeForMaster map[string]error

	// MergedGroups records every successful MergeGroup call.
	MergedGroups [][]string
}

// NewFakeRecordStore creates an empty FakeRecordStore.
func NewFakeRecordStore() *FakeRecordStore {
	return &FakeRecordStore{
		records:            make(map[string]map[string]*model.SourceRecord),
		orders:             make(map[string][]string),
		children:           make(map[string]map[string]map[string]string),
		FailMergeForMaster: make(map[string]error),
	}
}

var _ port.RecordStore = (*FakeRecordStore)(nil)

// AddRecord registers a record under the object type. Scan order follows
// insertion order.
func (s *FakeRecordStore) AddRecord(objectType string, r *model.SourceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records[objectType] == nil {
		s.records[objectType] = make(map[string]*model.SourceRecord)
	}
	if _, exists := s.records[objectType][r.ID]; !exists {
		s.orders[objectType] = append(s.orders[objectType], r.ID)
	}
	s.records[objectType][r.ID] = r
}

// AddChild registers a child row referencing a parent record through the
// relationship field.
func (s *FakeRecordStore) AddChild(childObjectType, childID, relationshipField, parentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.children[childObjectType] == nil {
		s.children[childObjectType] = make(map[string]map[string]string)
	}
	if s.children[childObjectType][childID] == nil {
		s.children[childObjectType][childID] = make(map[string]string)
	}
	s.children[childObjectType][childID][relationshipField] = parentID
}

// ParentOf returns the parent id a child row currently references.
func (s *FakeRecordStore) ParentOf(childObjectType, childID, relationshipField string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.children[childObjectType][childID][relationshipField]
}

// Has reports whether a record of the object type still exists.
func (s *FakeRecordStore) Has(objectType, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[objectType][id]
	return ok
}

// ScanPartition returns at most limit records after the cursor. The cursor is
// the numeric offset into the stable insertion order.
func (s *FakeRecordStore) ScanPartition(ctx context.Context, objectType, cursor string, limit int) (*port.ScanPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	order := s.orders[objectType]
	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, exception.NewValidationError("fake_record_store", "invalid scan cursor", err)
		}
		start = n
	}

	end := start + limit
	if end > len(order) {
		end = len(order)
	}

	page := &port.ScanPage{}
	for _, id := range order[start:end] {
		if r, ok := s.records[objectType][id]; ok {
			page.Records = append(page.Records, r)
		}
	}
	if end < len(order) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

// FetchByIDs returns the records that still exist, in sorted id order.
func (s *FakeRecordStore) FetchByIDs(ctx context.Context, objectType string, ids []string) ([]*model.SourceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*model.SourceRecord
	for _, id := range ids {
		if r, ok := s.records[objectType][id]; ok {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// CountRecords returns the number of live records of the object type.
func (s *FakeRecordStore) CountRecords(ctx context.Context, objectType string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records[objectType]), nil
}

// MergeGroup reparents child rows referencing the duplicates to the master,
// then deletes the duplicates, atomically under the store lock.
func (s *FakeRecordStore) MergeGroup(ctx context.Context, objectType, masterID string, duplicateIDs []string, relationships []port.Relationship) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.FailMergeForMaster[masterID]; ok {
		return err
	}
	if _, ok := s.records[objectType][masterID]; !ok {
		return exception.NewNotFoundError("fake_record_store", "master record '%s' not found", masterID)
	}

	dupSet := make(map[string]struct{}, len(duplicateIDs))
	for _, id := range duplicateIDs {
		dupSet[id] = struct{}{}
	}

	for _, rel := range relationships {
		for _, fields := range s.children[rel.ChildObjectType] {
			if parent, ok := fields[rel.RelationshipField]; ok {
				if _, isDup := dupSet[parent]; isDup {
					fields[rel.RelationshipField] = masterID
				}
			}
		}
	}

	for _, id := range duplicateIDs {
		delete(s.records[objectType], id)
	}

	merged := append([]string{masterID}, duplicateIDs...)
	s.MergedGroups = append(s.MergedGroups, merged)
	return nil
}

// HasObjectType reports whether any record of the object type was ever added.
func (s *FakeRecordStore) HasObjectType(ctx context.Context, objectType string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[objectType]
	return ok, nil
}
