// Package recordstore provides a GORM-backed record store over configured
// table mappings. Each object type is mapped to a table with an id column,
// a creation-timestamp column, and named field columns; child relationships
// are reparented inside the merge transaction.
package recordstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/tidemill/dedupe/pkg/dedupe/core/config"
	model "github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	"github.com/tidemill/dedupe/pkg/dedupe/core/port"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/exception"
	logger "github.com/tidemill/dedupe/pkg/dedupe/support/util/logger"
)

const moduleName = "record_store"

// SQLRecordStore reads and merges records on a relational database using the
// table mappings from the record_store configuration block.
type SQLRecordStore struct {
	db      *gorm.DB
	objects map[string]config.RecordObjectConfig
}

// NewSQLRecordStore creates a store over the given connection and mappings.
func NewSQLRecordStore(db *gorm.DB, storeCfg config.RecordStoreConfig) *SQLRecordStore {
	return &SQLRecordStore{db: db, objects: storeCfg.Objects}
}

var _ port.RecordStore = (*SQLRecordStore)(nil)
var _ port.SchemaIntrospector = (*SQLRecordStore)(nil)

func (s *SQLRecordStore) objectConfig(objectType string) (config.RecordObjectConfig, error) {
	obj, ok := s.objects[objectType]
	if !ok {
		return config.RecordObjectConfig{}, exception.NewConfigError(moduleName, "object type '%s' is not mapped in record_store.objects", objectType)
	}
	if obj.Table == "" {
		return config.RecordObjectConfig{}, exception.NewConfigError(moduleName, "object type '%s' has no table configured", objectType)
	}
	if obj.IDColumn == "" {
		obj.IDColumn = "id"
	}
	if obj.CreatedAtColumn == "" {
		obj.CreatedAtColumn = "created_at"
	}
	return obj, nil
}

type recordQuery struct {
	cfg          config.RecordObjectConfig
	fieldNames   []string
	fieldColumns []string
}

func newRecordQuery(obj config.RecordObjectConfig) *recordQuery {
	q := &recordQuery{cfg: obj}
	for name := range obj.FieldColumns {
		q.fieldNames = append(q.fieldNames, name)
	}
	sort.Strings(q.fieldNames)
	for _, name := range q.fieldNames {
		q.fieldColumns = append(q.fieldColumns, obj.FieldColumns[name])
	}
	return q
}

// selectColumns returns the column list for a scan: id, created-at, then the
// mapped field columns in a stable order.
func (q *recordQuery) selectColumns() []string {
	cols := []string{q.cfg.IDColumn, q.cfg.CreatedAtColumn}
	cols = append(cols, q.fieldColumns...)
	return cols
}

// scanRows converts raw result maps into SourceRecords.
func (q *recordQuery) scanRows(rows []map[string]interface{}) []*model.SourceRecord {
	records := make([]*model.SourceRecord, 0, len(rows))
	for _, row := range rows {
		record := &model.SourceRecord{
			ID:     stringValue(row[q.cfg.IDColumn]),
			Fields: make(map[string]string, len(q.fieldNames)),
		}
		record.CreatedAt = timeValue(row[q.cfg.CreatedAtColumn])
		for i, name := range q.fieldNames {
			record.Fields[name] = stringValue(row[q.fieldColumns[i]])
		}
		records = append(records, record)
	}
	return records
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func timeValue(v interface{}) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val
	case string:
		if t, err := time.Parse(time.RFC3339, val); err == nil {
			return t
		}
		if t, err := time.Parse("2006-01-02 15:04:05", val); err == nil {
			return t
		}
	case []byte:
		return timeValue(string(val))
	}
	return time.Time{}
}

// ScanPartition returns the next partition of at most limit records, ordered
// by id so the cursor stays stable across calls within one run.
func (s *SQLRecordStore) ScanPartition(ctx context.Context, objectType, cursor string, limit int) (*port.ScanPage, error) {
	obj, err := s.objectConfig(objectType)
	if err != nil {
		return nil, err
	}
	q := newRecordQuery(obj)

	tx := s.db.WithContext(ctx).Table(obj.Table).
		Select(q.selectColumns()).
		Order(obj.IDColumn + " ASC").
		Limit(limit)
	if cursor != "" {
		tx = tx.Where(obj.IDColumn+" > ?", cursor)
	}

	var rows []map[string]interface{}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, exception.NewDedupError(moduleName, fmt.Sprintf("failed to scan partition of '%s'", objectType), err, true)
	}

	page := &port.ScanPage{Records: q.scanRows(rows)}
	if len(page.Records) == limit && limit > 0 {
		page.NextCursor = page.Records[len(page.Records)-1].ID
	}
	return page, nil
}

// FetchByIDs returns the full records for the given ids.
func (s *SQLRecordStore) FetchByIDs(ctx context.Context, objectType string, ids []string) ([]*model.SourceRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	obj, err := s.objectConfig(objectType)
	if err != nil {
		return nil, err
	}
	q := newRecordQuery(obj)

	var rows []map[string]interface{}
	err = s.db.WithContext(ctx).Table(obj.Table).
		Select(q.selectColumns()).
		Where(obj.IDColumn+" IN ?", ids).
		Find(&rows).Error
	if err != nil {
		return nil, exception.NewDedupError(moduleName, fmt.Sprintf("failed to fetch records of '%s'", objectType), err, true)
	}
	return q.scanRows(rows), nil
}

// CountRecords returns the total number of records of the object type.
func (s *SQLRecordStore) CountRecords(ctx context.Context, objectType string) (int, error) {
	obj, err := s.objectConfig(objectType)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := s.db.WithContext(ctx).Table(obj.Table).Count(&count).Error; err != nil {
		return 0, exception.NewDedupError(moduleName, fmt.Sprintf("failed to count records of '%s'", objectType), err, true)
	}
	return int(count), nil
}

// MergeGroup reparents child rows to the master and deletes the duplicates
// inside one transaction.
func (s *SQLRecordStore) MergeGroup(ctx context.Context, objectType, masterID string, duplicateIDs []string, relationships []port.Relationship) error {
	if len(duplicateIDs) == 0 {
		return nil
	}
	obj, err := s.objectConfig(objectType)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rel := range relationships {
			childObj, err := s.objectConfig(rel.ChildObjectType)
			if err != nil {
				return err
			}
			result := tx.Table(childObj.Table).
				Where(rel.RelationshipField+" IN ?", duplicateIDs).
				Update(rel.RelationshipField, masterID)
			if result.Error != nil {
				return exception.NewDedupError(moduleName,
					fmt.Sprintf("failed to reparent '%s.%s' to master %s", rel.ChildObjectType, rel.RelationshipField, masterID),
					result.Error, true)
			}
			if result.RowsAffected > 0 {
				logger.Debugf("RecordStore: reparented %d '%s' rows to master %s", result.RowsAffected, rel.ChildObjectType, masterID)
			}
		}

		result := tx.Table(obj.Table).Where(obj.IDColumn+" IN ?", duplicateIDs).Delete(nil)
		if result.Error != nil {
			return exception.NewDedupError(moduleName,
				fmt.Sprintf("failed to delete duplicates of master %s", masterID), result.Error, true)
		}
		return nil
	})
}

// HasObjectType reports whether a mapping exists for the object type.
func (s *SQLRecordStore) HasObjectType(ctx context.Context, objectType string) (bool, error) {
	_, ok := s.objects[objectType]
	return ok, nil
}

// ChildRelationshipsOf returns the configured child relationships of the
// object type.
func (s *SQLRecordStore) ChildRelationshipsOf(ctx context.Context, objectType string) ([]port.Relationship, error) {
	obj, err := s.objectConfig(objectType)
	if err != nil {
		return nil, err
	}
	relationships := make([]port.Relationship, 0, len(obj.Relationships))
	for _, rel := range obj.Relationships {
		relationships = append(relationships, port.Relationship{
			RelationshipField: rel.RelationshipField,
			ChildObjectType:   rel.ChildObjectType,
		})
	}
	return relationships, nil
}
