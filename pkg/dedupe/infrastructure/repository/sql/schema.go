// Package sql implements the run repository over GORM.
package sql

import (
	"time"

	model "github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
)

// RunResultEntity is a schema model used for persistence.
type RunResultEntity struct {
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
	Status            model.RunStatus
	ErrorMessage      string
	StartTime         time.Time
	EndTime           *time.Time
	LastUpdated       time.Time
	Version           int
}

func (RunResultEntity) TableName() string {
	return "dedupe_run_result"
}

// GroupDetailEntity is a schema model used for persistence.
type GroupDetailEntity struct {
	ID                 string
	RunResultID        string
	GroupKey           string
	RecordCount        int
	MatchScore         float64
	FieldValues        model.FieldValues
	MasterRecordID     string
	DuplicateRecordIDs string
	ObjectName         string
	ErrorMessage       string
	CreateTime         time.Time
}

func (GroupDetailEntity) TableName() string {
	return "dedupe_group_detail"
}

// FingerprintBucketEntity is a schema model used for persistence.
// The (run_result_id, fingerprint) pair is the primary key.
type FingerprintBucketEntity struct {
	RunResultID string       `gorm:"primaryKey"`
	Fingerprint string       `gorm:"primaryKey"`
	MemberIDs   model.IDList
	MemberCount int
	LastUpdated time.Time
}

func (FingerprintBucketEntity) TableName() string {
	return "dedupe_fingerprint_bucket"
}
