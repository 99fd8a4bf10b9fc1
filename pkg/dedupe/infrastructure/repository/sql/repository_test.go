// Package sql_test provides unit tests for the SQL run repository.
package sql_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	model "github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	repository "github.com/tidemill/dedupe/pkg/dedupe/core/domain/repository"
	sqlrepo "github.com/tidemill/dedupe/pkg/dedupe/infrastructure/repository/sql"
)

// setupGormMock sets up the GORM mock environment for repository tests.
func setupGormMock(t *testing.T) (sqlmock.Sqlmock, repository.RunRepository) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return mock, sqlrepo.NewGormRunRepository(gormDB)
}

func newTestRunResult() *model.RunResult {
	cfg := &model.RunConfiguration{
		ObjectType:    "Account",
		MatchFields:   []model.MatchField{{Name: "name", Type: model.MatchFieldText}},
		MasterStrategy: model.StrategyOldestCreated,
	}
	return model.NewRunResult(cfg)
}

func TestGormRunRepository_SaveRunResult(t *testing.T) {
	mock, repo := setupGormMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `dedupe_run_result`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.SaveRunResult(context.Background(), newTestRunResult())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRunRepository_UpdateRunResult(t *testing.T) {
	mock, repo := setupGormMock(t)

	result := newTestRunResult()
	result.Version = 3
	result.RecordsProcessed = 42

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `dedupe_run_result` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpdateRunResult(context.Background(), result)
	assert.NoError(t, err)
	assert.Equal(t, 4, result.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRunRepository_UpdateRunResult_OptimisticLocking(t *testing.T) {
	mock, repo := setupGormMock(t)

	result := newTestRunResult()
	result.Version = 3

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `dedupe_run_result` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.UpdateRunResult(context.Background(), result)
	assert.Error(t, err)
	assert.Equal(t, 3, result.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func runResultColumns() []string {
	return []string{
		"id", "batch_job_id", "configuration_name", "object_type", "is_dry_run",
		"duplicates_found", "records_processed", "records_merged",
		"processing_time_ms", "average_match_score", "status", "error_message",
		"start_time", "end_time", "last_updated", "version",
	}
}

func TestGormRunRepository_FindRunResultByID(t *testing.T) {
	mock, repo := setupGormMock(t)

	now := time.Now()
	rows := sqlmock.NewRows(runResultColumns()).
		AddRow("run-1", "job-1", "accounts", "Account", false,
			3, 6, 3,
			int64(120), 1.0, string(model.RunStatusCompleted), "",
			now, nil, now, 1)
	mock.ExpectQuery("SELECT (.+) FROM `dedupe_run_result`").
		WillReturnRows(rows)

	result, err := repo.FindRunResultByID(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", result.ID)
	assert.Equal(t, "Account", result.ObjectType)
	assert.Equal(t, model.RunStatusCompleted, result.Status)
	assert.Equal(t, 3, result.DuplicatesFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRunRepository_FindRunResultByID_NotFound(t *testing.T) {
	mock, repo := setupGormMock(t)

	mock.ExpectQuery("SELECT (.+) FROM `dedupe_run_result`").
		WillReturnRows(sqlmock.NewRows(runResultColumns()))

	_, err := repo.FindRunResultByID(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrRunResultNotFound)
}

func TestGormRunRepository_FindRunResultByBatchJobID(t *testing.T) {
	mock, repo := setupGormMock(t)

	now := time.Now()
	rows := sqlmock.NewRows(runResultColumns()).
		AddRow("run-1", "job-7", "accounts", "Account", true,
			0, 0, 0,
			int64(0), 0.0, string(model.RunStatusRunning), "",
			now, nil, now, 0)
	mock.ExpectQuery("SELECT (.+) FROM `dedupe_run_result`").
		WillReturnRows(rows)

	result, err := repo.FindRunResultByBatchJobID(context.Background(), "job-7")
	require.NoError(t, err)
	assert.Equal(t, "job-7", result.BatchJobID)
	assert.True(t, result.IsDryRun)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRunRepository_SaveGroupDetails(t *testing.T) {
	mock, repo := setupGormMock(t)

	details := []*model.GroupDetail{
		{ID: model.NewID(), RunResultID: "run-1", GroupKey: "acme", RecordCount: 2, MatchScore: 1.0, MasterRecordID: "a1", CreateTime: time.Now()},
		{ID: model.NewID(), RunResultID: "run-1", GroupKey: "globex", RecordCount: 2, MatchScore: 1.0, MasterRecordID: "b1", CreateTime: time.Now()},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `dedupe_group_detail`").
		WillReturnResult(sqlmock.NewResult(2, 2))
	mock.ExpectCommit()

	err := repo.SaveGroupDetails(context.Background(), details)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRunRepository_SaveGroupDetails_Empty(t *testing.T) {
	mock, repo := setupGormMock(t)

	err := repo.SaveGroupDetails(context.Background(), nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRunRepository_CountGroupDetails(t *testing.T) {
	mock, repo := setupGormMock(t)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `dedupe_group_detail`").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	count, err := repo.CountGroupDetails(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestGormRunRepository_FindGroupDetails(t *testing.T) {
	mock, repo := setupGormMock(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "run_result_id", "group_key", "record_count", "match_score",
		"field_values", "master_record_id", "duplicate_record_ids",
		"object_name", "error_message", "create_time",
	}).
		AddRow("gd-1", "run-1", "acme", 2, 1.0, `{"name":"acme"}`, "a1", "a2", "Account", "", now).
		AddRow("gd-2", "run-1", "globex", 3, 1.0, `{"name":"globex"}`, "b1", "b2;b3", "Account", "", now)
	mock.ExpectQuery("SELECT (.+) FROM `dedupe_group_detail`").
		WillReturnRows(rows)

	details, err := repo.FindGroupDetails(context.Background(), "run-1", 0, 10)
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, "acme", details[0].GroupKey)
	assert.Equal(t, model.FieldValues{"name": "acme"}, details[0].FieldValues)
	assert.Equal(t, "b2;b3", details[1].DuplicateRecordIDs)
}

func TestGormRunRepository_AppendBucketMembers_NewBucket(t *testing.T) {
	mock, repo := setupGormMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM `dedupe_fingerprint_bucket`").
		WillReturnRows(sqlmock.NewRows([]string{
			"run_result_id", "fingerprint", "member_ids", "member_count", "last_updated",
		}))
	mock.ExpectExec("INSERT INTO `dedupe_fingerprint_bucket`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.AppendBucketMembers(context.Background(), "run-1", "acme", []string{"a1", "a2"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRunRepository_AppendBucketMembers_MergesExisting(t *testing.T) {
	mock, repo := setupGormMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM `dedupe_fingerprint_bucket`").
		WillReturnRows(sqlmock.NewRows([]string{
			"run_result_id", "fingerprint", "member_ids", "member_count", "last_updated",
		}).AddRow("run-1", "acme", `["a1"]`, 1, time.Now()))
	mock.ExpectExec("INSERT INTO `dedupe_fingerprint_bucket`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.AppendBucketMembers(context.Background(), "run-1", "acme", []string{"a1", "a2"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRunRepository_AppendBucketMembers_EmptyNoop(t *testing.T) {
	mock, repo := setupGormMock(t)

	err := repo.AppendBucketMembers(context.Background(), "run-1", "acme", nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRunRepository_FindDuplicateBuckets(t *testing.T) {
	mock, repo := setupGormMock(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"run_result_id", "fingerprint", "member_ids", "member_count", "last_updated",
	}).
		AddRow("run-1", "acme", `["a1","a2"]`, 2, now).
		AddRow("run-1", "globex", `["b1","b2","b3"]`, 3, now)
	mock.ExpectQuery("SELECT (.+) FROM `dedupe_fingerprint_bucket`").
		WillReturnRows(rows)

	buckets, err := repo.FindDuplicateBuckets(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, model.IDList{"a1", "a2"}, buckets[0].MemberIDs)
	assert.Equal(t, "globex", buckets[1].Fingerprint)
}

func TestGormRunRepository_DeleteBuckets(t *testing.T) {
	mock, repo := setupGormMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `dedupe_fingerprint_bucket`").
		WithArgs("run-1").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	err := repo.DeleteBuckets(context.Background(), "run-1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
