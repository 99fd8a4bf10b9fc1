package sql

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	model "github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	repository "github.com/tidemill/dedupe/pkg/dedupe/core/domain/repository"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/exception"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/logger"
)

// GormRunRepository implements repository.RunRepository over a GORM handle.
type GormRunRepository struct {
	db *gorm.DB

	// appendMu serializes bucket appends within this process. Cross-process
	// serialization relies on the transactional read-modify-write below.
	appendMu sync.Mutex
}

// NewGormRunRepository creates a new GormRunRepository.
func NewGormRunRepository(db *gorm.DB) repository.RunRepository {
	return &GormRunRepository{db: db}
}

var _ repository.RunRepository = (*GormRunRepository)(nil)

// --- RunResult implementation ---

func (r *GormRunRepository) SaveRunResult(ctx context.Context, result *model.RunResult) error {
	const op = "GormRunRepository.SaveRunResult"
	entity := fromDomainRunResult(result)

	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return exception.NewDedupError(op, fmt.Sprintf("failed to save RunResult (ID: %s)", result.ID), err, true)
	}
	return nil
}

func (r *GormRunRepository) UpdateRunResult(ctx context.Context, result *model.RunResult) error {
	const op = "GormRunRepository.UpdateRunResult"

	originalVersion := result.Version
	result.Version++
	entity := fromDomainRunResult(result)

	tx := r.db.WithContext(ctx).
		Model(&RunResultEntity{}).
		Where("id = ? AND version = ?", entity.ID, originalVersion).
		Updates(entity)
	if tx.Error != nil {
		result.Version = originalVersion
		return exception.NewDedupError(op, fmt.Sprintf("failed to update RunResult (ID: %s)", result.ID), tx.Error, true)
	}
	if tx.RowsAffected == 0 {
		result.Version = originalVersion
		logger.Warnf("%s: optimistic lock failure for RunResult (ID: %s, version: %d)", op, result.ID, originalVersion)
		return exception.NewDedupError(op,
			fmt.Sprintf("optimistic lock failure updating RunResult (ID: %s)", result.ID), nil, true)
	}
	return nil
}

func (r *GormRunRepository) FindRunResultByID(ctx context.Context, id string) (*model.RunResult, error) {
	const op = "GormRunRepository.FindRunResultByID"

	var entity RunResultEntity
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRunResultNotFound
		}
		return nil, exception.NewDedupError(op, fmt.Sprintf("failed to find RunResult (ID: %s)", id), err, true)
	}
	return toDomainRunResult(&entity), nil
}

func (r *GormRunRepository) FindRunResultByBatchJobID(ctx context.Context, batchJobID string) (*model.RunResult, error) {
	const op = "GormRunRepository.FindRunResultByBatchJobID"

	var entity RunResultEntity
	err := r.db.WithContext(ctx).Where("batch_job_id = ?", batchJobID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRunResultNotFound
		}
		return nil, exception.NewDedupError(op, fmt.Sprintf("failed to find RunResult (batchJobId: %s)", batchJobID), err, true)
	}
	return toDomainRunResult(&entity), nil
}

// --- GroupDetail implementation ---

func (r *GormRunRepository) SaveGroupDetails(ctx context.Context, details []*model.GroupDetail) error {
	const op = "GormRunRepository.SaveGroupDetails"
	if len(details) == 0 {
		return nil
	}

	entities := make([]*GroupDetailEntity, len(details))
	for i, d := range details {
		entities[i] = fromDomainGroupDetail(d)
	}
	if err := r.db.WithContext(ctx).Create(entities).Error; err != nil {
		return exception.NewDedupError(op, fmt.Sprintf("failed to save %d group details", len(details)), err, true)
	}
	return nil
}

func (r *GormRunRepository) CountGroupDetails(ctx context.Context, runResultID string) (int, error) {
	const op = "GormRunRepository.CountGroupDetails"

	var count int64
	err := r.db.WithContext(ctx).
		Model(&GroupDetailEntity{}).
		Where("run_result_id = ?", runResultID).
		Count(&count).Error
	if err != nil {
		return 0, exception.NewDedupError(op, fmt.Sprintf("failed to count group details (runResultId: %s)", runResultID), err, true)
	}
	return int(count), nil
}

func (r *GormRunRepository) FindGroupDetails(ctx context.Context, runResultID string, offset, limit int) ([]*model.GroupDetail, error) {
	const op = "GormRunRepository.FindGroupDetails"

	var entities []*GroupDetailEntity
	err := r.db.WithContext(ctx).
		Where("run_result_id = ?", runResultID).
		Order("match_score DESC, group_key ASC").
		Offset(offset).
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, exception.NewDedupError(op, fmt.Sprintf("failed to find group details (runResultId: %s)", runResultID), err, true)
	}

	details := make([]*model.GroupDetail, len(entities))
	for i, e := range entities {
		details[i] = toDomainGroupDetail(e)
	}
	return details, nil
}

// --- FingerprintBucket implementation ---

func (r *GormRunRepository) AppendBucketMembers(ctx context.Context, runResultID, fingerprint string, memberIDs []string) error {
	const op = "GormRunRepository.AppendBucketMembers"
	if len(memberIDs) == 0 {
		return nil
	}

	r.appendMu.Lock()
	defer r.appendMu.Unlock()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entity FingerprintBucketEntity
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("run_result_id = ? AND fingerprint = ?", runResultID, fingerprint).
			First(&entity).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			entity = FingerprintBucketEntity{
				RunResultID: runResultID,
				Fingerprint: fingerprint,
			}
		case err != nil:
			return err
		}

		entity.MemberIDs = mergeMemberIDs(entity.MemberIDs, memberIDs)
		entity.MemberCount = len(entity.MemberIDs)
		entity.LastUpdated = time.Now()

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_result_id"}, {Name: "fingerprint"}},
			UpdateAll: true,
		}).Create(&entity).Error
	})
	if err != nil {
		return exception.NewDedupError(op,
			fmt.Sprintf("failed to append bucket members (runResultId: %s)", runResultID), err, true)
	}
	return nil
}

func (r *GormRunRepository) FindDuplicateBuckets(ctx context.Context, runResultID string) ([]*model.FingerprintBucket, error) {
	const op = "GormRunRepository.FindDuplicateBuckets"

	var entities []*FingerprintBucketEntity
	err := r.db.WithContext(ctx).
		Where("run_result_id = ? AND member_count >= ?", runResultID, 2).
		Order("fingerprint ASC").
		Find(&entities).Error
	if err != nil {
		return nil, exception.NewDedupError(op, fmt.Sprintf("failed to find duplicate buckets (runResultId: %s)", runResultID), err, true)
	}

	buckets := make([]*model.FingerprintBucket, len(entities))
	for i, e := range entities {
		buckets[i] = toDomainFingerprintBucket(e)
	}
	return buckets, nil
}

func (r *GormRunRepository) DeleteBuckets(ctx context.Context, runResultID string) error {
	const op = "GormRunRepository.DeleteBuckets"

	err := r.db.WithContext(ctx).
		Where("run_result_id = ?", runResultID).
		Delete(&FingerprintBucketEntity{}).Error
	if err != nil {
		return exception.NewDedupError(op, fmt.Sprintf("failed to delete buckets (runResultId: %s)", runResultID), err, true)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *GormRunRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// mergeMemberIDs appends ids into members, skipping ids already present.
func mergeMemberIDs(members model.IDList, ids []string) model.IDList {
	seen := make(map[string]struct{}, len(members))
	for _, id := range members {
		seen[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	return members
}
