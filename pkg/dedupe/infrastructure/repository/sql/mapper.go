package sql

import (
	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
)

// --- Mapper functions ---

func fromDomainRunResult(rr *model.RunResult) *RunResultEntity {
	if rr == nil {
		return nil
	}
	return &RunResultEntity{
		ID:                rr.ID,
		BatchJobID:        rr.BatchJobID,
		ConfigurationName: rr.ConfigurationName,
		ObjectType:        rr.ObjectType,
		IsDryRun:          rr.IsDryRun,
		DuplicatesFound:   rr.DuplicatesFound,
		RecordsProcessed:  rr.RecordsProcessed,
		RecordsMerged:     rr.RecordsMerged,
		ProcessingTimeMs:  rr.ProcessingTimeMs,
		AverageMatchScore: rr.AverageMatchScore,
		Status:            rr.Status,
		ErrorMessage:      rr.ErrorMessage,
		StartTime:         rr.StartTime,
		EndTime:           rr.EndTime,
		LastUpdated:       rr.LastUpdated,
		Version:           rr.Version,
	}
}

func toDomainRunResult(entity *RunResultEntity) *model.RunResult {
	if entity == nil {
		return nil
	}
	return &model.RunResult{
		ID:                entity.ID,
		BatchJobID:        entity.BatchJobID,
		ConfigurationName: entity.ConfigurationName,
		ObjectType:        entity.ObjectType,
		IsDryRun:          entity.IsDryRun,
		DuplicatesFound:   entity.DuplicatesFound,
		RecordsProcessed:  entity.RecordsProcessed,
		RecordsMerged:     entity.RecordsMerged,
		ProcessingTimeMs:  entity.ProcessingTimeMs,
		AverageMatchScore: entity.AverageMatchScore,
		Status:            entity.Status,
		ErrorMessage:      entity.ErrorMessage,
		StartTime:         entity.StartTime,
		EndTime:           entity.EndTime,
		LastUpdated:       entity.LastUpdated,
		Version:           entity.Version,
	}
}

func fromDomainGroupDetail(gd *model.GroupDetail) *GroupDetailEntity {
	if gd == nil {
		return nil
	}
	return &GroupDetailEntity{
		ID:                 gd.ID,
		RunResultID:        gd.RunResultID,
		GroupKey:           gd.GroupKey,
		RecordCount:        gd.RecordCount,
		MatchScore:         gd.MatchScore,
		FieldValues:        gd.FieldValues,
		MasterRecordID:     gd.MasterRecordID,
		DuplicateRecordIDs: gd.DuplicateRecordIDs,
		ObjectName:         gd.ObjectName,
		ErrorMessage:       gd.ErrorMessage,
		CreateTime:         gd.CreateTime,
	}
}

func toDomainGroupDetail(entity *GroupDetailEntity) *model.GroupDetail {
	if entity == nil {
		return nil
	}
	return &model.GroupDetail{
		ID:                 entity.ID,
		RunResultID:        entity.RunResultID,
		GroupKey:           entity.GroupKey,
		RecordCount:        entity.RecordCount,
		MatchScore:         entity.MatchScore,
		FieldValues:        entity.FieldValues,
		MasterRecordID:     entity.MasterRecordID,
		DuplicateRecordIDs: entity.DuplicateRecordIDs,
		ObjectName:         entity.ObjectName,
		ErrorMessage:       entity.ErrorMessage,
		CreateTime:         entity.CreateTime,
	}
}

func toDomainFingerprintBucket(entity *FingerprintBucketEntity) *model.FingerprintBucket {
	if entity == nil {
		return nil
	}
	return &model.FingerprintBucket{
		RunResultID: entity.RunResultID,
		Fingerprint: entity.Fingerprint,
		MemberIDs:   entity.MemberIDs,
		LastUpdated: entity.LastUpdated,
	}
}
