// Package query is the read side of run bookkeeping: run summaries and
// paginated duplicate-group details. Every read checks access before its
// first repository query; a denied caller learns nothing about which runs
// exist.
package query

import (
	"context"
	"errors"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/repository"
	"github.com/tidemill/dedupe/pkg/dedupe/core/port"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/exception"
)

const moduleName = "query"

// Service answers read queries over persisted runs.
type Service struct {
	repo    repository.RunRepository
	checker port.AccessChecker
}

// NewService creates a query Service over the repository and access checker.
func NewService(repo repository.RunRepository, checker port.AccessChecker) *Service {
	return &Service{repo: repo, checker: checker}
}

// runBookkeepingObject names the run summary data itself for access control.
// Reads are gated on it before any repository query, so a denied caller
// cannot probe which run ids or batch job ids exist.
const runBookkeepingObject = "RunResult"

// GetRunResultByJob returns the run summary for a batch job id. An unknown id
// is a not-found error; an unauthorized caller gets access-denied without
// any repository query being issued.
func (s *Service) GetRunResultByJob(ctx context.Context, batchJobID string) (*model.RunResult, error) {
	if err := s.checker.Check(ctx, runBookkeepingObject, port.OperationRead); err != nil {
		return nil, err
	}
	result, err := s.repo.FindRunResultByBatchJobID(ctx, batchJobID)
	if err != nil {
		if errors.Is(err, repository.ErrRunResultNotFound) {
			return nil, exception.NewNotFoundError(moduleName, "no run result for batch job '%s'", batchJobID)
		}
		return nil, exception.NewDedupError(moduleName, "failed to load run result", err, true)
	}
	if err := s.checker.Check(ctx, result.ObjectType, port.OperationRead); err != nil {
		return nil, err
	}
	return result, nil
}

// GetGroupCount returns the number of duplicate groups recorded for a run.
func (s *Service) GetGroupCount(ctx context.Context, runResultID string) (int, error) {
	if err := s.checkRunAccess(ctx, runResultID); err != nil {
		return 0, err
	}
	count, err := s.repo.CountGroupDetails(ctx, runResultID)
	if err != nil {
		return 0, exception.NewDedupError(moduleName, "failed to count group details", err, true)
	}
	return count, nil
}

// GetGroups returns one page of a run's groups ordered by descending match
// score. pageNumber is 1-based; non-positive page arguments are a caller
// error. A page beyond the last group is empty, not an error.
func (s *Service) GetGroups(ctx context.Context, runResultID string, pageSize, pageNumber int) ([]*model.GroupDetail, error) {
	if pageSize <= 0 {
		return nil, exception.NewValidationError(moduleName, "page size must be positive", nil)
	}
	if pageNumber <= 0 {
		return nil, exception.NewValidationError(moduleName, "page number must be positive (pages are 1-based)", nil)
	}
	if err := s.checkRunAccess(ctx, runResultID); err != nil {
		return nil, err
	}

	offset := (pageNumber - 1) * pageSize
	details, err := s.repo.FindGroupDetails(ctx, runResultID, offset, pageSize)
	if err != nil {
		return nil, exception.NewDedupError(moduleName, "failed to load group details page", err, true)
	}
	return details, nil
}

// ToMap projects a GroupDetail into a generic map for transport or templating.
// DuplicateRecordIDs is returned as a slice; an empty delimited string yields
// an empty slice.
func (s *Service) ToMap(detail *model.GroupDetail) map[string]interface{} {
	return map[string]interface{}{
		"id":                 detail.ID,
		"runResultId":        detail.RunResultID,
		"groupKey":           detail.GroupKey,
		"recordCount":        detail.RecordCount,
		"matchScore":         detail.MatchScore,
		"fieldValues":        map[string]string(detail.FieldValues),
		"masterRecordId":     detail.MasterRecordID,
		"duplicateRecordIds": detail.ParseDuplicateIDs(),
		"objectName":         detail.ObjectName,
		"errorMessage":       detail.ErrorMessage,
	}
}

// checkRunAccess gates the read on the bookkeeping data before touching the
// repository, then checks READ access against the run's own object type.
func (s *Service) checkRunAccess(ctx context.Context, runResultID string) error {
	if err := s.checker.Check(ctx, runBookkeepingObject, port.OperationRead); err != nil {
		return err
	}
	result, err := s.repo.FindRunResultByID(ctx, runResultID)
	if err != nil {
		if errors.Is(err, repository.ErrRunResultNotFound) {
			return exception.NewNotFoundError(moduleName, "run result '%s' not found", runResultID)
		}
		return exception.NewDedupError(moduleName, "failed to load run result", err, true)
	}
	return s.checker.Check(ctx, result.ObjectType, port.OperationRead)
}
