// Package logging provides a RunListener that logs run lifecycle events.
package logging

import (
	"context"

	model "github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	port "github.com/tidemill/dedupe/pkg/dedupe/core/port"
	logger "github.com/tidemill/dedupe/pkg/dedupe/support/util/logger"
)

type LoggingRunListener struct{}

func NewLoggingRunListener() port.RunListener {
	return &LoggingRunListener{}
}

func (l *LoggingRunListener) BeforeRun(ctx context.Context, result *model.RunResult) {
	logger.Infof("RunListener: BeforeRun - ObjectType: %s, ID: %s, DryRun: %t", result.ObjectType, result.ID, result.IsDryRun)
}

func (l *LoggingRunListener) AfterPartition(ctx context.Context, result *model.RunResult, partitionSize int) {
	logger.Debugf("RunListener: AfterPartition - ID: %s, Size: %d, Processed: %d", result.ID, partitionSize, result.RecordsProcessed)
}

func (l *LoggingRunListener) AfterGroup(ctx context.Context, result *model.RunResult, group *model.DuplicateGroup) {
	logger.Debugf("RunListener: AfterGroup - ID: %s, Master: %s, Members: %d, Phase: %s", result.ID, group.MasterID, len(group.MemberIDs), group.Phase)
}

func (l *LoggingRunListener) AfterRun(ctx context.Context, result *model.RunResult) {
	logger.Infof("RunListener: AfterRun - ID: %s, Status: %s, Found: %d, Merged: %d", result.ID, result.Status, result.DuplicatesFound, result.RecordsMerged)
}

var _ port.RunListener = (*LoggingRunListener)(nil)
