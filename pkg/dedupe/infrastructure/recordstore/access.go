package recordstore

import (
	"context"

	"github.com/tidemill/dedupe/pkg/dedupe/core/config"
	"github.com/tidemill/dedupe/pkg/dedupe/core/port"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/exception"
)

// ConfigAccessChecker enforces the record store's access settings. Reads are
// always allowed; merges are denied when the store is marked read-only.
type ConfigAccessChecker struct {
	readOnly bool
}

// NewConfigAccessChecker creates a checker from the record store settings.
func NewConfigAccessChecker(storeCfg config.RecordStoreConfig) *ConfigAccessChecker {
	return &ConfigAccessChecker{readOnly: storeCfg.ReadOnly}
}

var _ port.AccessChecker = (*ConfigAccessChecker)(nil)

// Check returns nil when the operation is permitted.
func (c *ConfigAccessChecker) Check(ctx context.Context, objectType string, op port.Operation) error {
	if op == port.OperationMerge && c.readOnly {
		return exception.NewAccessDeniedError(moduleName, "merge of '%s' denied: record store is read-only", objectType)
	}
	return nil
}
