// Package strategy implements master-selection policies. A strategy picks the
// canonical survivor of a duplicate group; every other member is merged into
// it. Strategies are pure functions of the member records, so the same group
// always yields the same master.
package strategy

import (
	"sync"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/exception"
)

const moduleName = "strategy"

// MasterStrategy selects the master record of a duplicate group.
type MasterStrategy interface {
	// Name returns the strategy's registered name.
	Name() string

	// SelectMaster picks the master from the group's member records.
	// The slice is never empty. Selection must be deterministic: ties are
	// broken by smallest record id.
	SelectMaster(records []*model.SourceRecord) (*model.SourceRecord, error)
}

var (
	strategyRegistry = make(map[string]MasterStrategy)
	strategyMutex    sync.RWMutex
)

// Register registers a strategy under its name. Registering a name twice
// overwrites the earlier entry.
func Register(s MasterStrategy) {
	strategyMutex.Lock()
	defer strategyMutex.Unlock()
	strategyRegistry[s.Name()] = s
}

// ForName retrieves the strategy registered under name. An unknown name is a
// configuration error.
func ForName(name string) (MasterStrategy, error) {
	strategyMutex.RLock()
	defer strategyMutex.RUnlock()
	s, ok := strategyRegistry[name]
	if !ok {
		return nil, exception.NewConfigError(moduleName, "no master strategy registered for name '%s'", name)
	}
	return s, nil
}

func init() {
	Register(&OldestCreated{})
	Register(&MostCompleteRecord{})
}

// OldestCreated keeps the record with the earliest creation timestamp.
// Ties on the timestamp are broken by smallest record id.
type OldestCreated struct{}

// Name returns the registered strategy name.
func (s *OldestCreated) Name() string { return model.StrategyOldestCreated }

// SelectMaster returns the member with the earliest CreatedAt.
func (s *OldestCreated) SelectMaster(records []*model.SourceRecord) (*model.SourceRecord, error) {
	if len(records) == 0 {
		return nil, exception.NewValidationError(moduleName, "cannot select a master from an empty group", nil)
	}
	master := records[0]
	for _, r := range records[1:] {
		if r.CreatedAt.Before(master.CreatedAt) ||
			(r.CreatedAt.Equal(master.CreatedAt) && r.ID < master.ID) {
			master = r
		}
	}
	return master, nil
}

// MostCompleteRecord keeps the record with the most non-blank field values.
// Ties are broken by earliest creation timestamp, then by smallest record id.
type MostCompleteRecord struct{}

// Name returns the registered strategy name.
func (s *MostCompleteRecord) Name() string { return model.StrategyMostCompleteRecord }

// SelectMaster returns the member with the highest populated-field count.
func (s *MostCompleteRecord) SelectMaster(records []*model.SourceRecord) (*model.SourceRecord, error) {
	if len(records) == 0 {
		return nil, exception.NewValidationError(moduleName, "cannot select a master from an empty group", nil)
	}
	master := records[0]
	masterScore := completeness(master)
	for _, r := range records[1:] {
		score := completeness(r)
		switch {
		case score > masterScore:
			master, masterScore = r, score
		case score == masterScore:
			if r.CreatedAt.Before(master.CreatedAt) ||
				(r.CreatedAt.Equal(master.CreatedAt) && r.ID < master.ID) {
				master = r
			}
		}
	}
	return master, nil
}

// completeness counts the record's non-blank field values.
func completeness(r *model.SourceRecord) int {
	n := 0
	for _, v := range r.Fields {
		if v != "" {
			n++
		}
	}
	return n
}
