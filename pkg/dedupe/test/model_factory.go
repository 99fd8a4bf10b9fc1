package test

import (
	"fmt"
	"time"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
)

// AccountMatchFields is the match-field set used by most engine tests.
var AccountMatchFields = []model.MatchField{
	{Name: "name", Type: model.MatchFieldText},
	{Name: "phone", Type: model.MatchFieldPhone},
	{Name: "email", Type: model.MatchFieldEmail},
}

// NewRunConfiguration builds a valid run configuration for the object type
// with test-friendly defaults.
func NewRunConfiguration(objectType string) *model.RunConfiguration {
	return &model.RunConfiguration{
		ObjectType:     objectType,
		MatchFields:    AccountMatchFields,
		MasterStrategy: model.StrategyOldestCreated,
		PartitionSize:  2,
		GridSize:       1,
	}
}

// NewAccount builds a source record with the standard account fields.
// createdOffset shifts CreatedAt from a fixed base so ordering is deterministic.
func NewAccount(id string, createdOffset time.Duration, name, phone, email string) *model.SourceRecord {
	base := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	return &model.SourceRecord{
		ID:        id,
		CreatedAt: base.Add(createdOffset),
		Fields: map[string]string{
			"name":  name,
			"phone": phone,
			"email": email,
		},
	}
}

// SeedAccounts populates the store with n distinct account records.
func SeedAccounts(store *FakeRecordStore, objectType string, n int) {
	for i := 0; i < n; i++ {
		store.AddRecord(objectType, NewAccount(
			fmt.Sprintf("acct-%03d", i),
			time.Duration(i)*time.Minute,
			fmt.Sprintf("Company %03d", i),
			fmt.Sprintf("555%07d", i),
			fmt.Sprintf("contact%03d@example.com", i),
		))
	}
}
