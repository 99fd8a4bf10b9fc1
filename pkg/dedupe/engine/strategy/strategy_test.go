package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/exception"
)

func rec(id string, createdAt time.Time, fields map[string]string) *model.SourceRecord {
	return &model.SourceRecord{ID: id, CreatedAt: createdAt, Fields: fields}
}

func TestForName_KnownStrategies(t *testing.T) {
	s, err := ForName(model.StrategyOldestCreated)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyOldestCreated, s.Name())

	s, err = ForName(model.StrategyMostCompleteRecord)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyMostCompleteRecord, s.Name())
}

func TestForName_UnknownIsConfigurationError(t *testing.T) {
	_, err := ForName("NewestCreated")
	require.Error(t, err)
	assert.True(t, exception.IsConfigurationError(err))
}

func TestOldestCreated_PicksEarliestTimestamp(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	members := []*model.SourceRecord{
		rec("b", base.Add(2*time.Hour), nil),
		rec("a", base, nil),
		rec("c", base.Add(time.Hour), nil),
	}

	s := &OldestCreated{}
	master, err := s.SelectMaster(members)
	require.NoError(t, err)
	assert.Equal(t, "a", master.ID)
}

func TestOldestCreated_TieBrokenBySmallestID(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	members := []*model.SourceRecord{
		rec("z", base, nil),
		rec("m", base, nil),
		rec("q", base, nil),
	}

	s := &OldestCreated{}
	master, err := s.SelectMaster(members)
	require.NoError(t, err)
	assert.Equal(t, "m", master.ID)
}

func TestOldestCreated_StableAcrossMemberOrder(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := rec("a", base, nil)
	b := rec("b", base.Add(time.Minute), nil)
	c := rec("c", base.Add(2*time.Minute), nil)

	s := &OldestCreated{}
	m1, err := s.SelectMaster([]*model.SourceRecord{a, b, c})
	require.NoError(t, err)
	m2, err := s.SelectMaster([]*model.SourceRecord{c, b, a})
	require.NoError(t, err)
	assert.Equal(t, m1.ID, m2.ID)
}

func TestOldestCreated_EmptyGroupIsValidationFailure(t *testing.T) {
	s := &OldestCreated{}
	_, err := s.SelectMaster(nil)
	require.Error(t, err)
	assert.True(t, exception.IsValidationFailure(err))
}

func TestMostCompleteRecord_PicksHighestFieldCount(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	members := []*model.SourceRecord{
		rec("sparse", base, map[string]string{"name": "ACME"}),
		rec("full", base.Add(time.Hour), map[string]string{"name": "ACME", "phone": "5551234567", "email": "x@acme.com"}),
		rec("partial", base, map[string]string{"name": "ACME", "phone": "5551234567", "email": ""}),
	}

	s := &MostCompleteRecord{}
	master, err := s.SelectMaster(members)
	require.NoError(t, err)
	assert.Equal(t, "full", master.ID)
}

func TestMostCompleteRecord_TieFallsBackToOldest(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	members := []*model.SourceRecord{
		rec("newer", base.Add(time.Hour), map[string]string{"name": "ACME", "phone": "5551234567"}),
		rec("older", base, map[string]string{"name": "ACME", "email": "x@acme.com"}),
	}

	s := &MostCompleteRecord{}
	master, err := s.SelectMaster(members)
	require.NoError(t, err)
	assert.Equal(t, "older", master.ID)
}
