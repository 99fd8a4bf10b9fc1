package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	"github.com/tidemill/dedupe/pkg/dedupe/normalize"
)

var accountFields = []model.MatchField{
	{Name: "name", Type: model.MatchFieldText},
	{Name: "phone", Type: model.MatchFieldPhone},
	{Name: "email", Type: model.MatchFieldEmail},
}

func record(name, phone, email string) *model.SourceRecord {
	return &model.SourceRecord{
		ID: model.NewID(),
		Fields: map[string]string{
			"name":  name,
			"phone": phone,
			"email": email,
		},
	}
}

func TestOf_EquivalentRecordsShareFingerprint(t *testing.T) {
	n := normalize.NewCachedNormalizer()

	a := record("ACME, Corp.", "(555) 123-4567", "Sales@Acme.com")
	b := record("acme corp", "555 123 4567", " sales@acme.com ")

	assert.Equal(t, Of(a, accountFields, n), Of(b, accountFields, n))
}

func TestOf_DistinctValuesDiffer(t *testing.T) {
	n := normalize.NewCachedNormalizer()

	a := record("ACME Corp", "5551234567", "sales@acme.com")
	b := record("ACME Corp", "5559999999", "sales@acme.com")

	assert.NotEqual(t, Of(a, accountFields, n), Of(b, accountFields, n))
}

func TestOf_FieldSplitDoesNotCollide(t *testing.T) {
	n := normalize.NewCachedNormalizer()
	fields := []model.MatchField{{Name: "first"}, {Name: "last"}}

	a := &model.SourceRecord{ID: "1", Fields: map[string]string{"first": "ann marie", "last": "lee"}}
	b := &model.SourceRecord{ID: "2", Fields: map[string]string{"first": "ann", "last": "marie lee"}}

	assert.NotEqual(t, Of(a, fields, n), Of(b, fields, n))
}

func TestOf_AllBlankYieldsEmpty(t *testing.T) {
	n := normalize.NewCachedNormalizer()

	assert.Equal(t, "", Of(record("", "", ""), accountFields, n))
	assert.Equal(t, "", Of(record("  ", "ext.", "   "), accountFields, n))
}

func TestOf_PartialBlankStillGroups(t *testing.T) {
	n := normalize.NewCachedNormalizer()

	a := record("ACME Corp", "", "")
	b := record("acme corp", "", "")

	got := Of(a, accountFields, n)
	assert.NotEmpty(t, got)
	assert.Equal(t, got, Of(b, accountFields, n))
}

func TestOf_MissingFieldTreatedAsBlank(t *testing.T) {
	n := normalize.NewCachedNormalizer()

	a := &model.SourceRecord{ID: "1", Fields: map[string]string{"name": "ACME Corp"}}
	b := record("ACME Corp", "", "")

	assert.Equal(t, Of(b, accountFields, n), Of(a, accountFields, n))
}
