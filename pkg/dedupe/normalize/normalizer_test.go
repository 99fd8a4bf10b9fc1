package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
)

func TestNormalize_TextRule(t *testing.T) {
	n := NewCachedNormalizer()

	assert.Equal(t, "acme corp", n.Normalize("ACME, Corp."))
	assert.Equal(t, "acme corp", n.Normalize("  Acme   Corp  "))
	assert.Equal(t, "", n.Normalize(""))
	assert.Equal(t, "", n.Normalize("   "))
}

func TestNormalizePhone_DigitsOnly(t *testing.T) {
	n := NewCachedNormalizer()

	assert.Equal(t, "5551234567", n.NormalizePhone("(555) 123-4567"))
	assert.Equal(t, "15551234567", n.NormalizePhone("+1 555 123 4567"))
	assert.Equal(t, "", n.NormalizePhone("ext."))
	assert.Equal(t, "", n.NormalizePhone(""))
}

func TestNormalizeEmail_LowercaseTrim(t *testing.T) {
	n := NewCachedNormalizer()

	assert.Equal(t, "test.email@example.com", n.NormalizeEmail(" Test.Email@Example.com "))
	assert.Equal(t, "", n.NormalizeEmail(""))
}

func TestNormalize_Idempotent(t *testing.T) {
	n := NewCachedNormalizer()

	inputs := []string{"ACME, Corp.", "(555) 123-4567", " Test.Email@Example.com ", "Déjà Vu LLC"}
	for _, in := range inputs {
		once := n.Normalize(in)
		assert.Equal(t, once, n.Normalize(once), "text rule must be idempotent for %q", in)

		phone := n.NormalizePhone(in)
		assert.Equal(t, phone, n.NormalizePhone(phone), "phone rule must be idempotent for %q", in)

		email := n.NormalizeEmail(in)
		assert.Equal(t, email, n.NormalizeEmail(email), "email rule must be idempotent for %q", in)
	}
}

func TestNormalizeByType_Dispatch(t *testing.T) {
	n := NewCachedNormalizer()

	assert.Equal(t, "5551234567", n.NormalizeByType("(555) 123-4567", model.MatchFieldPhone))
	assert.Equal(t, "test.email@example.com", n.NormalizeByType(" Test.Email@Example.com ", model.MatchFieldEmail))
	assert.Equal(t, "acme corp", n.NormalizeByType("ACME, Corp.", model.MatchFieldText))
	assert.Equal(t, "acme corp", n.NormalizeByType("ACME, Corp.", model.MatchFieldType("")))
}

func TestClearCache_ValuesUnchanged(t *testing.T) {
	n := NewCachedNormalizer()

	before := n.Normalize("ACME, Corp.")
	n.ClearCache()
	assert.Equal(t, before, n.Normalize("ACME, Corp."))
}
