// Package fingerprint derives the normalized group key of a source record.
// Records sharing a fingerprint are duplicate candidates.
package fingerprint

import (
	"strings"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	"github.com/tidemill/dedupe/pkg/dedupe/core/port"
)

// Separator joins the per-field components of a fingerprint. The unit
// separator cannot appear in normalized values, so distinct field splits
// never collide.
const Separator = "\x1f"

// Of computes the fingerprint of a record over the configured match fields.
// Field order follows the configuration, so all records of one run produce
// comparable keys. A record whose match fields are all blank yields "" and
// must never be grouped.
func Of(record *model.SourceRecord, matchFields []model.MatchField, n port.Normalizer) string {
	parts := make([]string, len(matchFields))
	allBlank := true
	for i, f := range matchFields {
		part := normalizeField(record.FieldValue(f.Name), f.Type, n)
		if part != "" {
			allBlank = false
		}
		parts[i] = part
	}
	if allBlank {
		return ""
	}
	return strings.Join(parts, Separator)
}

// normalizeField applies the rule selected by the match field type.
// An unset or unknown type uses the general text rule.
func normalizeField(value string, fieldType model.MatchFieldType, n port.Normalizer) string {
	switch fieldType {
	case model.MatchFieldPhone:
		return n.NormalizePhone(value)
	case model.MatchFieldEmail:
		return n.NormalizeEmail(value)
	default:
		return n.Normalize(value)
	}
}
