// Package normalize implements the field-value canonicalization rules used to
// build duplicate fingerprints. A process-scoped cache memoizes results per
// rule; the cache affects only performance, never the produced values.
package normalize

import (
	"strings"
	"sync"
	"unicode"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	"github.com/tidemill/dedupe/pkg/dedupe/core/port"
)

// rule identifies a normalization rule inside the cache key.
type rule uint8

const (
	ruleText rule = iota
	rulePhone
	ruleEmail
)

type cacheKey struct {
	rule  rule
	value string
}

// CachedNormalizer is a Normalizer with a memoization cache shared across
// all rules. It is safe for concurrent use.
type CachedNormalizer struct {
	mu    sync.RWMutex
	cache map[cacheKey]string
}

// NewCachedNormalizer creates a new CachedNormalizer with an empty cache.
func NewCachedNormalizer() *CachedNormalizer {
	return &CachedNormalizer{
		cache: make(map[cacheKey]string),
	}
}

var _ port.Normalizer = (*CachedNormalizer)(nil)

// Normalize applies the general text rule: lowercase, punctuation and symbols
// removed, consecutive whitespace collapsed to a single space, then trimmed.
func (n *CachedNormalizer) Normalize(value string) string {
	return n.memoized(ruleText, value, normalizeText)
}

// NormalizePhone reduces a phone value to its digit characters only.
func (n *CachedNormalizer) NormalizePhone(value string) string {
	return n.memoized(rulePhone, value, normalizePhone)
}

// NormalizeEmail trims surrounding whitespace and lowercases an email value.
func (n *CachedNormalizer) NormalizeEmail(value string) string {
	return n.memoized(ruleEmail, value, normalizeEmail)
}

// NormalizeByType dispatches to the rule selected by the match field type.
// An unknown type falls back to the general text rule.
func (n *CachedNormalizer) NormalizeByType(value string, fieldType model.MatchFieldType) string {
	switch fieldType {
	case model.MatchFieldPhone:
		return n.NormalizePhone(value)
	case model.MatchFieldEmail:
		return n.NormalizeEmail(value)
	default:
		return n.Normalize(value)
	}
}

// ClearCache discards all memoized values.
func (n *CachedNormalizer) ClearCache() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cache = make(map[cacheKey]string)
}

// memoized returns the cached result for (r, value), computing and storing it
// on a miss.
func (n *CachedNormalizer) memoized(r rule, value string, fn func(string) string) string {
	if value == "" {
		return ""
	}
	key := cacheKey{rule: r, value: value}

	n.mu.RLock()
	cached, ok := n.cache[key]
	n.mu.RUnlock()
	if ok {
		return cached
	}

	result := fn(value)

	n.mu.Lock()
	n.cache[key] = result
	n.mu.Unlock()
	return result
}

// normalizeText lowercases the value, drops punctuation and symbol runes, and
// collapses whitespace runs into single spaces.
func normalizeText(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	lastWasSpace := false
	for _, r := range strings.ToLower(value) {
		switch {
		case unicode.IsSpace(r):
			if !lastWasSpace && b.Len() > 0 {
				b.WriteByte(' ')
				lastWasSpace = true
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped
		default:
			b.WriteRune(r)
			lastWasSpace = false
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// normalizePhone keeps digit runes only.
func normalizePhone(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeEmail trims surrounding whitespace and lowercases.
func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
