package order

// normalize.go provides per-field canonicalization for raw CSV values.
//
// Normalization is pure and idempotent: feeding a normalized value back
// through yields the same value. Each field has its own cleanup, matching
// the messy reality of bulk order exports:
//   - surrounding whitespace on every field
//   - mixed-case emails and state codes
//   - masked-digit zipcodes using '*' in place of '-'
//   - birthdays in the configured input format, or garbage

import (
	"strings"
	"time"

	"github.com/winecellarhq/orderimport/internal/rules"
)

// InvalidDate is the sentinel stored when a birthday cannot be parsed.
// It is distinguishable from an empty (missing) value and fails the
// birthday format rule downstream.
const InvalidDate = "invalid date"

// NormalizeName trims surrounding whitespace.
func NormalizeName(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeEmail trims and lower-cases.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeState trims and upper-cases.
func NormalizeState(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeZipcode trims and replaces the masked-digit '*' notation with '-'.
func NormalizeZipcode(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "*", "-")
}

// NormalizeBirthday trims and reparses the value from the given input layout
// into an ISO calendar date. Empty input stays empty; unparseable input
// becomes the InvalidDate sentinel rather than failing the pipeline.
// Already-normalized ISO dates pass through unchanged.
func NormalizeBirthday(s, inputLayout string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if _, err := time.Parse(rules.ISODate, s); err == nil {
		return s
	}
	t, err := time.Parse(inputLayout, s)
	if err != nil {
		return InvalidDate
	}
	return t.Format(rules.ISODate)
}
