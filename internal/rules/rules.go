// Package rules provides the declarative validation rule table for order
// records and the engine that evaluates it.
//
// Rules are grouped per field as an ordered list. Each rule carries a stable
// title (the dedup key for a record's validation_errors list) and a message.
// The engine is constructed from an explicit RuleSet so tests can inject
// their own tables instead of reaching into package state.
package rules

import "regexp"

// Kind identifies how a rule's spec is interpreted.
type Kind int

const (
	// KindPattern fails when the value does not match Pattern.
	KindPattern Kind = iota

	// KindEnum fails when the value is not in Allowed.
	KindEnum

	// KindDate fails when the value is not a parseable calendar date.
	// The field normalizer stores unparseable input as a sentinel, so this
	// reduces to "value parses as an ISO date".
	KindDate

	// KindDigitSumMax fails when the digit sum of the value exceeds Max.
	// Non-digit characters count as zero.
	KindDigitSumMax

	// KindMinAge fails when the date value is not strictly before the
	// cutoff Years years ago. Unparseable values are left to KindDate.
	KindMinAge

	// KindStateDomains fails when the value (an email address) ends with a
	// domain suffix forbidden for the record's current state. This is the
	// only cross-field rule: it reads the sibling "state" field.
	KindStateDomains
)

// Rule is a single validation rule for one field.
type Rule struct {
	Title   string
	Kind    Kind
	Message string

	Pattern *regexp.Regexp      // KindPattern
	Allowed []string            // KindEnum
	Max     int                 // KindDigitSumMax
	Years   int                 // KindMinAge
	Domains map[string][]string // KindStateDomains: state -> forbidden suffixes
}

// RuleSet maps a field name to its rules in evaluation order.
type RuleSet map[string][]Rule

var (
	zipcodePattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	emailPattern   = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// allowedStates are the states wine can be shipped to. Notably absent:
// CT, ID, IL, MA, NJ, OR, PA.
var allowedStates = []string{
	"AL", "AK", "AS", "AZ", "AR", "CA", "CO", "DE", "DC", "FM", "FL", "GA",
	"GU", "HI", "IN", "IA", "KS", "KY", "LA", "ME", "MH", "MD", "MI", "MN",
	"MS", "MO", "MT", "NE", "NV", "NH", "NM", "NY", "NC", "ND", "MP", "OH",
	"OK", "PW", "PR", "RI", "SC", "SD", "TN", "TX", "UT", "VT", "VI", "VA",
	"WA", "WV", "WI", "WY",
}

// Default returns the standard order validation rule table.
func Default() RuleSet {
	return RuleSet{
		"state": {
			{
				Title:   "AllowedStates",
				Kind:    KindEnum,
				Allowed: allowedStates,
				Message: "We can not ship to your state",
			},
		},
		"zipcode": {
			{
				Title:   "ValidZipcodePattern",
				Kind:    KindPattern,
				Pattern: zipcodePattern,
				Message: "Your zipcode is not a 5-digit or 9-digit (e.g., 12345-6789) zipcode",
			},
			{
				Title:   "ZipCodeSum",
				Kind:    KindDigitSumMax,
				Max:     20,
				Message: "Your zipcode sum is too large",
			},
		},
		"birthday": {
			{
				Title:   "ValidBirthday",
				Kind:    KindDate,
				Message: "Your birthday is not a valid date format",
			},
			{
				Title:   "MinimumAgeForOrdering",
				Kind:    KindMinAge,
				Years:   21,
				Message: "You must be 21 or older to order",
			},
		},
		"email": {
			{
				Title:   "ValidEmailAddress",
				Kind:    KindPattern,
				Pattern: emailPattern,
				Message: "Your email address is not valid",
			},
			{
				Title: "EmailDomainRestrictionForState",
				Kind:  KindStateDomains,
				Domains: map[string][]string{
					"NY": {".net"},
				},
			},
		},
	}
}
