package rules

import (
	"fmt"
	"time"
)

// ISODate is the calendar date layout values are normalized to before they
// reach the engine.
const ISODate = "2006-01-02"

// Failure describes a single failed rule.
type Failure struct {
	Rule    string
	Message string
}

// Sibling reads another field of the record currently being validated.
// It returns the empty string when the field has not been assigned yet.
type Sibling func(field string) string

// Engine evaluates a RuleSet against field values.
type Engine struct {
	set RuleSet
	now func() time.Time
}

// NewEngine creates an engine for the given rule table.
func NewEngine(set RuleSet) *Engine {
	return &Engine{set: set, now: time.Now}
}

// Titles returns the rule titles configured for a field, in evaluation order.
func (e *Engine) Titles(field string) []string {
	rules := e.set[field]
	titles := make([]string, len(rules))
	for i, r := range rules {
		titles[i] = r.Title
	}
	return titles
}

// Evaluate runs every rule configured for field against a non-empty value.
// Failures come back in configured rule order. Empty values are the record
// model's concern (the required check subsumes all other rules).
func (e *Engine) Evaluate(field, value string, sibling Sibling) []Failure {
	var failures []Failure
	for _, r := range e.set[field] {
		if f, ok := e.eval(r, value, sibling); !ok {
			failures = append(failures, f)
		}
	}
	return failures
}

func (e *Engine) eval(r Rule, value string, sibling Sibling) (Failure, bool) {
	switch r.Kind {
	case KindPattern:
		if !r.Pattern.MatchString(value) {
			return Failure{Rule: r.Title, Message: r.Message}, false
		}

	case KindEnum:
		for _, allowed := range r.Allowed {
			if value == allowed {
				return Failure{}, true
			}
		}
		return Failure{Rule: r.Title, Message: r.Message}, false

	case KindDate:
		if _, err := time.Parse(ISODate, value); err != nil {
			return Failure{Rule: r.Title, Message: r.Message}, false
		}

	case KindDigitSumMax:
		if digitSum(value) > r.Max {
			return Failure{Rule: r.Title, Message: r.Message}, false
		}

	case KindMinAge:
		t, err := time.Parse(ISODate, value)
		if err != nil {
			// Unparseable dates are reported by the KindDate rule.
			return Failure{}, true
		}
		// Compare at date granularity: being born exactly Years ago today
		// is not strictly older than Years.
		y, m, d := e.now().AddDate(-r.Years, 0, 0).Date()
		cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		if !t.Before(cutoff) {
			return Failure{Rule: r.Title, Message: r.Message}, false
		}

	case KindStateDomains:
		state := sibling("state")
		for _, domain := range r.Domains[state] {
			if hasSuffix(value, domain) {
				return Failure{
					Rule:    r.Title,
					Message: fmt.Sprintf("The '%s' email is not allowed in %s", domain, state),
				}, false
			}
		}
	}

	return Failure{}, true
}

// digitSum sums the decimal digits of s. Every other character, including
// the '-' in a 9-digit zipcode, counts as zero.
func digitSum(s string) int {
	sum := 0
	for _, c := range s {
		if c >= '0' && c <= '9' {
			sum += int(c - '0')
		}
	}
	return sum
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
