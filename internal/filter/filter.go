// Package filter turns untrusted request parameters into a typed,
// whitelisted filter spec and composes it into a store query plan.
//
// Parsing never fails: unknown keys and malformed values are silently
// dropped, so the worst case is an empty spec (which plans to "all records,
// natural order").
package filter

import (
	"strconv"
	"strings"

	"github.com/winecellarhq/orderimport/internal/store"
)

// partialSuffix marks substring-match parameters, e.g. "name_partial_match".
const partialSuffix = "_partial_match"

var (
	// matchFields may be filtered with exact, case-insensitive equality.
	matchFields = []string{"name", "email", "state", "zipcode"}

	// partialFields may be filtered with case-insensitive substring match.
	partialFields = []string{"name", "email", "state", "zipcode"}
)

// Match is one field filter from the request.
type Match struct {
	Field string
	Value string
}

// Spec is the parsed, request-scoped filter specification. Three buckets:
// result-shape constraints (valid, limit, offset), exact field matches, and
// partial field matches.
type Spec struct {
	Valid   *bool
	Limit   int
	Offset  int
	Match   []Match
	Partial []Match
}

// Empty reports whether parsing accepted nothing.
func (s Spec) Empty() bool {
	return s.Valid == nil && s.Limit == 0 && s.Offset == 0 &&
		len(s.Match) == 0 && len(s.Partial) == 0
}

// Parse classifies raw parameters against the whitelist. Field values are
// accepted verbatim; constraints are parsed and dropped when malformed.
func Parse(params map[string]string) Spec {
	var spec Spec

	if raw, ok := params["valid"]; ok {
		spec.Valid = parseBool(raw)
	}
	if raw, ok := params["limit"]; ok {
		spec.Limit = parsePositiveInt(raw)
	}
	if raw, ok := params["offset"]; ok {
		spec.Offset = parsePositiveInt(raw)
	}

	for _, field := range matchFields {
		if value, ok := params[field]; ok {
			spec.Match = append(spec.Match, Match{Field: field, Value: value})
		}
	}
	for _, field := range partialFields {
		if value, ok := params[field+partialSuffix]; ok {
			spec.Partial = append(spec.Partial, Match{Field: field, Value: value})
		}
	}

	return spec
}

// Plan composes the spec into a store query plan, in fixed order: the valid
// constraint, limit/offset, exact matches, then partial matches.
func (s Spec) Plan() store.QueryPlan {
	plan := store.QueryPlan{
		Valid:  s.Valid,
		Limit:  s.Limit,
		Offset: s.Offset,
	}
	for _, m := range s.Match {
		plan.Match = append(plan.Match, store.FieldMatch{Field: m.Field, Value: m.Value})
	}
	for _, m := range s.Partial {
		plan.Partial = append(plan.Partial, store.FieldMatch{Field: m.Field, Value: m.Value})
	}
	return plan
}

// parseBool maps 1/true/on/yes to true and 0/false/off/no/"" to false.
// Anything else means the filter is ignored entirely.
func parseBool(raw string) *bool {
	t, f := true, false
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "on", "yes":
		return &t
	case "0", "false", "off", "no", "":
		return &f
	default:
		return nil
	}
}

// parsePositiveInt returns the value when it is a strictly positive
// integer, zero (filter dropped) otherwise.
func parsePositiveInt(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
