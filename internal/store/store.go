// Package store defines the order record store: upsert-by-id persistence
// plus execution of composed query plans. Two backends implement it,
// postgres for production and sqlite for local use and tests.
package store

import (
	"context"
	"errors"

	"github.com/winecellarhq/orderimport/internal/order"
)

// ErrNotFound is returned by Get when no order has the requested id.
var ErrNotFound = errors.New("order not found")

// FieldMatch is a single case-insensitive comparison on an order field.
type FieldMatch struct {
	Field string
	Value string
}

// QueryPlan is a composed, whitelisted query over the order store. Backends
// apply its parts in a fixed order: the valid constraint, exact field
// matches, partial (substring) matches, then offset/limit. All field
// comparisons are case-insensitive.
//
// Limit == 0 with Offset > 0 means "all remaining records from the offset";
// backends that require an explicit take (sqlite) must supply an unlimited
// one themselves.
type QueryPlan struct {
	Valid   *bool
	Limit   int
	Offset  int
	Match   []FieldMatch
	Partial []FieldMatch
}

// Empty reports whether the plan constrains anything. An empty plan returns
// all records in natural (insertion) order.
func (p QueryPlan) Empty() bool {
	return p.Valid == nil && p.Limit == 0 && p.Offset == 0 &&
		len(p.Match) == 0 && len(p.Partial) == 0
}

// Store persists order records keyed by their externally supplied id.
type Store interface {
	// Upsert creates the order or overwrites every field of an existing
	// row with the same id. Last write wins; the original insertion
	// position is kept.
	Upsert(ctx context.Context, o *order.Order) error

	// Get fetches one order by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*order.Order, error)

	// SetValid flips only the valid flag of an existing row.
	SetValid(ctx context.Context, id string, valid bool) error

	// Query executes a plan and returns matching orders in natural order.
	Query(ctx context.Context, plan QueryPlan) ([]*order.Order, error)

	// Count returns the number of orders matching the plan, ignoring
	// offset and limit.
	Count(ctx context.Context, plan QueryPlan) (int64, error)
}
