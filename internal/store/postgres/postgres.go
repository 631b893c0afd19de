// Package postgres implements the order store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/winecellarhq/orderimport/internal/order"
	"github.com/winecellarhq/orderimport/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	seq               BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	id                TEXT NOT NULL UNIQUE,
	name              TEXT NOT NULL DEFAULT '',
	email             TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	zipcode           TEXT NOT NULL DEFAULT '',
	birthday          TEXT NOT NULL DEFAULT '',
	valid             BOOLEAN NOT NULL DEFAULT FALSE,
	validation_errors JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_orders_state_zipcode ON orders (state, zipcode);
`

var filterColumns = map[string]bool{
	"name":    true,
	"email":   true,
	"state":   true,
	"zipcode": true,
}

// Store is a PostgreSQL-backed order store.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the orders table and its indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: bootstrap schema: %w", err)
	}
	return nil
}

// Upsert inserts the order or overwrites an existing row with the same id.
// Row-level locking in Postgres serializes concurrent writes per id; the
// seq column is untouched on conflict, preserving natural order.
func (s *Store) Upsert(ctx context.Context, o *order.Order) error {
	errsJSON, err := marshalErrors(o.ValidationErrors)
	if err != nil {
		return fmt.Errorf("postgres: encode validation errors: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO orders (id, name, email, state, zipcode, birthday, valid, validation_errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			state = EXCLUDED.state,
			zipcode = EXCLUDED.zipcode,
			birthday = EXCLUDED.birthday,
			valid = EXCLUDED.valid,
			validation_errors = EXCLUDED.validation_errors,
			updated_at = now()`,
		o.ID, o.Name, o.Email, o.State, o.Zipcode, o.Birthday, o.Valid, errsJSON,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert order %q: %w", o.ID, err)
	}
	return nil
}

// Get fetches one order by id.
func (s *Store) Get(ctx context.Context, id string) (*order.Order, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, email, state, zipcode, birthday, valid, validation_errors, created_at, updated_at
		FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get order %q: %w", id, err)
	}
	return o, nil
}

// SetValid flips only the valid flag of an existing row.
func (s *Store) SetValid(ctx context.Context, id string, valid bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET valid = $1, updated_at = now() WHERE id = $2`, valid, id)
	if err != nil {
		return fmt.Errorf("postgres: set valid on order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Query executes a plan, returning matches in natural (insertion) order.
func (s *Store) Query(ctx context.Context, plan store.QueryPlan) ([]*order.Order, error) {
	wb := newWhereBuilder()
	wb.addPlan(plan)
	where, args := wb.build()

	query := `SELECT id, name, email, state, zipcode, birthday, valid, validation_errors, created_at, updated_at
		FROM orders` + where + ` ORDER BY seq`

	argIdx := wb.nextArgIndex()
	if plan.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, plan.Limit)
		argIdx++
	}
	// Offset without limit: no LIMIT clause at all, Postgres returns
	// every remaining row.
	if plan.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, plan.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query orders: %w", err)
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query orders: %w", err)
	}
	return orders, nil
}

// Count returns the number of rows matching the plan's filters, ignoring
// offset and limit.
func (s *Store) Count(ctx context.Context, plan store.QueryPlan) (int64, error) {
	wb := newWhereBuilder()
	wb.addPlan(plan)
	where, args := wb.build()

	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count orders: %w", err)
	}
	return n, nil
}

// whereBuilder accumulates AND-ed conditions with positional args.
type whereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
}

func newWhereBuilder() *whereBuilder {
	return &whereBuilder{argIndex: 1}
}

// addPlan appends the plan's filters in fixed order: valid constraint,
// exact matches, partial matches. Exact matches use LOWER() equality rather
// than ILIKE so values containing % or _ stay literal; partials use ILIKE.
func (wb *whereBuilder) addPlan(plan store.QueryPlan) {
	if plan.Valid != nil {
		wb.add("valid = $%d", *plan.Valid)
	}
	for _, m := range plan.Match {
		if !filterColumns[m.Field] {
			continue
		}
		wb.add("LOWER("+m.Field+") = LOWER($%d)", m.Value)
	}
	for _, m := range plan.Partial {
		if !filterColumns[m.Field] {
			continue
		}
		wb.add(m.Field+" ILIKE '%%' || $%d || '%%'", m.Value)
	}
}

func (wb *whereBuilder) add(format string, arg any) {
	wb.conditions = append(wb.conditions, fmt.Sprintf(format, wb.argIndex))
	wb.args = append(wb.args, arg)
	wb.argIndex++
}

func (wb *whereBuilder) build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}

func (wb *whereBuilder) nextArgIndex() int {
	return wb.argIndex
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o         order.Order
		errsJSON  []byte
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&o.ID, &o.Name, &o.Email, &o.State, &o.Zipcode, &o.Birthday,
		&o.Valid, &errsJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(errsJSON, &o.ValidationErrors); err != nil {
		return nil, fmt.Errorf("decode validation errors: %w", err)
	}
	if createdAt.Valid {
		o.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		o.UpdatedAt = updatedAt.Time
	}
	return &o, nil
}

func marshalErrors(errs []order.ValidationError) (string, error) {
	if errs == nil {
		errs = []order.ValidationError{}
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
