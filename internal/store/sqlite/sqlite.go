// Package sqlite implements the order store on SQLite via database/sql and
// the modernc.org/sqlite driver. It backs local development and the test
// suite; the postgres package is the production twin.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/winecellarhq/orderimport/internal/order"
	"github.com/winecellarhq/orderimport/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	seq               INTEGER PRIMARY KEY AUTOINCREMENT,
	id                TEXT NOT NULL UNIQUE,
	name              TEXT NOT NULL DEFAULT '',
	email             TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	zipcode           TEXT NOT NULL DEFAULT '',
	birthday          TEXT NOT NULL DEFAULT '',
	valid             INTEGER NOT NULL DEFAULT 0,
	validation_errors TEXT NOT NULL DEFAULT '[]',
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_state_zipcode ON orders (state, zipcode);
`

// columns orders may be filtered on. Anything else in a plan is dropped.
var filterColumns = map[string]bool{
	"name":    true,
	"email":   true,
	"state":   true,
	"zipcode": true,
}

// Store is a SQLite-backed order store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dsn and bootstraps the schema.
// A single connection is used: SQLite has one writer anyway, and it keeps
// in-memory databases coherent across calls.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: dsn must not be empty")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: bootstrap schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts the order or overwrites an existing row with the same id.
// The seq column, and with it natural order, is untouched on conflict.
func (s *Store) Upsert(ctx context.Context, o *order.Order) error {
	errsJSON, err := marshalErrors(o.ValidationErrors)
	if err != nil {
		return fmt.Errorf("sqlite: encode validation errors: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (id, name, email, state, zipcode, birthday, valid, validation_errors, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			state = excluded.state,
			zipcode = excluded.zipcode,
			birthday = excluded.birthday,
			valid = excluded.valid,
			validation_errors = excluded.validation_errors,
			updated_at = excluded.updated_at`,
		o.ID, o.Name, o.Email, o.State, o.Zipcode, o.Birthday,
		boolToInt(o.Valid), errsJSON, now, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert order %q: %w", o.ID, err)
	}
	return nil
}

// Get fetches one order by id.
func (s *Store) Get(ctx context.Context, id string) (*order.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, state, zipcode, birthday, valid, validation_errors, created_at, updated_at
		FROM orders WHERE id = ?`, id)

	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get order %q: %w", id, err)
	}
	return o, nil
}

// SetValid flips only the valid flag of an existing row.
func (s *Store) SetValid(ctx context.Context, id string, valid bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET valid = ?, updated_at = ? WHERE id = ?`,
		boolToInt(valid), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("sqlite: set valid on order %q: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Query executes a plan, returning matches in natural (insertion) order.
func (s *Store) Query(ctx context.Context, plan store.QueryPlan) ([]*order.Order, error) {
	where, args := buildWhere(plan)

	query := `SELECT id, name, email, state, zipcode, birthday, valid, validation_errors, created_at, updated_at
		FROM orders` + where + ` ORDER BY seq`

	switch {
	case plan.Limit > 0:
		query += " LIMIT ?"
		args = append(args, plan.Limit)
	case plan.Offset > 0:
		// SQLite requires a LIMIT clause before OFFSET; -1 means no cap.
		query += " LIMIT -1"
	}
	if plan.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, plan.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query orders: %w", err)
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: query orders: %w", err)
	}
	return orders, nil
}

// Count returns the number of rows matching the plan's filters, ignoring
// offset and limit.
func (s *Store) Count(ctx context.Context, plan store.QueryPlan) (int64, error) {
	where, args := buildWhere(plan)

	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count orders: %w", err)
	}
	return n, nil
}

// buildWhere composes the WHERE clause in the plan's fixed order: the valid
// constraint, exact matches, then partial matches. SQLite's LIKE is already
// case-insensitive for ASCII; equality goes through LOWER().
func buildWhere(plan store.QueryPlan) (string, []any) {
	var conditions []string
	var args []any

	if plan.Valid != nil {
		conditions = append(conditions, "valid = ?")
		args = append(args, boolToInt(*plan.Valid))
	}
	for _, m := range plan.Match {
		if !filterColumns[m.Field] {
			continue
		}
		conditions = append(conditions, fmt.Sprintf("LOWER(%s) = LOWER(?)", m.Field))
		args = append(args, m.Value)
	}
	for _, m := range plan.Partial {
		if !filterColumns[m.Field] {
			continue
		}
		conditions = append(conditions, fmt.Sprintf("%s LIKE '%%' || ? || '%%'", m.Field))
		args = append(args, m.Value)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// scannable is satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanOrder(row scannable) (*order.Order, error) {
	var (
		o         order.Order
		valid     int
		errsJSON  string
		createdAt string
		updatedAt string
	)
	err := row.Scan(&o.ID, &o.Name, &o.Email, &o.State, &o.Zipcode, &o.Birthday,
		&valid, &errsJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	o.Valid = valid != 0
	if err := json.Unmarshal([]byte(errsJSON), &o.ValidationErrors); err != nil {
		return nil, fmt.Errorf("decode validation errors: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		o.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		o.UpdatedAt = t
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

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
