package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/winecellarhq/orderimport/internal/order"
	"github.com/winecellarhq/orderimport/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func seedOrder(t *testing.T, st *Store, id, name, email, state, zipcode string, valid bool) {
	t.Helper()
	o := &order.Order{
		ID: id, Name: name, Email: email, State: state, Zipcode: zipcode,
		Valid: valid,
	}
	if err := st.Upsert(context.Background(), o); err != nil {
		t.Fatalf("Upsert(%s): %v", id, err)
	}
}

func ids(orders []*order.Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}

func TestUpsert_LastWriteWinsKeepsNaturalOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seedOrder(t, st, "a", "First", "a@example.com", "CA", "11111", true)
	seedOrder(t, st, "b", "Second", "b@example.com", "NY", "22222", true)
	// Overwrite "a" after "b" was inserted.
	seedOrder(t, st, "a", "First Updated", "a@example.com", "CA", "11111", false)

	got, err := st.Query(ctx, store.QueryPlan{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := []string{"a", "b"}
	if fmt.Sprint(ids(got)) != fmt.Sprint(want) {
		t.Fatalf("order = %v, want %v", ids(got), want)
	}
	if got[0].Name != "First Updated" {
		t.Errorf("Name = %q, want overwritten value", got[0].Name)
	}
	if got[0].Valid {
		t.Error("Valid should reflect the last write")
	}
}

func TestGet_NotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.Get(context.Background(), "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get error = %v, want ErrNotFound", err)
	}
}

func TestGet_RoundTripsValidationErrors(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	o := &order.Order{
		ID: "x", State: "NJ",
		ValidationErrors: []order.ValidationError{
			{Rule: "AllowedStates", Message: "We can not ship to your state"},
		},
	}
	if err := st.Upsert(ctx, o); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := st.Get(ctx, "x")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.ValidationErrors) != 1 {
		t.Fatalf("ValidationErrors = %v", got.ValidationErrors)
	}
	if got.ValidationErrors[0].Rule != "AllowedStates" {
		t.Errorf("Rule = %q", got.ValidationErrors[0].Rule)
	}
}

func TestSetValid(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seedOrder(t, st, "a", "A", "a@example.com", "CA", "11111", false)

	if err := st.SetValid(ctx, "a", true); err != nil {
		t.Fatalf("SetValid: %v", err)
	}
	got, err := st.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Valid {
		t.Error("Valid should be true after SetValid")
	}

	if err := st.SetValid(ctx, "missing", true); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SetValid on missing id = %v, want ErrNotFound", err)
	}
}

func TestQuery_ValidFilter(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seedOrder(t, st, "a", "A", "a@example.com", "CA", "11111", true)
	seedOrder(t, st, "b", "B", "b@example.com", "NJ", "22222", false)
	seedOrder(t, st, "c", "C", "c@example.com", "NY", "33333", true)

	valid := true
	got, err := st.Query(ctx, store.QueryPlan{Valid: &valid})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if fmt.Sprint(ids(got)) != fmt.Sprint([]string{"a", "c"}) {
		t.Errorf("valid=true ids = %v", ids(got))
	}

	invalid := false
	got, err = st.Query(ctx, store.QueryPlan{Valid: &invalid})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if fmt.Sprint(ids(got)) != fmt.Sprint([]string{"b"}) {
		t.Errorf("valid=false ids = %v", ids(got))
	}
}

func TestQuery_ExactMatchIsCaseInsensitive(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seedOrder(t, st, "a", "A", "a@example.com", "NY", "11111", true)
	seedOrder(t, st, "b", "B", "b@example.com", "CA", "22222", true)

	got, err := st.Query(ctx, store.QueryPlan{
		Match: []store.FieldMatch{{Field: "state", Value: "ny"}},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if fmt.Sprint(ids(got)) != fmt.Sprint([]string{"a"}) {
		t.Errorf("state=ny ids = %v", ids(got))
	}

	got, err = st.Query(ctx, store.QueryPlan{
		Partial: []store.FieldMatch{{Field: "state", Value: "n"}},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if fmt.Sprint(ids(got)) != fmt.Sprint([]string{"a"}) {
		t.Errorf("state partial n ids = %v", ids(got))
	}
}

func TestQuery_PartialMatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seedOrder(t, st, "a", "Janet Mann", "janet@example.com", "CA", "11111", true)
	seedOrder(t, st, "b", "Guy Mann", "guy@example.com", "CA", "22222", true)
	seedOrder(t, st, "c", "Ann Other", "ann@example.com", "CA", "33333", true)

	got, err := st.Query(ctx, store.QueryPlan{
		Partial: []store.FieldMatch{{Field: "name", Value: "Mann"}},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if fmt.Sprint(ids(got)) != fmt.Sprint([]string{"a", "b"}) {
		t.Errorf("partial Mann ids = %v", ids(got))
	}
}

func TestQuery_LimitOffset(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 7; i++ {
		id := fmt.Sprintf("o%d", i)
		seedOrder(t, st, id, id, id+"@example.com", "CA", "11111", true)
	}

	got, err := st.Query(ctx, store.QueryPlan{Limit: 2, Offset: 3})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if fmt.Sprint(ids(got)) != fmt.Sprint([]string{"o4", "o5"}) {
		t.Errorf("limit=2 offset=3 ids = %v", ids(got))
	}

	// Offset without limit returns everything remaining.
	got, err = st.Query(ctx, store.QueryPlan{Offset: 3})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if fmt.Sprint(ids(got)) != fmt.Sprint([]string{"o4", "o5", "o6", "o7"}) {
		t.Errorf("offset=3 ids = %v", ids(got))
	}
}

func TestCount_IgnoresPagination(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("o%d", i)
		seedOrder(t, st, id, id, id+"@example.com", "CA", "11111", true)
	}

	n, err := st.Count(ctx, store.QueryPlan{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 5 {
		t.Errorf("Count = %d, want 5", n)
	}
}

func TestQuery_DropsUnknownFilterColumns(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seedOrder(t, st, "a", "A", "a@example.com", "CA", "11111", true)

	got, err := st.Query(ctx, store.QueryPlan{
		Match: []store.FieldMatch{{Field: "created_at", Value: "x"}},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("unknown filter column should be ignored, got %d rows", len(got))
	}
}
