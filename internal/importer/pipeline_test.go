package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/winecellarhq/orderimport/internal/rules"
	"github.com/winecellarhq/orderimport/internal/store"
	"github.com/winecellarhq/orderimport/internal/store/sqlite"
)

const header = "id|name|email|state|zipcode|birthday\n"

func newTestPipeline(t *testing.T) (*Pipeline, *sqlite.Store) {
	t.Helper()
	st, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	p := New(st, rules.NewEngine(rules.Default()), Config{
		Delimiter:        '|',
		InputDateLayout:  "2006-01-02",
		OutputDateLayout: "January 2, 2006",
	})
	return p, st
}

func writeOrderFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestImportFile_Accepted(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	path := writeOrderFile(t, header+
		"1|Guy Mann|guy@example.com|CA|12345|1980-03-01\n"+
		"2|Janet Mann|janet@example.com|NY|11111|1975-06-20\n")

	result := p.ImportFile(ctx, path)
	if result.Status != StatusAccepted {
		t.Fatalf("Status = %q, want accepted", result.Status)
	}
	if result.Applied != 2 || result.SkippedRows != 0 {
		t.Errorf("Applied = %d, SkippedRows = %d", result.Applied, result.SkippedRows)
	}

	o, err := st.Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !o.Valid {
		t.Errorf("record 1 should be valid, errors: %v", o.ValidationErrors)
	}
}

func TestImportFile_DeletesFileOnSuccess(t *testing.T) {
	p, _ := newTestPipeline(t)

	path := writeOrderFile(t, header+"1|Guy|guy@example.com|CA|12345|1980-03-01\n")

	p.ImportFile(context.Background(), path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("imported file should be deleted, stat err = %v", err)
	}
}

func TestImportFile_MissingHeaderFieldsRejectsAndKeepsFile(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	path := writeOrderFile(t, "id|name|email|state\n"+
		"1|Guy|guy@example.com|CA\n")

	result := p.ImportFile(ctx, path)
	if result.Status != StatusRejected {
		t.Fatalf("Status = %q, want rejected", result.Status)
	}
	if len(result.MissingFields) != 2 {
		t.Errorf("MissingFields = %v, want zipcode and birthday", result.MissingFields)
	}

	// The file stays on disk for inspection.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("rejected file should be kept: %v", err)
	}

	// No rows were written.
	n, err := st.Count(ctx, store.QueryPlan{})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
}

func TestImportFile_SkipsMalformedRows(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	path := writeOrderFile(t, header+
		"1|Guy|guy@example.com|CA|12345|1980-03-01\n"+
		"2|too|few|fields\n"+
		"|NoID|noid@example.com|CA|12345|1980-03-01\n"+
		"3|Janet|janet@example.com|CA|11111|1975-06-20\n")

	result := p.ImportFile(ctx, path)
	if result.Status != StatusAccepted {
		t.Fatalf("Status = %q, want accepted", result.Status)
	}
	if result.Applied != 2 {
		t.Errorf("Applied = %d, want 2", result.Applied)
	}
	if result.SkippedRows != 2 {
		t.Errorf("SkippedRows = %d, want 2", result.SkippedRows)
	}

	n, err := st.Count(ctx, store.QueryPlan{})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestImportFile_InvalidFieldsRecorded(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	// Record 2 shares record 1's state, but record 1 has no zipcode, so
	// the adjacency upgrade cannot vouch for it.
	path := writeOrderFile(t, header+
		"1|Guy|guy@example.com|CA||1980-03-01\n"+
		"2|Janet|janet@example.com|CA|12345|1975-06-20\n")

	p.ImportFile(ctx, path)

	o, err := st.Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if o.Valid {
		t.Fatal("record with empty zipcode should be invalid")
	}
	if len(o.ValidationErrors) != 1 {
		t.Fatalf("ValidationErrors = %v", o.ValidationErrors)
	}
	if o.ValidationErrors[0].Rule != "Requiredzipcode" {
		t.Errorf("Rule = %q, want Requiredzipcode", o.ValidationErrors[0].Rule)
	}
	if o.ValidationErrors[0].Message != "The zipcode is missing" {
		t.Errorf("Message = %q", o.ValidationErrors[0].Message)
	}
}

func TestImportFile_AdjacentRecordUpgradesInvalidPredecessor(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	// Record 1 is invalid (bad email) but record 2 shares its state and
	// zipcode, which vouches for the address.
	path := writeOrderFile(t, header+
		"1|Guy|not-an-email|CA|12345|1980-03-01\n"+
		"2|Janet|janet@example.com|CA|12345|1975-06-20\n")

	p.ImportFile(ctx, path)

	o, err := st.Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !o.Valid {
		t.Error("record 1 should be upgraded to valid")
	}
	// The recorded failures stay: only the flag is upgraded.
	if len(o.ValidationErrors) == 0 {
		t.Error("validation errors should be preserved on upgrade")
	}
}

func TestImportFile_NoUpgradeWhenAddressDiffers(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	path := writeOrderFile(t, header+
		"1|Guy|not-an-email|CA|12345|1980-03-01\n"+
		"2|Janet|janet@example.com|CA|99999-0000|1975-06-20\n")

	p.ImportFile(ctx, path)

	o, err := st.Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if o.Valid {
		t.Error("record 1 should stay invalid without a matching address")
	}
}

func TestImportFile_NoUpgradeWhenAddressEmpty(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	// Both records are missing state and zipcode; empty never matches empty.
	path := writeOrderFile(t, header+
		"1|Guy|guy@example.com|||1980-03-01\n"+
		"2|Janet|janet@example.com|||1975-06-20\n")

	p.ImportFile(ctx, path)

	o, err := st.Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if o.Valid {
		t.Error("record with empty address must not be upgraded")
	}
}

func TestImportFile_UpsertLastWriteWins(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	path := writeOrderFile(t, header+
		"1|First|guy@example.com|CA|12345|1980-03-01\n"+
		"1|Second|guy@example.com|CA|12345|1980-03-01\n")

	result := p.ImportFile(ctx, path)
	if result.Applied != 2 {
		t.Errorf("Applied = %d, want 2", result.Applied)
	}

	n, err := st.Count(ctx, store.QueryPlan{})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}

	o, err := st.Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if o.Name != "Second" {
		t.Errorf("Name = %q, want the later row", o.Name)
	}
}

func TestImportFile_PreservesFileOrder(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	var content = header
	for i := 3; i >= 1; i-- {
		content += fmt.Sprintf("r%d|Name%d|n%d@example.com|CA|12345|1980-03-01\n", i, i, i)
	}
	path := writeOrderFile(t, content)

	p.ImportFile(ctx, path)

	got, err := st.Query(ctx, store.QueryPlan{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := []string{"r3", "r2", "r1"}
	for i, o := range got {
		if o.ID != want[i] {
			t.Fatalf("position %d = %q, want %q", i, o.ID, want[i])
		}
	}
}

func TestImportFile_MissingFile(t *testing.T) {
	p, _ := newTestPipeline(t)

	result := p.ImportFile(context.Background(), filepath.Join(t.TempDir(), "absent.csv"))
	if result.Status != StatusFailed {
		t.Errorf("Status = %q, want failed", result.Status)
	}
}
