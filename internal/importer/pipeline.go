// Package importer streams a delimited order file into the record store.
//
// The pipeline reads the header, rejects the whole file when required
// columns are missing (the file is kept on disk for inspection), applies
// every well-formed row as an upsert-by-id, and deletes the source file on
// the way out. Row-level problems are logged and skipped; nothing at row
// level aborts the import.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/winecellarhq/orderimport/internal/logging"
	"github.com/winecellarhq/orderimport/internal/order"
	"github.com/winecellarhq/orderimport/internal/rules"
	"github.com/winecellarhq/orderimport/internal/store"
)

// Status is the outcome of an import run.
type Status string

const (
	// StatusAccepted means the file was processed; individual rows may
	// still have been skipped.
	StatusAccepted Status = "accepted"

	// StatusRejected means required header fields were missing and no
	// rows were processed. The source file is left on disk.
	StatusRejected Status = "rejected"

	// StatusFailed means the stream could not be read at all.
	StatusFailed Status = "failed"
)

// DefaultRequiredFields are the header columns an order file must declare
// when the pipeline is not configured with its own list.
var DefaultRequiredFields = []string{"id", "name", "email", "state", "zipcode", "birthday"}

// Result summarizes an import run. Pipeline-level problems are logged, not
// returned: callers only see status values.
type Result struct {
	Status        Status
	Applied       int
	SkippedRows   int
	MissingFields []string
}

// Config carries the file-format settings for the pipeline.
type Config struct {
	// Delimiter separates fields in the uploaded file, e.g. '|'.
	Delimiter rune

	// InputDateLayout parses the birthday column.
	InputDateLayout string

	// OutputDateLayout renders birthdays on read; kept here so the
	// pipeline constructs fully wired orders.
	OutputDateLayout string

	// RequiredFields overrides DefaultRequiredFields when non-empty.
	RequiredFields []string
}

// Pipeline imports delimited order files into a store.
type Pipeline struct {
	store  store.Store
	engine *rules.Engine
	cfg    Config
}

// New creates an import pipeline.
func New(st store.Store, engine *rules.Engine, cfg Config) *Pipeline {
	if len(cfg.RequiredFields) == 0 {
		cfg.RequiredFields = DefaultRequiredFields
	}
	return &Pipeline{store: st, engine: engine, cfg: cfg}
}

// ImportFile imports one file and, on the success path, deletes it. Two
// runs over the same file must not overlap: the delete would race. Re-running
// against an unmodified copy is idempotent thanks to upsert-by-id.
func (p *Pipeline) ImportFile(ctx context.Context, path string) Result {
	log := logging.FromContext(ctx).With("file", path)

	f, err := os.Open(path)
	if err != nil {
		log.Error("failed to open order file", "error", err)
		return Result{Status: StatusFailed}
	}

	r := csv.NewReader(f)
	r.Comma = p.cfg.Delimiter
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		log.Error("failed to read header", "error", err)
		f.Close()
		return Result{Status: StatusFailed}
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	if missing := missingFields(header, p.cfg.RequiredFields); len(missing) > 0 {
		// Rejected files stay on disk for inspection.
		log.Error("failed to import orders: required fields missing from header",
			"missing_fields", strings.Join(missing, ","))
		f.Close()
		return Result{Status: StatusRejected, MissingFields: missing}
	}

	result := Result{Status: StatusAccepted}
	var prev *order.Order

	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			log.Warn("skipping malformed row", "line", line, "error", err)
			result.SkippedRows++
			continue
		}
		if err != nil {
			log.Error("order stream unreadable, stopping", "line", line, "error", err)
			break
		}

		if len(row) != len(header) {
			log.Warn("skipping row with wrong field count",
				"line", line, "want", len(header), "got", len(row))
			result.SkippedRows++
			continue
		}

		cur := order.New(p.engine, p.cfg.InputDateLayout, p.cfg.OutputDateLayout)
		for i, field := range header {
			cur.SetField(field, row[i])
		}
		if cur.ID == "" {
			log.Warn("skipping row without id", "line", line)
			result.SkippedRows++
			continue
		}

		if err := p.store.Upsert(ctx, cur); err != nil {
			log.Warn("failed to persist row", "line", line, "id", cur.ID, "error", err)
			result.SkippedRows++
			continue
		}
		result.Applied++

		p.applyAdjacencyUpgrade(ctx, log, prev, cur)
		prev = cur
	}

	// Success path: the file has been consumed, remove it. Failures here
	// are logged with the path and swallowed.
	f.Close()
	if err := os.Remove(path); err != nil {
		log.Error("failed to delete imported file", "error", err)
	}

	log.Info("order import finished",
		"applied", result.Applied, "skipped", result.SkippedRows)
	return result
}

// applyAdjacencyUpgrade runs the one cross-record rule: an invalid record
// is upgraded to valid when the immediately following record shares its
// non-empty state and zipcode. Only the valid flag flips; the earlier
// record's error list is untouched.
func (p *Pipeline) applyAdjacencyUpgrade(ctx context.Context, log *slog.Logger, prev, cur *order.Order) {
	if prev == nil || prev.Valid {
		return
	}
	if prev.State == "" || prev.Zipcode == "" {
		return
	}
	if prev.State != cur.State || prev.Zipcode != cur.Zipcode {
		return
	}
	if err := p.store.SetValid(ctx, prev.ID, true); err != nil {
		log.Warn("failed to upgrade adjacent record", "id", prev.ID, "error", err)
		return
	}
	prev.Valid = true
}

// missingFields returns the required fields absent from the header.
func missingFields(header, required []string) []string {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var missing []string
	for _, field := range required {
		if !present[field] {
			missing = append(missing, field)
		}
	}
	return missing
}
