package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/winecellarhq/orderimport/internal/filter"
	"github.com/winecellarhq/orderimport/internal/importer"
	"github.com/winecellarhq/orderimport/internal/logging"
	"github.com/winecellarhq/orderimport/internal/order"
	"github.com/winecellarhq/orderimport/internal/store"
)

// orderList is the response envelope for the order listing endpoint.
type orderList struct {
	NumOfOrders int            `json:"num_of_orders"`
	Results     []*order.Order `json:"results"`
}

// handleListOrders returns orders matching the request's query parameters.
//
// Unknown parameters and unparseable values are ignored rather than
// rejected, so this endpoint never fails on bad filter input.
func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	params := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	spec := filter.Parse(params)

	orders, err := s.store.Query(r.Context(), spec.Plan())
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to query orders", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query orders")
		return
	}

	results := make([]*order.Order, len(orders))
	for i, o := range orders {
		results[i] = o.WithDisplayLayout(s.cfg.Import.OutputDateFormat)
	}

	writeJSON(w, orderList{NumOfOrders: len(results), Results: results})
}

// handleGetOrder returns a single order by id.
func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "orderID")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	o, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to load order", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load order")
		return
	}

	writeJSON(w, o.WithDisplayLayout(s.cfg.Import.OutputDateFormat))
}

// handleImportOrders accepts a multipart upload of a delimited order file,
// stages it to disk, and runs the import pipeline over it.
func (s *Server) handleImportOrders(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	maxSize := s.cfg.Import.MaxUploadSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large or invalid form")
		return
	}

	file, _, err := r.FormFile("orders")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	path, err := s.stageUpload(file)
	if err != nil {
		log.Error("failed to stage upload", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}

	result := s.pipeline.ImportFile(r.Context(), path)
	switch result.Status {
	case importer.StatusRejected:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":         string(result.Status),
			"missing_fields": result.MissingFields,
		})
	case importer.StatusFailed:
		writeError(w, http.StatusInternalServerError, "import failed")
	default:
		writeJSON(w, map[string]interface{}{
			"status":       string(result.Status),
			"applied":      result.Applied,
			"skipped_rows": result.SkippedRows,
		})
	}
}

// stageUpload copies an uploaded file into the staging directory under a
// fresh name and returns its path.
func (s *Server) stageUpload(src io.Reader) (string, error) {
	if err := os.MkdirAll(s.cfg.Import.StagingDir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(s.cfg.Import.StagingDir, uuid.NewString()+".csv")
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
