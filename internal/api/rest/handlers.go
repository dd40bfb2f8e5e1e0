package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/fortuna/tipoff/internal/dataset"
	"github.com/fortuna/tipoff/internal/game"
)

var datasetName = regexp.MustCompile(`^\d{4}-\d{2}(-today)?$`)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	datasets *dataset.Store
	checks   map[string]HealthChecker
}

// NewHandler creates a new handler
func NewHandler(datasets *dataset.Store, checks map[string]HealthChecker) *Handler {
	return &Handler{datasets: datasets, checks: checks}
}

// HealthCheck reports the service status and probes each dependency.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for name, c := range h.checks {
		if err := c.HealthCheck(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	respondJSON(w, status, map[string]interface{}{
		"status":  state,
		"service": "tipoff",
		"checks":  checks,
	})
}

// GetDataset returns a persisted dataset. The optional limit query parameter
// returns only the most recent rows.
func (h *Handler) GetDataset(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if !datasetName.MatchString(name) {
		respondError(w, http.StatusBadRequest, "Invalid dataset name (YYYY-YY or YYYY-YY-today)", nil)
		return
	}
	if h.datasets == nil {
		respondError(w, http.StatusServiceUnavailable, "Dataset store not configured", nil)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	ds, err := h.datasets.Load(name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		respondError(w, http.StatusNotFound, "Dataset not found", nil)
		return
	case errors.Is(err, dataset.ErrMalformed):
		respondError(w, http.StatusUnprocessableEntity, "Dataset is malformed", err)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "Failed to load dataset", err)
		return
	}

	payload := map[string]interface{}{
		"name":       name,
		"columns":    ds.Columns,
		"rows_total": ds.Len(),
	}

	cp, ok, err := ds.Checkpoint()
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "Dataset is malformed", err)
		return
	}
	if ok {
		payload["checkpoint"] = map[string]string{
			"date":    cp.Date.Format(game.DateLayout),
			"game_id": cp.GameID,
		}
	}

	rows := ds.Rows
	if limit > 0 && limit < len(rows) {
		rows = rows[len(rows)-limit:]
	}
	if rows == nil {
		rows = [][]string{}
	}
	payload["rows"] = rows

	respondJSON(w, http.StatusOK, payload)
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
