package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fortuna/tipoff/internal/backfill"
	"github.com/fortuna/tipoff/internal/game"
)

// RunHandler proxies API calls to the run service.
type RunHandler struct {
	service RunService
}

// NewRunHandler wires the REST layer to the run service.
func NewRunHandler(service RunService) *RunHandler {
	return &RunHandler{service: service}
}

type apiRunRequest struct {
	Mode      string `json:"mode"`
	Season    string `json:"season"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// HandleSubmit handles POST /api/v1/runs
func (h *RunHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req apiRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	runReq := backfill.Request{
		Mode:   backfill.Mode(req.Mode),
		Season: req.Season,
	}

	var err error
	if runReq.Start, err = parseDate(req.StartDate); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid start_date format (YYYY-MM-DD)", err)
		return
	}
	if runReq.End, err = parseDate(req.EndDate); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid end_date format (YYYY-MM-DD)", err)
		return
	}

	spec, err := h.service.Submit(r.Context(), runReq)
	switch {
	case errors.Is(err, backfill.ErrRunActive):
		respondError(w, http.StatusConflict, "A run is already active", err)
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, "Failed to start run", err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"run": map[string]interface{}{
			"run_id":     spec.RunID,
			"mode":       spec.Mode,
			"season":     spec.Season,
			"start_date": spec.Start.Format(game.DateLayout),
			"end_date":   spec.End.Format(game.DateLayout),
			"dataset":    spec.DatasetName(),
		},
	})
}

// HandleStatus handles GET /api/v1/runs
func (h *RunHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Status(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch status", err)
		return
	}

	respondJSON(w, http.StatusOK, buildStatusPayload(summary))
}

// HandleActive handles GET /api/v1/runs/active
func (h *RunHandler) HandleActive(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Status(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch status", err)
		return
	}
	if summary.Active == nil {
		respondError(w, http.StatusNotFound, "No active run", nil)
		return
	}
	respondJSON(w, http.StatusOK, summary.Active)
}

// HandleCancel handles DELETE /api/v1/runs/active. Records collected before
// the cancel are still saved.
func (h *RunHandler) HandleCancel(w http.ResponseWriter, _ *http.Request) {
	runID, ok := h.service.Cancel()
	if !ok {
		respondError(w, http.StatusNotFound, "No active run", nil)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": "cancelling",
	})
}

func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := game.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", raw, err)
	}
	return &d, nil
}

func buildStatusPayload(summary *backfill.StatusSummary) map[string]interface{} {
	response := map[string]interface{}{
		"status":  "idle",
		"message": "No active run",
		"history": []map[string]interface{}{},
	}

	if summary.Active != nil {
		response["status"] = backfill.RunStatusRunning
		response["message"] = fmt.Sprintf("%d of %d dates processed",
			summary.Active.DatesProcessed, summary.Active.DatesTotal)
		response["active_run"] = summary.Active
	}
	if summary.Last != nil {
		response["last_run"] = summary.Last
	}

	history := make([]map[string]interface{}, 0, len(summary.History))
	for _, run := range summary.History {
		history = append(history, runPayload(run))
	}

	response["history"] = history
	return response
}

func runPayload(run *backfill.Run) map[string]interface{} {
	if run == nil {
		return nil
	}

	payload := map[string]interface{}{
		"run_id":           run.RunID,
		"mode":             run.Mode,
		"season":           run.Season,
		"status":           run.Status,
		"progress_current": run.ProgressCurrent,
		"progress_total":   run.ProgressTotal,
		"records_saved":    run.RecordsSaved,
		"created_at":       run.CreatedAt,
		"updated_at":       run.UpdatedAt,
	}

	if run.StatusMessage.Valid {
		payload["status_message"] = run.StatusMessage.String
	}
	if run.StartDate.Valid {
		payload["start_date"] = run.StartDate.Time.Format(game.DateLayout)
	}
	if run.EndDate.Valid {
		payload["end_date"] = run.EndDate.Time.Format(game.DateLayout)
	}
	if run.CompletedAt.Valid {
		payload["completed_at"] = run.CompletedAt.Time
	}
	if run.LastError.Valid {
		payload["last_error"] = run.LastError.String
	}

	return payload
}
