package gateway

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/llmrelay/internal/model"
	"github.com/flemzord/llmrelay/internal/usage"
)

// UsageResponse is the JSON response for GET /v1/usage/{task}.
type UsageResponse struct {
	Totals  usage.Totals  `json:"totals"`
	Entries []usage.Entry `json:"entries,omitempty"`
}

// handleUsage returns per-task usage totals. ?entries=N adds the N most
// recent ledger entries; N <= 0 means all of them.
func (g *Gateway) handleUsage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.ledger == nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "no usage ledger configured")
			return
		}
		task := chi.URLParam(r, "task")

		totals, err := g.ledger.TaskTotals(r.Context(), task)
		if err != nil {
			g.logger.Error("usage totals failed", "task_id", task, "error", err)
			writeError(w, http.StatusInternalServerError, "internal", "usage lookup failed")
			return
		}
		if totals.Calls == 0 {
			writeError(w, http.StatusNotFound, "not_found", "no usage recorded for task "+strconv.Quote(task))
			return
		}

		resp := UsageResponse{Totals: totals}
		if raw := r.URL.Query().Get("entries"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "entries must be an integer")
				return
			}
			resp.Entries, err = g.ledger.Entries(r.Context(), task, limit)
			if err != nil {
				g.logger.Error("usage entries failed", "task_id", task, "error", err)
				writeError(w, http.StatusInternalServerError, "internal", "usage lookup failed")
				return
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ModelsResponse is the JSON response for GET /v1/models.
type ModelsResponse struct {
	Models []model.Descriptor `json:"models"`
}

func (g *Gateway) handleModels() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		reg := g.models
		if reg == nil {
			reg = model.Default()
		}
		writeJSON(w, http.StatusOK, ModelsResponse{Models: reg.List()})
	}
}
