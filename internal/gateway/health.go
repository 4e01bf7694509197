package gateway

import (
	"net/http"

	"github.com/flemzord/llmrelay/internal/provider"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string                 `json:"status"` // "ok", "degraded" or "down"
	Providers []provider.EntryStatus `json:"providers"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// It returns 200 while at least one chain entry is healthy and 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "down"}
		if g.chain != nil {
			resp.Providers = g.chain.Status()
			resp.Status = healthStatus(resp.Providers)
		}

		code := http.StatusOK
		if resp.Status == "down" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

func healthStatus(entries []provider.EntryStatus) string {
	healthy := 0
	for _, e := range entries {
		if e.State == "healthy" {
			healthy++
		}
	}
	switch {
	case healthy == 0:
		return "down"
	case healthy < len(entries):
		return "degraded"
	default:
		return "ok"
	}
}
