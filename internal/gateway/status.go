package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/llmrelay/internal/provider"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime    int64                  `json:"uptime_seconds"`
	Stats     StatsSnapshot          `json:"stats"`
	Providers []provider.EntryStatus `json:"providers"`
	Ledger    bool                   `json:"ledger"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime: int64(time.Since(g.startedAt) / time.Second),
			Stats:  g.stats.Snapshot(),
			Ledger: g.ledger != nil,
		}
		if g.chain != nil {
			resp.Providers = g.chain.Status()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
