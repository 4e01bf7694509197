package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/llmrelay/internal/provider"
	"github.com/flemzord/llmrelay/internal/provider/providertest"
	"github.com/flemzord/llmrelay/internal/usage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newHandlerGateway builds a provisioned gateway without listening.
func newHandlerGateway(t *testing.T, chain *provider.Chain, ledger usage.Ledger) *Gateway {
	t.Helper()
	g := &Gateway{
		logger:    testLogger(),
		stats:     &Stats{},
		chain:     chain,
		ledger:    ledger,
		startedAt: time.Now(),
	}
	g.config.defaults()
	return g
}

// serve starts an httptest server on the gateway router.
func serve(t *testing.T, g *Gateway) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(g.buildRouter())
	t.Cleanup(srv.Close)
	return srv
}

// newTestChain creates a single-entry primary chain around p.
func newTestChain(t *testing.T, p provider.Provider) *provider.Chain {
	t.Helper()
	chain, err := provider.NewChain([]provider.ChainEntry{
		{Name: "mock", Provider: p, Role: provider.RolePrimary},
	})
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	return chain
}

// streaming returns a mock provider that replays evs on every call.
func streaming(evs ...provider.StreamEvent) *providertest.MockProvider {
	return &providertest.MockProvider{
		StreamFunc: func(context.Context, string, provider.Conversation) (<-chan provider.StreamEvent, error) {
			return providertest.Events(evs...), nil
		},
	}
}

type sseEvent struct {
	Name string
	Data string
}

// readSSE parses a complete SSE body.
func readSSE(t *testing.T, r io.Reader) []sseEvent {
	t.Helper()
	var (
		out []sseEvent
		cur sseEvent
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur.Name != "" {
				out = append(out, cur)
			}
			cur = sseEvent{}
		case strings.HasPrefix(line, "event: "):
			cur.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.Data = strings.TrimPrefix(line, "data: ")
		}
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("read SSE: %v", err)
	}
	return out
}

func decodeData[T any](t *testing.T, ev sseEvent) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(ev.Data), &v); err != nil {
		t.Fatalf("decode %s data %q: %v", ev.Name, ev.Data, err)
	}
	return v
}
