package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flemzord/llmrelay/internal/config"
	"github.com/flemzord/llmrelay/internal/gateway"
	"github.com/flemzord/llmrelay/modules/ledger/sqlite"
	"github.com/flemzord/llmrelay/modules/provider/openai"
	"github.com/flemzord/llmrelay/modules/provider/websocket"
)

// loadRendered writes data to a temp file and loads it back.
func loadRendered(t *testing.T, data []byte) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "llmrelay.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v\n%s", err, data)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v\n%s", err, data)
	}
	return cfg
}

func decodeModule(t *testing.T, cfg *config.Config, id string) providerSection {
	t.Helper()
	node, ok := cfg.Modules[id]
	if !ok {
		t.Fatalf("module %s missing", id)
	}
	var s providerSection
	if err := node.Decode(&s); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRenderConfig_OpenAIDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	data, err := renderConfig(defaultAnswers())
	if err != nil {
		t.Fatalf("renderConfig: %v", err)
	}
	if !strings.HasPrefix(string(data), configHeader) {
		t.Error("missing header")
	}
	if !strings.Contains(string(data), "${OPENAI_API_KEY}") {
		t.Errorf("api key should reference the environment:\n%s", data)
	}

	cfg := loadRendered(t, data)
	s := decodeModule(t, cfg, openai.ModuleID)
	if s.APIKey != "sk-test" || s.Model != "gpt-4o-mini" || s.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("provider = %+v", s)
	}
	if _, ok := cfg.Modules[sqlite.ModuleID]; !ok {
		t.Error("ledger missing")
	}
	if _, ok := cfg.Modules[gateway.ModuleID]; ok {
		t.Error("gateway should be off by default")
	}
}

func TestRenderConfig_Azure(t *testing.T) {
	t.Setenv("AZ_KEY", "secret")

	a := defaultAnswers()
	a.Backend = backendAzure
	a.BaseURL = "https://res.openai.azure.com/openai/deployments/gpt4o"
	a.APIKeyEnv = "AZ_KEY"
	a.Ledger = false

	data, err := renderConfig(a)
	if err != nil {
		t.Fatalf("renderConfig: %v", err)
	}
	cfg := loadRendered(t, data)
	s := decodeModule(t, cfg, openai.ModuleID)
	if s.APIVersion != openai.DefaultAzureAPIVersion || s.APIKey != "secret" {
		t.Errorf("provider = %+v", s)
	}
	if len(cfg.Modules) != 1 {
		t.Errorf("modules = %d, want 1", len(cfg.Modules))
	}
}

func TestRenderConfig_WebSocketWithGateway(t *testing.T) {
	t.Setenv("GW_TOKEN", "tok")

	a := defaultAnswers()
	a.Backend = backendWebSocket
	a.Gateway = true
	a.Bind = "0.0.0.0:9000"
	a.GatewayTokenEnv = "GW_TOKEN"

	data, err := renderConfig(a)
	if err != nil {
		t.Fatalf("renderConfig: %v", err)
	}
	cfg := loadRendered(t, data)
	s := decodeModule(t, cfg, websocket.ModuleID)
	if s.APIKey != "" || s.BaseURL != websocket.DefaultURL || s.Model != websocket.DefaultModel {
		t.Errorf("provider = %+v", s)
	}

	node := cfg.Modules[gateway.ModuleID]
	var gw gatewaySection
	if err := node.Decode(&gw); err != nil {
		t.Fatal(err)
	}
	if gw.Bind != "0.0.0.0:9000" || gw.Auth == nil || gw.Auth.BearerToken != "tok" {
		t.Errorf("gateway = %+v", gw)
	}
}

func TestRenderConfig_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*initAnswers)
		want   string
	}{
		{name: "unknown backend", mutate: func(a *initAnswers) { a.Backend = "grpc" }, want: "unknown backend"},
		{name: "azure without url", mutate: func(a *initAnswers) { a.Backend = backendAzure }, want: "azure needs a base url"},
		{name: "bad env name", mutate: func(a *initAnswers) { a.APIKeyEnv = "1BAD" }, want: "not a valid environment variable name"},
		{name: "bad url scheme", mutate: func(a *initAnswers) { a.BaseURL = "ftp://x" }, want: "unsupported scheme"},
		{name: "bad bind", mutate: func(a *initAnswers) { a.Gateway = true; a.Bind = "nocolon" }, want: "bind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := defaultAnswers()
			tt.mutate(&a)
			_, err := renderConfig(a)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestInitCmd_NonInteractive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "llmrelay.yaml")
	out, err := execute(t, "init", "--yes", "--backend", "websocket", "--ledger=false", "-o", path)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "Wrote "+path) {
		t.Errorf("output = %q", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), websocket.ModuleID) {
		t.Errorf("config missing websocket module:\n%s", data)
	}

	if _, err := execute(t, "init", "--yes", "-o", path); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("second init err = %v, want already exists", err)
	}
	if _, err := execute(t, "init", "--yes", "--force", "-o", path); err != nil {
		t.Fatalf("init --force: %v", err)
	}
}
