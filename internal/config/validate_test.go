package config

import (
	"strings"
	"testing"

	"github.com/flemzord/llmrelay/internal/core"
	"github.com/flemzord/llmrelay/internal/model"
	"gopkg.in/yaml.v3"
)

// stubModule is a basic module for testing.
type stubModule struct {
	id string
}

func (m *stubModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  core.ModuleID(m.id),
		New: func() core.Module { return &stubModule{id: m.id} },
	}
}

// registerProvider registers a stub provider module unique to the test.
func registerProvider(t *testing.T, suffix string) string {
	t.Helper()
	id := "provider." + t.Name() + suffix
	core.RegisterModule(&stubModule{id: id})
	return id
}

func validConfig(t *testing.T) (*Config, string) {
	t.Helper()
	id := registerProvider(t, "")
	return &Config{
		Version: "1",
		Modules: map[string]yaml.Node{id: {}},
	}, id
}

func TestValidate_Valid(t *testing.T) {
	cfg, _ := validConfig(t)
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_FullConfig(t *testing.T) {
	cfg, primary := validConfig(t)
	backup := registerProvider(t, ".backup")
	cfg.Modules[backup] = yaml.Node{}
	cfg.Chain = []ChainEntry{
		{Module: primary, Role: "primary"},
		{Module: backup, Role: "fallback", FallbackFor: []string{"primary"}},
	}
	cfg.Health = HealthConfig{InitialBackoff: "500ms", MaxBackoff: "30s", MaxFailures: 3}
	cfg.Pricing = map[string]model.Price{"gpt-4o": {Input: 2.5, Output: 10}}
	cfg.Models = []model.Descriptor{{ID: "local-llama", ContextWindow: 8192}}
	cfg.Logging = LoggingConfig{Level: "debug", Format: "json"}

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config, id string)
		want   string
	}{
		{"missing version", func(c *Config, _ string) { c.Version = "" }, "version field is required"},
		{"unsupported version", func(c *Config, _ string) { c.Version = "99" }, "unsupported version"},
		{"no modules", func(c *Config, _ string) { c.Modules = nil }, "at least one module"},
		{"unknown module", func(c *Config, _ string) { c.Modules["provider.nope"] = yaml.Node{} }, `unknown module "provider.nope"`},
		{"chain missing module", func(c *Config, _ string) { c.Chain = []ChainEntry{{Role: "primary"}} }, "module is required"},
		{"chain not configured", func(c *Config, _ string) {
			c.Chain = []ChainEntry{{Module: "provider.other", Role: "primary"}}
		}, "has no entry under modules"},
		{"chain bad role", func(c *Config, id string) { c.Chain = []ChainEntry{{Module: id, Role: "boss"}} }, `invalid role "boss"`},
		{"chain duplicate", func(c *Config, id string) {
			c.Chain = []ChainEntry{{Module: id, Role: "primary"}, {Module: id, Role: "internal"}}
		}, "duplicate module"},
		{"fallback_for without fallback role", func(c *Config, id string) {
			c.Chain = []ChainEntry{{Module: id, Role: "primary", FallbackFor: []string{"internal"}}}
		}, "fallback_for requires role"},
		{"fallback_for bad role", func(c *Config, id string) {
			c.Chain = []ChainEntry{{Module: id, Role: "fallback", FallbackFor: []string{"fallback"}}}
		}, "invalid fallback_for role"},
		{"bad health duration", func(c *Config, _ string) { c.Health.MaxBackoff = "soon" }, "health.max_backoff"},
		{"negative health duration", func(c *Config, _ string) { c.Health.CheckInterval = "-1s" }, "must not be negative"},
		{"negative price", func(c *Config, _ string) {
			c.Pricing = map[string]model.Price{"gpt-4o": {Output: -1}}
		}, "prices must not be negative"},
		{"model without id", func(c *Config, _ string) { c.Models = []model.Descriptor{{ContextWindow: 10}} }, "id is required"},
		{"bad log level", func(c *Config, _ string) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *Config, _ string) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, id := validConfig(t)
			tt.mutate(cfg, id)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestValidate_RequiresProviderModule(t *testing.T) {
	id := "ledger." + t.Name()
	core.RegisterModule(&stubModule{id: id})
	cfg := &Config{Version: "1", Modules: map[string]yaml.Node{id: {}}}

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "provider.* module") {
		t.Fatalf("expected provider requirement error, got %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &Config{
		Modules: map[string]yaml.Node{"provider.unknown": {}},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "version") || !strings.Contains(msg, "unknown module") {
		t.Errorf("expected both version and unknown module errors: %v", msg)
	}
}

func TestResolveChain_Default(t *testing.T) {
	t.Parallel()

	cfg := &Config{Modules: map[string]yaml.Node{
		"provider.websocket": {},
		"ledger.sqlite":      {},
		"provider.openai":    {},
	}}
	got := ResolveChain(cfg)
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	if got[0].Module != "provider.openai" || got[1].Module != "provider.websocket" {
		t.Errorf("order = %v", got)
	}
	for _, e := range got {
		if e.Role != "primary" {
			t.Errorf("%s role = %q, want primary", e.Module, e.Role)
		}
	}
}

func TestResolveChain_Explicit(t *testing.T) {
	t.Parallel()

	chain := []ChainEntry{{Module: "provider.websocket", Role: "fallback", FallbackFor: []string{"primary"}}}
	cfg := &Config{Chain: chain}
	got := ResolveChain(cfg)
	if len(got) != 1 || got[0].Module != "provider.websocket" {
		t.Fatalf("got %v", got)
	}
	roles := got[0].Roles()
	if len(roles) != 1 || roles[0] != "primary" {
		t.Errorf("Roles() = %v", roles)
	}
	if (ChainEntry{}).Roles() != nil {
		t.Error("empty fallback_for should yield nil roles")
	}
}

func TestHealthConfig_Parse(t *testing.T) {
	t.Parallel()

	h, err := HealthConfig{InitialBackoff: "2s", MaxFailures: 4}.Parse()
	if err != nil {
		t.Fatal(err)
	}
	if h.InitialBackoff.String() != "2s" || h.MaxFailures != 4 || h.MaxBackoff != 0 {
		t.Errorf("Parse() = %+v", h)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{"": "INFO", "debug": "DEBUG", "WARN": "WARN", "error": "ERROR"} {
		lvl, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if lvl.String() != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, lvl, want)
		}
	}
}
