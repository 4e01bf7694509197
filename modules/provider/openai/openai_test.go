package openai

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/llmrelay/internal/core"
	"github.com/flemzord/llmrelay/internal/model"
)

func yamlNode(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("invalid yaml: %v", err)
	}
	if len(doc.Content) == 0 {
		t.Fatal("empty yaml document")
	}
	return doc.Content[0]
}

func testAppContext() *core.AppContext {
	return core.NewAppContext(slog.New(slog.NewTextHandler(io.Discard, nil)), "")
}

func TestModuleInfo(t *testing.T) {
	p := &Provider{}
	info := p.ModuleInfo()

	if info.ID != "provider.openai" {
		t.Errorf("expected ID provider.openai, got %s", info.ID)
	}
	if info.New == nil {
		t.Fatal("New function must not be nil")
	}
	if _, ok := info.New().(*Provider); !ok {
		t.Errorf("New() returned %T, want *Provider", info.New())
	}
}

func TestConfigure_Defaults(t *testing.T) {
	p := &Provider{}
	if err := p.Configure(yamlNode(t, `
api_key: sk-test
model: gpt-4o
`)); err != nil {
		t.Fatalf("Configure() error: %v", err)
	}

	if p.config.APIKey != "sk-test" {
		t.Errorf("api_key = %q, want sk-test", p.config.APIKey)
	}
	if p.config.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("base_url = %q, want default", p.config.BaseURL)
	}
	if p.config.Timeout != "30s" {
		t.Errorf("timeout = %q, want 30s", p.config.Timeout)
	}
}

func TestConfigure_CustomValues(t *testing.T) {
	p := &Provider{}
	if err := p.Configure(yamlNode(t, `
api_key: sk-custom
model: my-model
base_url: https://custom.api.com/v1
max_tokens: 4096
temperature: 0.7
reasoning_effort: high
timeout: 60s
requests_per_minute: 120
headers:
  X-Team: infra
model_info:
  context_window: 100000
  input_price: 0.000002
retry:
  max_attempts: 5
  base_delay: 10ms
`)); err != nil {
		t.Fatalf("Configure() error: %v", err)
	}

	c := p.config
	if c.BaseURL != "https://custom.api.com/v1" {
		t.Errorf("base_url = %q", c.BaseURL)
	}
	if c.MaxTokens != 4096 {
		t.Errorf("max_tokens = %d, want 4096", c.MaxTokens)
	}
	if c.Temperature == nil || *c.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", c.Temperature)
	}
	if c.ReasoningEffort != "high" {
		t.Errorf("reasoning_effort = %q", c.ReasoningEffort)
	}
	if c.RequestsPerMinute != 120 {
		t.Errorf("requests_per_minute = %d", c.RequestsPerMinute)
	}
	if c.Headers["X-Team"] != "infra" {
		t.Errorf("headers = %v", c.Headers)
	}
	if c.ModelInfo == nil || c.ModelInfo.ContextWindow != 100000 {
		t.Errorf("model_info = %+v", c.ModelInfo)
	}
	if c.Retry.MaxAttempts != 5 || c.Retry.BaseDelay != "10ms" {
		t.Errorf("retry = %+v", c.Retry)
	}
}

func TestProvision_ResolvesModelFromRegistryService(t *testing.T) {
	reg := model.NewRegistry()
	reg.Register(model.Descriptor{ID: "house-model", ContextWindow: 4242})

	appCtx := testAppContext()
	appCtx.RegisterService(model.ServiceName, reg)

	p := &Provider{}
	if err := p.Configure(yamlNode(t, "api_key: k\nmodel: house-model\n")); err != nil {
		t.Fatal(err)
	}
	if err := p.Provision(appCtx); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}

	if got := p.ResolveModel().ContextWindow; got != 4242 {
		t.Errorf("ContextWindow = %d, want 4242", got)
	}
	svc, ok := appCtx.Service(ModuleID)
	if !ok || svc != p {
		t.Error("provider should register itself as a service")
	}
}

func TestProvision_UnknownModelUsesDefaults(t *testing.T) {
	p := &Provider{}
	if err := p.Configure(yamlNode(t, "api_key: k\nmodel: something-new\n")); err != nil {
		t.Fatal(err)
	}
	if err := p.Provision(testAppContext()); err != nil {
		t.Fatal(err)
	}

	d := p.ResolveModel()
	if d.ID != "something-new" || d.ContextWindow != 128000 || d.MaxOutputTokens != -1 {
		t.Errorf("ResolveModel() = %+v, want sane defaults", d)
	}
}

func TestProvision_InvalidRetry(t *testing.T) {
	p := &Provider{}
	if err := p.Configure(yamlNode(t, "api_key: k\nmodel: m\nretry:\n  base_delay: soon\n")); err != nil {
		t.Fatal(err)
	}
	if err := p.Provision(testAppContext()); err == nil {
		t.Fatal("expected error for invalid retry.base_delay")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:   "valid",
			config: validConfig(),
		},
		{
			name:    "missing api_key",
			config:  func() Config { c := validConfig(); c.APIKey = ""; return c }(),
			wantErr: "api_key is required",
		},
		{
			name:    "missing model",
			config:  func() Config { c := validConfig(); c.Model = ""; return c }(),
			wantErr: "model is required",
		},
		{
			name:    "bad timeout",
			config:  func() Config { c := validConfig(); c.Timeout = "forever"; return c }(),
			wantErr: "invalid timeout",
		},
		{
			name:    "negative rpm",
			config:  func() Config { c := validConfig(); c.RequestsPerMinute = -1; return c }(),
			wantErr: "requests_per_minute",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Provider{config: tt.config}
			err := p.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func validConfig() Config {
	c := Config{}
	c.APIKey = "sk"
	c.Model = "gpt-4o"
	c.defaults()
	return c
}

func TestSelectTransport(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		version string
		model   string
		want    string
	}{
		{"openai", "https://api.openai.com/v1", "", "gpt-4o", "openai"},
		{"explicit api version", "https://gateway.example.com", "2024-06-01", "gpt-4o", "azure-openai"},
		{"azure host", "https://team.openai.azure.com", "", "gpt-4o", "azure-openai"},
		{"azure gov host", "https://team.openai.azure.us", "", "gpt-4o", "azure-openai"},
		{"deepseek on azure", "https://team.services.ai.azure.com/models", "", "deepseek-reasoner", "openai"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Config{}
			c.BaseURL = tt.baseURL
			c.APIVersion = tt.version
			c.Model = tt.model
			if got := selectTransport(c).name(); got != tt.want {
				t.Errorf("selectTransport() = %q, want %q", got, tt.want)
			}
		})
	}
}
