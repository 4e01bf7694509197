package main

import (
	"bytes"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd_ListsModules(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	for _, want := range []string{"llmrelay dev", "provider.openai", "provider.websocket", "ledger.sqlite", "gateway.http"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestModelsCmd_WithoutConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())

	out, err := execute(t, "models")
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if !strings.Contains(out, "gpt-4o-mini") || !strings.Contains(out, "deepseek-reasoner") {
		t.Errorf("built-in models missing:\n%s", out)
	}
}

func TestModelsCmd_ExplicitConfigMissing(t *testing.T) {
	t.Parallel()

	if _, err := execute(t, "models", "--config", "/nonexistent/llmrelay.yaml"); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestStreamCmd_EmptyPrompt(t *testing.T) {
	t.Parallel()

	cmd := rootCmd()
	cmd.SetArgs([]string{"stream"})
	cmd.SetIn(strings.NewReader("   \n"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != errEmptyPrompt {
		t.Fatalf("err = %v, want errEmptyPrompt", err)
	}
}
