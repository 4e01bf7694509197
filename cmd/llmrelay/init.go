package main

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"

	"github.com/charmbracelet/huh"
	"github.com/flemzord/llmrelay/internal/config"
	"github.com/flemzord/llmrelay/internal/gateway"
	"github.com/flemzord/llmrelay/modules/ledger/sqlite"
	"github.com/flemzord/llmrelay/modules/provider/openai"
	"github.com/flemzord/llmrelay/modules/provider/websocket"
	"github.com/flemzord/llmrelay/pkg/app"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Backends offered by the wizard.
const (
	backendOpenAI    = "openai"
	backendAzure     = "azure"
	backendWebSocket = "websocket"
)

const configHeader = "# llmrelay configuration, generated by `llmrelay init`.\n" +
	"# Secrets are read from the environment at load time.\n"

var envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// initAnswers holds what the wizard collected. Secrets are never stored,
// only the names of the environment variables that hold them.
type initAnswers struct {
	Backend         string
	BaseURL         string
	Model           string
	APIKeyEnv       string
	Ledger          bool
	Retention       string
	Gateway         bool
	Bind            string
	GatewayTokenEnv string
}

func defaultAnswers() initAnswers {
	return initAnswers{
		Backend:   backendOpenAI,
		Ledger:    true,
		Retention: "720h",
		Bind:      "127.0.0.1:8080",
	}
}

func initCmd() *cobra.Command {
	var (
		output string
		force  bool
		yes    bool
	)
	answers := defaultAnswers()

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Long: "Write a starter configuration file.\n" +
			"An interactive form asks for the backend and optional modules unless --yes is given.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output == "" {
				output = app.ConfigCandidates()[0]
			}
			if !force {
				if _, err := os.Stat(output); err == nil {
					return fmt.Errorf("init: %s already exists (use --force to overwrite)", output)
				}
			}

			if !yes {
				if err := runWizard(&answers); err != nil {
					return err
				}
			}

			data, err := renderConfig(answers)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o750); err != nil {
				return fmt.Errorf("init: %w", err)
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("init: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Where to write the file (default: first config search path)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the form and use flags and defaults")
	cmd.Flags().StringVar(&answers.Backend, "backend", answers.Backend, "Backend: openai, azure or websocket")
	cmd.Flags().StringVar(&answers.BaseURL, "base-url", "", "Backend base URL (default depends on the backend)")
	cmd.Flags().StringVar(&answers.Model, "model", "", "Model id (default depends on the backend)")
	cmd.Flags().StringVar(&answers.APIKeyEnv, "api-key-env", "", "Environment variable holding the API key (default depends on the backend)")
	cmd.Flags().BoolVar(&answers.Ledger, "ledger", answers.Ledger, "Record usage in a SQLite ledger")
	cmd.Flags().BoolVar(&answers.Gateway, "gateway", answers.Gateway, "Enable the HTTP gateway")
	cmd.Flags().StringVar(&answers.Bind, "bind", answers.Bind, "Gateway listen address")
	return cmd
}

func runWizard(a *initAnswers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Backend").
				Options(
					huh.NewOption("OpenAI-compatible HTTP (SSE)", backendOpenAI),
					huh.NewOption("Azure OpenAI", backendAzure),
					huh.NewOption("WebSocket", backendWebSocket),
				).
				Value(&a.Backend),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Base URL").
				Description("Leave empty for the backend default.").
				Value(&a.BaseURL).
				Validate(validateOptionalURL),
			huh.NewInput().
				Title("Model").
				Description("Leave empty for the backend default.").
				Value(&a.Model),
			huh.NewInput().
				Title("Environment variable holding the API key").
				Description("Leave empty for the backend default. WebSocket backends need none.").
				Value(&a.APIKeyEnv).
				Validate(validateOptionalEnvName),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Record usage in a SQLite ledger?").
				Value(&a.Ledger),
			huh.NewConfirm().
				Title("Serve streams over HTTP?").
				Value(&a.Gateway),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Gateway listen address").
				Value(&a.Bind).
				Validate(validateBind),
			huh.NewInput().
				Title("Environment variable holding the gateway bearer token").
				Description("Leave empty to serve without authentication.").
				Value(&a.GatewayTokenEnv).
				Validate(validateOptionalEnvName),
		).WithHideFunc(func() bool { return !a.Gateway }),
	)
	return form.Run()
}

type providerSection struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key,omitempty"`
	APIVersion string `yaml:"api_version,omitempty"`
	Model      string `yaml:"model"`
}

type ledgerSection struct {
	Retention string `yaml:"retention,omitempty"`
}

type gatewaySection struct {
	Bind string              `yaml:"bind"`
	Auth *gatewayAuthSection `yaml:"auth,omitempty"`
}

type gatewayAuthSection struct {
	BearerToken string `yaml:"bearer_token"`
}

// renderConfig turns wizard answers into a configuration file.
func renderConfig(a initAnswers) ([]byte, error) {
	if err := validateOptionalEnvName(a.APIKeyEnv); err != nil {
		return nil, fmt.Errorf("init: api key: %w", err)
	}
	if err := validateOptionalURL(a.BaseURL); err != nil {
		return nil, fmt.Errorf("init: base url: %w", err)
	}

	cfg := config.Config{
		Version: "1",
		Modules: make(map[string]yaml.Node),
	}

	section := providerSection{BaseURL: a.BaseURL, Model: a.Model}
	keyEnv := a.APIKeyEnv
	var providerID string
	switch a.Backend {
	case backendOpenAI:
		providerID = openai.ModuleID
		setDefault(&section.BaseURL, "https://api.openai.com/v1")
		setDefault(&section.Model, "gpt-4o-mini")
		setDefault(&keyEnv, "OPENAI_API_KEY")
	case backendAzure:
		providerID = openai.ModuleID
		if section.BaseURL == "" {
			return nil, errors.New("init: azure needs a base url")
		}
		section.APIVersion = openai.DefaultAzureAPIVersion
		setDefault(&section.Model, "gpt-4o")
		setDefault(&keyEnv, "AZURE_OPENAI_API_KEY")
	case backendWebSocket:
		providerID = websocket.ModuleID
		setDefault(&section.BaseURL, websocket.DefaultURL)
		setDefault(&section.Model, websocket.DefaultModel)
	default:
		return nil, fmt.Errorf("init: unknown backend %q", a.Backend)
	}
	if keyEnv != "" {
		section.APIKey = "${" + keyEnv + "}"
	}
	if err := addModule(&cfg, providerID, section); err != nil {
		return nil, err
	}

	if a.Ledger {
		if err := addModule(&cfg, sqlite.ModuleID, ledgerSection{Retention: a.Retention}); err != nil {
			return nil, err
		}
	}

	if a.Gateway {
		if err := validateBind(a.Bind); err != nil {
			return nil, fmt.Errorf("init: bind: %w", err)
		}
		if err := validateOptionalEnvName(a.GatewayTokenEnv); err != nil {
			return nil, fmt.Errorf("init: gateway token: %w", err)
		}
		gw := gatewaySection{Bind: a.Bind}
		if a.GatewayTokenEnv != "" {
			gw.Auth = &gatewayAuthSection{BearerToken: "${" + a.GatewayTokenEnv + "}"}
		}
		if err := addModule(&cfg, gateway.ModuleID, gw); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&cfg); err != nil {
		return nil, fmt.Errorf("init: encoding: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func addModule(cfg *config.Config, id string, v any) error {
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return fmt.Errorf("init: encoding %s: %w", id, err)
	}
	cfg.Modules[id] = node
	return nil
}

func setDefault(field *string, v string) {
	if *field == "" {
		*field = v
	}
}

func validateOptionalURL(s string) error {
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func validateOptionalEnvName(s string) error {
	if s != "" && !envNamePattern.MatchString(s) {
		return fmt.Errorf("%q is not a valid environment variable name", s)
	}
	return nil
}

func validateBind(s string) error {
	if _, _, err := net.SplitHostPort(s); err != nil {
		return err
	}
	return nil
}
