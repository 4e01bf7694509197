package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/flemzord/llmrelay/internal/model"
	"github.com/flemzord/llmrelay/internal/tracing"
)

// transport knows where to send a chat request and how to authenticate it.
type transport interface {
	name() string
	newRequest(ctx context.Context, modelID string, body []byte) (*http.Request, error)
}

// selectTransport picks the Azure transport when an API version is set,
// or when the base URL points at Azure and the model is not a DeepSeek
// model served from there. Otherwise bearer authentication is used.
func selectTransport(c Config) transport {
	if c.APIVersion != "" || (isAzureHost(c.BaseURL) && !model.IsDeepSeek(c.Model)) {
		version := c.APIVersion
		if version == "" {
			version = DefaultAzureAPIVersion
		}
		return azureTransport{baseURL: strings.TrimRight(c.BaseURL, "/"), apiKey: c.APIKey, version: version}
	}
	return bearerTransport{baseURL: strings.TrimRight(c.BaseURL, "/"), apiKey: c.APIKey}
}

func isAzureHost(baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return strings.Contains(host, "azure.com") || strings.Contains(host, "azure.us")
}

type bearerTransport struct {
	baseURL string
	apiKey  string
}

func (bearerTransport) name() string { return "openai" }

func (t bearerTransport) newRequest(ctx context.Context, _ string, body []byte) (*http.Request, error) {
	req, err := newJSONRequest(ctx, t.baseURL+"/chat/completions", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	return req, nil
}

type azureTransport struct {
	baseURL string
	apiKey  string
	version string
}

func (azureTransport) name() string { return "azure-openai" }

func (t azureTransport) newRequest(ctx context.Context, modelID string, body []byte) (*http.Request, error) {
	endpoint := t.baseURL
	if !strings.Contains(endpoint, "/openai/deployments/") {
		endpoint += "/openai/deployments/" + url.PathEscape(modelID)
	}
	endpoint += "/chat/completions?api-version=" + url.QueryEscape(t.version)

	req, err := newJSONRequest(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("api-key", t.apiKey)
	return req, nil
}

func newJSONRequest(ctx context.Context, endpoint string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	tracing.Inject(ctx, req.Header)
	return req, nil
}
