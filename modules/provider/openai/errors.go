package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/flemzord/llmrelay/internal/provider"
)

// mapHTTPError maps an error response to a provider error carrying the
// status and any Retry-After hint. Returns nil for 2xx status codes.
func mapHTTPError(backend string, statusCode int, header http.Header, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var msg string
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	} else {
		msg = strings.TrimSpace(string(body))
	}

	retryAfter := provider.ParseRetryAfter(header.Get("Retry-After"), time.Now())
	return provider.StatusError(backend, statusCode, retryAfter, msg)
}

// mapConnectionError maps a failed round trip to ErrConnection.
// Context errors pass through unchanged.
func mapConnectionError(backend string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return provider.ConnectionError(backend, err)
}
