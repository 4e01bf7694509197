package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/llmrelay/internal/provider"
	"github.com/flemzord/llmrelay/internal/usage"
)

// StreamRequest is the body of POST /v1/stream.
type StreamRequest struct {
	Role     provider.Role   `json:"role,omitempty"` // default: primary
	System   string          `json:"system,omitempty"`
	TaskID   string          `json:"task_id,omitempty"`
	Messages []StreamMessage `json:"messages"`
}

// StreamMessage is one conversation turn. Content is shorthand for a
// single text part.
type StreamMessage struct {
	Role    provider.MessageRole `json:"role"`
	Content string               `json:"content,omitempty"`
	Parts   []provider.Part      `json:"parts,omitempty"`
}

// DoneEvent is the data of the final "done" SSE event.
type DoneEvent struct {
	TaskID string        `json:"task_id"`
	Usage  *usage.Record `json:"usage,omitempty"`
}

func (req *StreamRequest) conversation() (provider.Conversation, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("messages must not be empty")
	}
	conv := make(provider.Conversation, 0, len(req.Messages))
	for i, m := range req.Messages {
		switch m.Role {
		case provider.MessageRoleUser, provider.MessageRoleAssistant,
			provider.MessageRoleSystem, provider.MessageRoleDeveloper:
		default:
			return nil, fmt.Errorf("messages[%d]: unsupported role %q", i, m.Role)
		}
		parts := m.Parts
		if m.Content != "" {
			parts = append([]provider.Part{provider.TextPart(m.Content)}, parts...)
		}
		if len(parts) == 0 {
			return nil, fmt.Errorf("messages[%d]: content or parts required", i)
		}
		conv = append(conv, provider.Turn{Role: m.Role, Parts: parts})
	}
	return conv, nil
}

// handleStream returns an http.HandlerFunc for POST /v1/stream. Events
// are written as SSE with the event name set to the event kind, followed
// by "error" on mid-stream failure or "done" on success.
func (g *Gateway) handleStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StreamRequest
		body := http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes)
		if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
			return
		}
		conv, err := req.conversation()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if req.Role == "" {
			req.Role = provider.RolePrimary
		}
		if g.chain == nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "no provider chain configured")
			return
		}

		taskID := req.TaskID
		if taskID == "" {
			taskID = r.Header.Get("X-Task-ID")
		}
		if taskID == "" {
			taskID = uuid.NewString()
		}

		ctx, cancel := context.WithTimeout(r.Context(), g.config.StreamTimeout)
		defer cancel()
		ctx = provider.WithTaskID(ctx, taskID)

		logger := g.logger.With("task_id", taskID, "role", req.Role)
		g.stats.begin()
		start := time.Now()

		ch, err := g.chain.Stream(ctx, req.Role, req.System, conv)
		if err != nil {
			g.stats.RecordError()
			status, kind := classify(err)
			logger.Warn("stream rejected", "status", status, "error", err)
			writeError(w, status, kind, err.Error())
			return
		}

		rc := http.NewResponseController(w)
		_ = rc.SetWriteDeadline(time.Now().Add(g.config.StreamTimeout))
		setSSEHeaders(w)
		w.Header().Set("X-Task-ID", taskID)
		w.WriteHeader(http.StatusOK)

		var total usage.Record
		var sawUsage bool
		for ev := range ch {
			if ev.Err != nil {
				g.stats.RecordError()
				_, kind := classify(ev.Err)
				logger.Warn("stream failed mid-flight", "error", ev.Err)
				_ = writeSSE(w, rc, "error", errorBody{Kind: kind, Message: ev.Err.Error()})
				return
			}
			if ev.Kind == provider.EventUsage && ev.Usage != nil {
				total.Add(*ev.Usage)
				sawUsage = true
			}
			if err := writeSSE(w, rc, string(ev.Kind), ev); err != nil {
				g.stats.RecordError()
				logger.Debug("client went away", "error", err)
				return
			}
		}

		done := DoneEvent{TaskID: taskID}
		if sawUsage {
			done.Usage = &total
		}
		g.stats.RecordStream(total.Input+total.Output, total.TotalCost, time.Since(start))
		_ = writeSSE(w, rc, "done", done)
	}
}

// classify maps a stream error to an HTTP status and an error kind.
func classify(err error) (int, string) {
	switch {
	case provider.IsRateLimit(err):
		return http.StatusTooManyRequests, "rate_limit"
	case errors.Is(err, provider.ErrNoProvider):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return 499, "canceled"
	case errors.Is(err, provider.ErrProtocol):
		return http.StatusBadGateway, "protocol"
	case errors.Is(err, provider.ErrConnection):
		return http.StatusBadGateway, "connection"
	case errors.Is(err, provider.ErrTransport):
		return http.StatusBadGateway, "transport"
	case errors.Is(err, provider.ErrAllProviders):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// writeSSE writes one named event and flushes it.
func writeSSE(w io.Writer, rc *http.ResponseController, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gateway: marshal %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return rc.Flush()
}
