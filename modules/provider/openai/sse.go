package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/flemzord/llmrelay/internal/model"
	"github.com/flemzord/llmrelay/internal/provider"
	"github.com/flemzord/llmrelay/internal/usage"
)

// scannerBufferSize is the max token size for the SSE line scanner.
// Default bufio.Scanner limit is ~64 KiB which is too small for long
// content deltas.
const scannerBufferSize = 1 * 1024 * 1024 // 1 MB

// streamReader turns SSE chunks into canonical events.
type streamReader struct {
	backend string
	desc    model.Descriptor

	sawUsage  bool
	sawFinish bool
}

// readStream reads an SSE stream from body and sends events on ch.
// The channel is closed when the stream ends, either normally ([DONE]),
// on error, or when ctx is cancelled. body is always closed.
func (r *streamReader) readStream(ctx context.Context, body io.ReadCloser, ch chan<- provider.StreamEvent) {
	defer close(ch)
	defer func() { _ = body.Close() }()

	// Close body on context cancellation to unblock the scanner.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = body.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, scannerBufferSize), scannerBufferSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()

		// SSE comments and non-data fields carry nothing for us.
		if strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			provider.Send(ctx, ch, provider.StreamEvent{
				Err: provider.ProtocolError(r.backend, "malformed chunk", err),
			})
			return
		}
		if chunk.Error != nil {
			provider.Send(ctx, ch, provider.StreamEvent{
				Err: provider.ProtocolError(r.backend, chunk.Error.Message, nil),
			})
			return
		}

		for _, ev := range r.events(chunk) {
			if !provider.Send(ctx, ch, ev) {
				return
			}
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := scanner.Err(); err != nil {
		provider.Send(ctx, ch, provider.StreamEvent{
			Err: provider.TransportError(r.backend, "reading stream", err),
		})
		return
	}
	if !r.sawFinish && !r.sawUsage {
		provider.Send(ctx, ch, provider.StreamEvent{
			Err: provider.TransportError(r.backend, "stream ended before completion", io.ErrUnexpectedEOF),
		})
	}
}

// events expands one chunk into text, reasoning and usage events, in that
// order. Usage is reported once per stream.
func (r *streamReader) events(chunk chatStreamChunk) []provider.StreamEvent {
	var out []provider.StreamEvent
	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			out = append(out, provider.TextEvent(choice.Delta.Content))
		}
		if choice.Delta.ReasoningContent != "" {
			out = append(out, provider.ReasoningEvent(choice.Delta.ReasoningContent))
		}
		if choice.FinishReason != nil {
			r.sawFinish = true
		}
	}
	if chunk.Usage != nil && !r.sawUsage {
		r.sawUsage = true
		rec := usage.Normalize(r.desc, usage.FromChatCompletion(*chunk.Usage))
		out = append(out, provider.UsageEvent(rec))
	}
	return out
}
