package websocket

import (
	"bytes"
	"encoding/json"

	"github.com/flemzord/llmrelay/internal/convert"
	"github.com/flemzord/llmrelay/internal/model"
	"github.com/flemzord/llmrelay/internal/provider"
	"github.com/flemzord/llmrelay/internal/usage"
)

// request is the outbound frame.
type request struct {
	Messages    []convert.Message `json:"messages"`
	Model       string            `json:"model"`
	Temperature *float64          `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Stream      bool              `json:"stream"`
}

// frame is one inbound message.
type frame struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *usage.ChatUsage `json:"usage"`
	Error frameError       `json:"error"`
}

// frameError accepts either a bare string or an object with a message.
type frameError string

func (e *frameError) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*e = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = frameError(s)
	default:
		var obj struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &obj); err != nil || obj.Message == "" {
			*e = frameError(data)
			return nil
		}
		*e = frameError(obj.Message)
	}
	return nil
}

func parseFrame(data []byte) (frame, error) {
	var f frame
	err := json.Unmarshal(data, &f)
	return f, err
}

// finished reports whether f carries a completion signal.
func (f frame) finished() bool {
	return len(f.Choices) > 0 && f.Choices[0].FinishReason != nil && *f.Choices[0].FinishReason != ""
}

// events expands f into text, reasoning and usage events, in that order.
// sawUsage suppresses repeated usage reports within one call.
func (f frame) events(d model.Descriptor, sawUsage *bool) []provider.StreamEvent {
	var out []provider.StreamEvent
	if len(f.Choices) > 0 {
		delta := f.Choices[0].Delta
		if delta.Content != "" {
			out = append(out, provider.TextEvent(delta.Content))
		}
		if delta.ReasoningContent != "" {
			out = append(out, provider.ReasoningEvent(delta.ReasoningContent))
		}
	}
	if f.Usage != nil && !*sawUsage {
		*sawUsage = true
		out = append(out, provider.UsageEvent(usage.Normalize(d, usage.FromChatCompletion(*f.Usage))))
	}
	return out
}
