package openai

import (
	"github.com/flemzord/llmrelay/internal/convert"
	"github.com/flemzord/llmrelay/internal/usage"
)

// --- Chat Completions wire types (unexported, serialization only) ---

type chatRequest struct {
	Model           string            `json:"model"`
	Messages        []convert.Message `json:"messages"`
	MaxTokens       int               `json:"max_tokens,omitempty"`
	Temperature     *float64          `json:"temperature,omitempty"`
	ReasoningEffort string            `json:"reasoning_effort,omitempty"`
	Stream          bool              `json:"stream"`
	StreamOptions   *streamOpts       `json:"stream_options,omitempty"`
}

type streamOpts struct {
	IncludeUsage bool `json:"include_usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

type chatStreamChunk struct {
	Choices []chatStreamChoice `json:"choices"`
	Usage   *usage.ChatUsage   `json:"usage,omitempty"`
	Error   *chunkError        `json:"error,omitempty"`
}

type chunkError struct {
	Message string `json:"message"`
}

type chatStreamChoice struct {
	Delta        chatStreamDelta `json:"delta"`
	FinishReason *string         `json:"finish_reason"`
}

type chatStreamDelta struct {
	Role             string `json:"role,omitempty"`
	Content          string `json:"content,omitempty"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

// buildChatRequest turns a conversion plan into the request body.
func buildChatRequest(modelID string, plan convert.Plan, maxTokens int) chatRequest {
	return chatRequest{
		Model:           modelID,
		Messages:        plan.Messages,
		MaxTokens:       maxTokens,
		Temperature:     plan.Temperature,
		ReasoningEffort: plan.ReasoningEffort,
		Stream:          true,
		StreamOptions:   &streamOpts{IncludeUsage: true},
	}
}
