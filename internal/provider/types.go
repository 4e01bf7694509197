package provider

import (
	"strings"

	"github.com/flemzord/llmrelay/internal/usage"
)

// Role describes the purpose a provider serves in a chain.
type Role string

// Role constants for provider chain configuration.
const (
	RolePrimary  Role = "primary"
	RoleInternal Role = "internal"
	RoleFallback Role = "fallback"
)

// MessageRole identifies the sender of a turn in a conversation.
type MessageRole string

// MessageRole constants for conversation turns.
const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleDeveloper MessageRole = "developer"
)

// PartType distinguishes the content carried by a Part.
type PartType string

// PartType constants.
const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// Part is one piece of turn content: text or an inline base64 image.
type Part struct {
	Type      PartType `json:"type"`
	Text      string   `json:"text,omitempty"`
	MediaType string   `json:"media_type,omitempty"`
	Data      string   `json:"data,omitempty"`
}

// TextPart returns a text part.
func TextPart(s string) Part {
	return Part{Type: PartText, Text: s}
}

// ImagePart returns an inline image part. data is base64 encoded.
func ImagePart(mediaType, data string) Part {
	return Part{Type: PartImage, MediaType: mediaType, Data: data}
}

// Turn is a single message in a conversation.
type Turn struct {
	Role  MessageRole `json:"role"`
	Parts []Part      `json:"parts"`
}

// TextTurn returns a turn holding a single text part.
func TextTurn(role MessageRole, text string) Turn {
	return Turn{Role: role, Parts: []Part{TextPart(text)}}
}

// HasImages reports whether the turn carries at least one image part.
func (t Turn) HasImages() bool {
	for _, p := range t.Parts {
		if p.Type == PartImage {
			return true
		}
	}
	return false
}

// Text joins the text parts of the turn with newlines.
func (t Turn) Text() string {
	var texts []string
	for _, p := range t.Parts {
		if p.Type == PartText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Conversation is an ordered, caller-owned sequence of turns.
type Conversation []Turn

// EventKind tags a StreamEvent.
type EventKind string

// EventKind constants.
const (
	EventText      EventKind = "text"
	EventReasoning EventKind = "reasoning"
	EventUsage     EventKind = "usage"
)

// StreamEvent is one element of a normalized stream. Text is set for
// text and reasoning events, Usage for usage events. A non-nil Err marks
// the terminal element: nothing follows it.
type StreamEvent struct {
	Kind  EventKind     `json:"kind"`
	Text  string        `json:"text,omitempty"`
	Usage *usage.Record `json:"usage,omitempty"`
	Err   error         `json:"-"`
}

// TextEvent returns a text event.
func TextEvent(s string) StreamEvent {
	return StreamEvent{Kind: EventText, Text: s}
}

// ReasoningEvent returns a reasoning event.
func ReasoningEvent(s string) StreamEvent {
	return StreamEvent{Kind: EventReasoning, Text: s}
}

// UsageEvent returns a usage event.
func UsageEvent(r usage.Record) StreamEvent {
	return StreamEvent{Kind: EventUsage, Usage: &r}
}
