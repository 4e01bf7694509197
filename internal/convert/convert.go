// Package convert shapes a conversation into the turn sequence a backend
// accepts. Three flavors exist: the default chat format, the R1 format
// that forbids system turns and adjacent same-role turns, and the
// reasoning format of the o1/o3/o4 family.
package convert

import (
	"strings"

	"github.com/flemzord/llmrelay/internal/model"
	"github.com/flemzord/llmrelay/internal/provider"
)

// Flavor selects a conversion.
type Flavor int

// Flavors.
const (
	FlavorDefault Flavor = iota
	FlavorR1
	FlavorReasoning
)

func (f Flavor) String() string {
	switch f {
	case FlavorR1:
		return "r1"
	case FlavorReasoning:
		return "reasoning"
	default:
		return "default"
	}
}

// Reasoning effort hints.
const (
	EffortLow    = "low"
	EffortMedium = "medium"
	EffortHigh   = "high"
)

// r1Separator joins the text of merged turns.
const r1Separator = "\n"

// SelectFlavor picks the flavor for modelID. The reasoning family wins
// over the R1 format.
func SelectFlavor(modelID string, d model.Descriptor) Flavor {
	switch {
	case model.IsReasoningFamily(modelID):
		return FlavorReasoning
	case d.RequiresAlternateRoleFormat || model.IsR1(modelID):
		return FlavorR1
	default:
		return FlavorDefault
	}
}

// Sampling carries the caller's sampling preferences.
type Sampling struct {
	Temperature     float64
	ReasoningEffort string
}

// SamplingFor returns the configured temperature when set, else the
// descriptor's default.
func SamplingFor(d model.Descriptor, temperature *float64, effort string) Sampling {
	s := Sampling{Temperature: d.Temperature, ReasoningEffort: effort}
	if temperature != nil {
		s.Temperature = *temperature
	}
	return s
}

// Plan is a request body ready for the wire, minus transport fields.
type Plan struct {
	Flavor   Flavor
	Messages []Message
	// Temperature is nil when the flavor rejects it.
	Temperature *float64
	// ReasoningEffort is set only for FlavorReasoning.
	ReasoningEffort string
}

// Build converts systemPrompt and conv for flavor f. conv is not modified.
// An empty systemPrompt emits no system turn.
func Build(f Flavor, systemPrompt string, conv provider.Conversation, s Sampling) Plan {
	plan := Plan{Flavor: f}

	switch f {
	case FlavorR1:
		plan.Messages = buildR1(systemPrompt, conv)
		plan.Temperature = &s.Temperature
	case FlavorReasoning:
		plan.Messages = buildWithLead(provider.MessageRoleDeveloper, systemPrompt, conv)
		plan.ReasoningEffort = NormalizeEffort(s.ReasoningEffort)
	default:
		plan.Messages = buildWithLead(provider.MessageRoleSystem, systemPrompt, conv)
		plan.Temperature = &s.Temperature
	}
	return plan
}

// NormalizeEffort returns effort when valid, else EffortMedium.
func NormalizeEffort(effort string) string {
	switch e := strings.ToLower(strings.TrimSpace(effort)); e {
	case EffortLow, EffortMedium, EffortHigh:
		return e
	default:
		return EffortMedium
	}
}

func buildWithLead(lead provider.MessageRole, systemPrompt string, conv provider.Conversation) []Message {
	out := make([]Message, 0, len(conv)+1)
	if systemPrompt != "" {
		out = append(out, Message{Role: string(lead), Content: Content{Text: systemPrompt}})
	}
	for _, turn := range conv {
		out = append(out, Message{Role: string(turn.Role), Content: contentOf(turn)})
	}
	return out
}

// buildR1 turns the system prompt and any system or developer turns into
// user turns, then merges runs of the same role.
func buildR1(systemPrompt string, conv provider.Conversation) []Message {
	out := make([]Message, 0, len(conv)+1)
	push := func(role provider.MessageRole, c Content) {
		if role == provider.MessageRoleSystem || role == provider.MessageRoleDeveloper {
			role = provider.MessageRoleUser
		}
		if n := len(out); n > 0 && out[n-1].Role == string(role) {
			out[n-1].Content = merge(out[n-1].Content, c)
			return
		}
		out = append(out, Message{Role: string(role), Content: c})
	}

	if systemPrompt != "" {
		push(provider.MessageRoleUser, Content{Text: systemPrompt})
	}
	for _, turn := range conv {
		push(turn.Role, contentOf(turn))
	}
	return out
}

// merge concatenates two contents. Plain texts join with r1Separator;
// anything multimodal becomes a parts list.
func merge(a, b Content) Content {
	if !a.IsMultipart() && !b.IsMultipart() {
		return Content{Text: a.Text + r1Separator + b.Text}
	}
	parts := make([]ContentPart, 0, len(a.parts())+len(b.parts()))
	parts = append(parts, a.parts()...)
	parts = append(parts, b.parts()...)
	return Content{Parts: parts}
}

// contentOf flattens a turn. Text-only turns become a plain string;
// turns with images become content parts with data URIs.
func contentOf(t provider.Turn) Content {
	if !t.HasImages() {
		return Content{Text: t.Text()}
	}
	parts := make([]ContentPart, 0, len(t.Parts))
	for _, p := range t.Parts {
		switch p.Type {
		case provider.PartImage:
			parts = append(parts, ContentPart{
				Type:     "image_url",
				ImageURL: &ImageURL{URL: "data:" + p.MediaType + ";base64," + p.Data},
			})
		default:
			parts = append(parts, ContentPart{Type: "text", Text: p.Text})
		}
	}
	return Content{Parts: parts}
}
