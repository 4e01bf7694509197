package convert

import (
	"encoding/json"
	"math/rand/v2"
	"reflect"
	"testing"

	"github.com/flemzord/llmrelay/internal/model"
	"github.com/flemzord/llmrelay/internal/provider"
)

var roles = []provider.MessageRole{
	provider.MessageRoleSystem,
	provider.MessageRoleUser,
	provider.MessageRoleAssistant,
	provider.MessageRoleDeveloper,
}

// randomConversation builds a conversation with random roles, texts and
// the occasional image.
func randomConversation(r *rand.Rand) provider.Conversation {
	n := r.IntN(12)
	conv := make(provider.Conversation, n)
	for i := range conv {
		turn := provider.Turn{Role: roles[r.IntN(len(roles))]}
		for range 1 + r.IntN(3) {
			if r.IntN(5) == 0 {
				turn.Parts = append(turn.Parts, provider.ImagePart("image/png", "aGVsbG8="))
			} else {
				turn.Parts = append(turn.Parts, provider.TextPart(string(rune('a'+r.IntN(26)))))
			}
		}
		conv[i] = turn
	}
	return conv
}

func cloneConversation(conv provider.Conversation) provider.Conversation {
	out := make(provider.Conversation, len(conv))
	for i, t := range conv {
		out[i] = provider.Turn{Role: t.Role, Parts: append([]provider.Part(nil), t.Parts...)}
	}
	return out
}

func TestSelectFlavor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   string
		desc model.Descriptor
		want Flavor
	}{
		{"gpt-4o", model.Descriptor{}, FlavorDefault},
		{"deepseek-chat", model.Descriptor{}, FlavorDefault},
		{"deepseek-reasoner", model.Descriptor{}, FlavorR1},
		{"custom", model.Descriptor{RequiresAlternateRoleFormat: true}, FlavorR1},
		{"o3-mini", model.Descriptor{}, FlavorReasoning},
		{"o1", model.Descriptor{RequiresAlternateRoleFormat: true}, FlavorReasoning},
	}

	for _, tt := range tests {
		if got := SelectFlavor(tt.id, tt.desc); got != tt.want {
			t.Errorf("SelectFlavor(%q) = %s, want %s", tt.id, got, tt.want)
		}
	}
}

func TestBuild_DefaultPreservesOrder(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		conv := randomConversation(r)
		before := cloneConversation(conv)

		plan := Build(FlavorDefault, "sys", conv, Sampling{Temperature: 0.2})

		if len(plan.Messages) != len(conv)+1 {
			t.Fatalf("case %d: %d messages for %d turns", i, len(plan.Messages), len(conv))
		}
		if plan.Messages[0].Role != "system" || plan.Messages[0].Content.Text != "sys" {
			t.Fatalf("case %d: first message = %+v", i, plan.Messages[0])
		}
		for j, turn := range conv {
			if plan.Messages[j+1].Role != string(turn.Role) {
				t.Fatalf("case %d: message %d role = %q, want %q", i, j+1, plan.Messages[j+1].Role, turn.Role)
			}
		}
		if !reflect.DeepEqual(conv, before) {
			t.Fatalf("case %d: conversation was mutated", i)
		}
	}
}

func TestBuild_R1NoAdjacentRoles(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 200; i++ {
		conv := randomConversation(r)
		plan := Build(FlavorR1, "sys", conv, Sampling{})

		for j, m := range plan.Messages {
			if m.Role == "system" || m.Role == "developer" {
				t.Fatalf("case %d: R1 output contains role %q", i, m.Role)
			}
			if j > 0 && plan.Messages[j-1].Role == m.Role {
				t.Fatalf("case %d: adjacent %q turns at %d", i, m.Role, j)
			}
		}
	}
}

func TestBuild_R1MergesText(t *testing.T) {
	t.Parallel()

	conv := provider.Conversation{
		provider.TextTurn(provider.MessageRoleUser, "first"),
		provider.TextTurn(provider.MessageRoleUser, "second"),
		provider.TextTurn(provider.MessageRoleAssistant, "reply"),
	}
	plan := Build(FlavorR1, "sys", conv, Sampling{Temperature: 0.5})

	if len(plan.Messages) != 2 {
		t.Fatalf("messages = %+v", plan.Messages)
	}
	if got := plan.Messages[0].Content.Text; got != "sys\nfirst\nsecond" {
		t.Errorf("merged = %q", got)
	}
	if plan.Temperature == nil || *plan.Temperature != 0.5 {
		t.Errorf("Temperature = %v, want 0.5", plan.Temperature)
	}
}

func TestBuild_R1MergesImages(t *testing.T) {
	t.Parallel()

	conv := provider.Conversation{
		{Role: provider.MessageRoleUser, Parts: []provider.Part{provider.ImagePart("image/png", "QQ==")}},
	}
	plan := Build(FlavorR1, "sys", conv, Sampling{})

	if len(plan.Messages) != 1 {
		t.Fatalf("messages = %+v", plan.Messages)
	}
	parts := plan.Messages[0].Content.Parts
	if len(parts) != 2 || parts[0].Text != "sys" || parts[1].ImageURL.URL != "data:image/png;base64,QQ==" {
		t.Errorf("parts = %+v", parts)
	}
}

func TestBuild_Reasoning(t *testing.T) {
	t.Parallel()

	conv := provider.Conversation{provider.TextTurn(provider.MessageRoleUser, "hi")}

	tests := []struct {
		effort string
		want   string
	}{
		{"", EffortMedium},
		{"high", EffortHigh},
		{"LOW", EffortLow},
		{"extreme", EffortMedium},
	}

	for _, tt := range tests {
		plan := Build(FlavorReasoning, "sys", conv, Sampling{Temperature: 0.7, ReasoningEffort: tt.effort})
		if plan.Temperature != nil {
			t.Errorf("effort %q: temperature must be omitted", tt.effort)
		}
		if plan.ReasoningEffort != tt.want {
			t.Errorf("effort %q: got %q, want %q", tt.effort, plan.ReasoningEffort, tt.want)
		}
		if plan.Messages[0].Role != "developer" {
			t.Errorf("lead role = %q, want developer", plan.Messages[0].Role)
		}
	}
}

func TestBuild_EmptyConversation(t *testing.T) {
	t.Parallel()

	for _, f := range []Flavor{FlavorDefault, FlavorR1, FlavorReasoning} {
		plan := Build(f, "sys", nil, Sampling{})
		if len(plan.Messages) != 1 || plan.Messages[0].Content.Text != "sys" {
			t.Errorf("%s: messages = %+v", f, plan.Messages)
		}
	}

	want := map[Flavor]string{FlavorDefault: "system", FlavorR1: "user", FlavorReasoning: "developer"}
	for f, role := range want {
		if got := Build(f, "sys", nil, Sampling{}).Messages[0].Role; got != role {
			t.Errorf("%s: role = %q, want %q", f, got, role)
		}
	}
}

func TestContent_JSON(t *testing.T) {
	t.Parallel()

	msgs := Build(FlavorDefault, "", provider.Conversation{
		provider.TextTurn(provider.MessageRoleUser, "plain"),
		{Role: provider.MessageRoleUser, Parts: []provider.Part{
			provider.TextPart("look"),
			provider.ImagePart("image/jpeg", "Zm9v"),
		}},
	}, Sampling{}).Messages

	data, err := json.Marshal(msgs)
	if err != nil {
		t.Fatal(err)
	}
	want := `[{"role":"user","content":"plain"},` +
		`{"role":"user","content":[{"type":"text","text":"look"},{"type":"image_url","image_url":{"url":"data:image/jpeg;base64,Zm9v"}}]}]`
	if string(data) != want {
		t.Errorf("json = %s\nwant  %s", data, want)
	}

	var back []Message
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back[0].Content.Text != "plain" || len(back[1].Content.Parts) != 2 {
		t.Errorf("decoded = %+v", back)
	}
}
