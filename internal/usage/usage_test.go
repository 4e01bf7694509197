package usage

import (
	"encoding/json"
	"testing"

	"github.com/flemzord/llmrelay/internal/model"
)

func TestCost_InputAndOutputOnly(t *testing.T) {
	t.Parallel()

	d := model.Descriptor{InputPrice: 0.000003, OutputPrice: 0.000015, CacheWritePrice: 1, CacheReadPrice: 1}
	got := Cost(d, Counters{Input: 1000, Output: 500})
	want := 1000*d.InputPrice + 500*d.OutputPrice
	if got != want {
		t.Errorf("Cost = %v, want %v", got, want)
	}
}

func TestCost_ZeroCounters(t *testing.T) {
	t.Parallel()

	d := model.Descriptor{InputPrice: 1, OutputPrice: 2, CacheWritePrice: 3, CacheReadPrice: 4}
	if got := Cost(d, Counters{}); got != 0 {
		t.Errorf("Cost = %v, want 0", got)
	}
}

func TestCost_CacheReadsNotBilledAsInput(t *testing.T) {
	t.Parallel()

	d := model.Descriptor{InputPrice: 10, CacheWritePrice: 1, CacheReadPrice: 0.5}
	c := Counters{Input: 100, CacheWrite: 30, CacheRead: 60}

	// 10 billed input, 30 writes, 60 reads.
	want := 10.0*10 + 30*1 + 60*0.5
	if got := Cost(d, c); got != want {
		t.Errorf("Cost = %v, want %v", got, want)
	}
}

func TestCounters_BilledInputNeverNegative(t *testing.T) {
	t.Parallel()

	c := Counters{Input: 10, CacheRead: 50}
	if got := c.BilledInput(); got != 0 {
		t.Errorf("BilledInput = %d, want 0", got)
	}
}

func TestCost_ZeroDescriptor(t *testing.T) {
	t.Parallel()

	if got := Cost(model.Descriptor{}, Counters{Input: 5, Output: 5}); got != 0 {
		t.Errorf("Cost = %v, want 0 for unpriced model", got)
	}
}

func TestFromChatCompletion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want Counters
	}{
		{
			name: "plain",
			raw:  `{"prompt_tokens":10,"completion_tokens":2}`,
			want: Counters{Input: 10, Output: 2},
		},
		{
			name: "deepseek cache hit and miss",
			raw:  `{"prompt_tokens":100,"completion_tokens":20,"prompt_cache_hit_tokens":70,"prompt_cache_miss_tokens":30}`,
			want: Counters{Input: 100, Output: 20, CacheRead: 70, CacheWrite: 30},
		},
		{
			name: "openai cached tokens",
			raw:  `{"prompt_tokens":100,"completion_tokens":20,"prompt_tokens_details":{"cached_tokens":40}}`,
			want: Counters{Input: 100, Output: 20, CacheRead: 40},
		},
		{
			name: "empty",
			raw:  `{}`,
			want: Counters{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var u ChatUsage
			if err := json.Unmarshal([]byte(tt.raw), &u); err != nil {
				t.Fatal(err)
			}
			if got := FromChatCompletion(u); got != tt.want {
				t.Errorf("FromChatCompletion = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	d := model.Descriptor{ID: "m", InputPrice: 1, OutputPrice: 2}
	r := Normalize(d, Counters{Input: 10, Output: -3})
	if r.Output != 0 {
		t.Errorf("Output = %d, want clamped to 0", r.Output)
	}
	if r.Model != "m" || r.TotalCost != 10 {
		t.Errorf("Record = %+v", r)
	}
}

func TestRecord_Add(t *testing.T) {
	t.Parallel()

	var total Record
	total.Add(Record{Counters: Counters{Input: 1, Output: 2}, Model: "a", TotalCost: 0.5})
	total.Add(Record{Counters: Counters{Input: 3, CacheRead: 4}, Model: "b", TotalCost: 0.25})

	want := Record{Counters: Counters{Input: 4, Output: 2, CacheRead: 4}, Model: "a", TotalCost: 0.75}
	if total != want {
		t.Errorf("total = %+v, want %+v", total, want)
	}
}
