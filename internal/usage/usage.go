// Package usage maps backend token counters onto one shape and prices them.
package usage

import (
	"context"

	"github.com/flemzord/llmrelay/internal/model"
)

// Counters are token counts in backend-neutral form.
type Counters struct {
	Input      int `json:"input_tokens"`
	Output     int `json:"output_tokens"`
	CacheWrite int `json:"cache_write_tokens"`
	CacheRead  int `json:"cache_read_tokens"`
}

// Record is a priced usage report for one stream.
type Record struct {
	Counters
	Model     string  `json:"model"`
	TotalCost float64 `json:"total_cost"`
}

// ChatUsage is the usage object of chat-completion style backends.
// DeepSeek reports cache hits and misses; OpenAI reports cached tokens
// under prompt_tokens_details.
type ChatUsage struct {
	PromptTokens          int `json:"prompt_tokens"`
	CompletionTokens      int `json:"completion_tokens"`
	TotalTokens           int `json:"total_tokens,omitempty"`
	PromptCacheHitTokens  int `json:"prompt_cache_hit_tokens,omitempty"`
	PromptCacheMissTokens int `json:"prompt_cache_miss_tokens,omitempty"`
	PromptTokensDetails   *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details,omitempty"`
}

// FromChatCompletion maps chat-completion counters. Cache hits are cache
// reads, cache misses are cache writes.
func FromChatCompletion(u ChatUsage) Counters {
	c := Counters{
		Input:      u.PromptTokens,
		Output:     u.CompletionTokens,
		CacheWrite: u.PromptCacheMissTokens,
		CacheRead:  u.PromptCacheHitTokens,
	}
	if c.CacheRead == 0 && u.PromptTokensDetails != nil {
		c.CacheRead = u.PromptTokensDetails.CachedTokens
	}
	return c
}

// BilledInput returns the input tokens not already billed as cache reads
// or writes. Never negative.
func (c Counters) BilledInput() int {
	return max(0, c.Input-c.CacheWrite-c.CacheRead)
}

// Cost prices c with the per-token prices of d.
func Cost(d model.Descriptor, c Counters) float64 {
	return float64(c.BilledInput())*d.InputPrice +
		float64(c.Output)*d.OutputPrice +
		float64(c.CacheWrite)*d.CacheWritePrice +
		float64(c.CacheRead)*d.CacheReadPrice
}

// Normalize builds the Record for c under d. Negative counters are
// treated as zero.
func Normalize(d model.Descriptor, c Counters) Record {
	c.Input = max(0, c.Input)
	c.Output = max(0, c.Output)
	c.CacheWrite = max(0, c.CacheWrite)
	c.CacheRead = max(0, c.CacheRead)
	return Record{
		Counters:  c,
		Model:     d.ID,
		TotalCost: Cost(d, c),
	}
}

// Add accumulates o into r. Costs add, model is kept from r unless empty.
func (r *Record) Add(o Record) {
	r.Input += o.Input
	r.Output += o.Output
	r.CacheWrite += o.CacheWrite
	r.CacheRead += o.CacheRead
	r.TotalCost += o.TotalCost
	if r.Model == "" {
		r.Model = o.Model
	}
}

// RecorderService is the AppContext key of the active Recorder.
const RecorderService = "usage.recorder"

// Recorder persists usage records. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(ctx context.Context, taskID, backend string, r Record) error
}
