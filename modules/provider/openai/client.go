package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/flemzord/llmrelay/internal/convert"
	"github.com/flemzord/llmrelay/internal/model"
	"github.com/flemzord/llmrelay/internal/provider"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 * 1024

// streamChannelBuffer is the buffer size for the streaming channel.
const streamChannelBuffer = 64

// Stream sends the conversation and returns a channel of events.
// Failures before the first event are retried per the retry policy and
// returned directly. Mid-stream errors arrive via StreamEvent.Err.
func (p *Provider) Stream(ctx context.Context, systemPrompt string, conv provider.Conversation) (<-chan provider.StreamEvent, error) {
	return p.stream(ctx, systemPrompt, conv, p.desc.OutputLimit(p.config.MaxTokens))
}

func (p *Provider) stream(ctx context.Context, systemPrompt string, conv provider.Conversation, maxTokens int) (<-chan provider.StreamEvent, error) {
	d := p.desc
	flavor := convert.SelectFlavor(d.ID, d)
	plan := convert.Build(flavor, systemPrompt, conv,
		convert.SamplingFor(d, p.config.Temperature, p.config.ReasoningEffort))

	body, err := json.Marshal(buildChatRequest(d.ID, plan, maxTokens))
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	taskID := provider.TaskID(ctx, p.config.TaskID)
	backend := p.transport.name()

	op := func(ctx context.Context) (<-chan provider.StreamEvent, error) {
		return p.attempt(ctx, taskID, d, body)
	}
	op = p.hooks.WrapAttempt(backend, d.ID, op)

	p.logger.Debug("starting stream",
		"model", d.ID,
		"flavor", flavor.String(),
		"messages", len(plan.Messages),
	)

	start := time.Now()
	ch, err := provider.WithRetry(op, p.policy, p.hooks.RetryOptions(backend)...)(ctx)
	return p.hooks.Observe(ctx, backend, taskID, start, ch, err)
}

// attempt performs one HTTP exchange.
func (p *Provider) attempt(ctx context.Context, taskID string, d model.Descriptor, body []byte) (<-chan provider.StreamEvent, error) {
	backend := p.transport.name()

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := p.transport.newRequest(ctx, d.ID, body)
	if err != nil {
		return nil, err
	}
	if taskID != "" {
		req.Header.Set("X-Task-ID", taskID)
	}
	for k, v := range p.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, mapConnectionError(backend, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, mapHTTPError(backend, resp.StatusCode, resp.Header, errBody)
	}

	ch := make(chan provider.StreamEvent, streamChannelBuffer)
	r := &streamReader{backend: backend, desc: d}
	go r.readStream(ctx, resp.Body, ch)
	return ch, nil
}

// HealthCheck validates the provider is functional by streaming a minimal
// 1-token completion. This tests the full path: authentication, model
// access, and quota.
func (p *Provider) HealthCheck(ctx context.Context) error {
	ch, err := p.stream(ctx, "", provider.Conversation{
		provider.TextTurn(provider.MessageRoleUser, "hi"),
	}, 1)
	if err != nil {
		return err
	}
	_, err = provider.Collect(ch)
	return err
}

// ResolveModel returns the descriptor resolved at provisioning.
func (p *Provider) ResolveModel() model.Descriptor {
	return p.desc
}
