package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	ws "github.com/coder/websocket"

	"github.com/flemzord/llmrelay/internal/convert"
	"github.com/flemzord/llmrelay/internal/model"
	"github.com/flemzord/llmrelay/internal/provider"
)

const (
	streamChannelBuffer = 64

	// writeTimeout bounds sending a request frame. The write runs detached
	// from the caller because cancelling a write closes the connection.
	writeTimeout = 10 * time.Second
)

// Stream sends the conversation as one request frame and returns the
// events reconstructed from the frames that follow. It waits for any call
// already in flight on the connection.
func (p *Provider) Stream(ctx context.Context, systemPrompt string, conv provider.Conversation) (<-chan provider.StreamEvent, error) {
	d := p.desc
	plan := convert.Build(convert.SelectFlavor(d.ID, d), systemPrompt, conv,
		convert.SamplingFor(d, p.config.Temperature, p.config.ReasoningEffort))

	req := request{
		Messages:    plan.Messages,
		Model:       d.ID,
		Temperature: plan.Temperature,
		MaxTokens:   d.OutputLimit(p.config.MaxTokens),
		Stream:      true,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("websocket: marshal request: %w", err)
	}

	taskID := provider.TaskID(ctx, p.config.TaskID)
	op := func(ctx context.Context) (<-chan provider.StreamEvent, error) {
		return p.attempt(ctx, taskID, d, payload)
	}
	op = p.hooks.WrapAttempt(backendName, d.ID, op)

	start := time.Now()
	ch, err := provider.WithRetry(op, p.policy, p.hooks.RetryOptions(backendName)...)(ctx)
	return p.hooks.Observe(ctx, backendName, taskID, start, ch, err)
}

// attempt runs one exchange. The slot is held from here until the
// response is complete, failed, or drained.
func (p *Provider) attempt(ctx context.Context, taskID string, d model.Descriptor, payload []byte) (<-chan provider.StreamEvent, error) {
	s := p.session
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}

	c, err := s.ensureConnected(ctx, taskID)
	if err != nil {
		s.release()
		return nil, err
	}

	l := newListener(p.config.MaxQueuedFrames)
	if !s.attach(c, l) {
		s.release()
		return nil, provider.TransportError(backendName, "connection closed before request", nil)
	}

	if err := ctx.Err(); err != nil {
		s.detach(l)
		s.release()
		return nil, err
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	err = c.Write(wctx, ws.MessageText, payload)
	cancel()
	if err != nil {
		s.detach(l)
		s.release()
		return nil, provider.TransportError(backendName, "sending request", err)
	}

	ch := make(chan provider.StreamEvent, streamChannelBuffer)
	go p.consume(ctx, d, l, ch)
	return ch, nil
}

// consume turns queued frames into events until the response ends.
// Frames queued before a connection failure are delivered before the
// failure itself.
func (p *Provider) consume(ctx context.Context, d model.Descriptor, l *listener, ch chan<- provider.StreamEvent) {
	defer close(ch)

	s := p.session
	done := false
	defer func() {
		if done {
			s.detach(l)
			s.release()
			return
		}
		go p.drain(l)
	}()

	var sawUsage bool
	// handle reports whether the call is over.
	handle := func(data []byte) bool {
		f, err := parseFrame(data)
		if err != nil {
			provider.Send(ctx, ch, provider.StreamEvent{
				Err: provider.ProtocolError(backendName, "malformed frame", err),
			})
			return true
		}
		if f.Error != "" {
			done = true
			provider.Send(ctx, ch, provider.StreamEvent{
				Err: provider.ProtocolError(backendName, string(f.Error), nil),
			})
			return true
		}
		for _, ev := range f.events(d, &sawUsage) {
			if !provider.Send(ctx, ch, ev) {
				return true
			}
		}
		if f.finished() {
			done = true
			return true
		}
		return false
	}

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-l.frames:
			if handle(data) {
				return
			}
		case <-l.lost:
			for {
				select {
				case data := <-l.frames:
					if handle(data) {
						return
					}
				default:
					done = true
					provider.Send(ctx, ch, provider.StreamEvent{Err: l.err})
					return
				}
			}
		}
	}
}

// drain discards the rest of an abandoned response so it cannot be read
// as the next call's. The connection is closed if the response does not
// end within the drain timeout.
func (p *Provider) drain(l *listener) {
	s := p.session
	defer s.release()
	defer s.detach(l)

	timer := time.NewTimer(p.drainTimeout)
	defer timer.Stop()

	discarded := 0
	for {
		select {
		case <-l.lost:
			return
		case data := <-l.frames:
			discarded++
			f, err := parseFrame(data)
			if err == nil && (f.Error != "" || f.finished()) {
				p.logger.Debug("abandoned response drained", "frames", discarded)
				return
			}
		case <-timer.C:
			p.logger.Warn("abandoned response did not finish, closing connection",
				"frames", discarded,
				"timeout", p.drainTimeout,
			)
			s.reset(l.conn, "abandoned response")
			return
		}
	}
}
