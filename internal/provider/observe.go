package provider

import "context"

// Tap relays src to a new channel and calls fn with every element,
// including the terminal error element. fn runs on the relay goroutine
// and must not block.
func Tap(ctx context.Context, src <-chan StreamEvent, fn func(StreamEvent)) <-chan StreamEvent {
	out := make(chan StreamEvent, cap(src))
	go func() {
		defer close(out)
		for ev := range src {
			fn(ev)
			if !Send(ctx, out, ev) {
				// Keep draining so the producer sees its own ctx and exits.
				for range src {
				}
				return
			}
		}
	}()
	return out
}
