package provider

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

// withSleep replaces the backoff sleep so delays can be observed.
func withSleep(fn func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(r *retrier) { r.sleep = fn }
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

// scriptedOp fails the first `failures` attempts with err, then streams evs.
func scriptedOp(failures int, err error, evs ...StreamEvent) (StreamFunc, *int) {
	calls := 0
	return func(ctx context.Context) (<-chan StreamEvent, error) {
		calls++
		if calls <= failures {
			return nil, err
		}
		ch := make(chan StreamEvent, len(evs))
		for _, ev := range evs {
			ch <- ev
		}
		close(ch)
		return ch, nil
	}, &calls
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	for k := 0; k < 4; k++ {
		op, calls := scriptedOp(k, ConnectionError("test", nil), TextEvent("a"), TextEvent("b"))
		rec := &sleepRecorder{}
		stream := WithRetry(op, fastPolicy(4), withSleep(rec.sleep))

		ch, err := stream(context.Background())
		if err != nil {
			t.Fatalf("k=%d: unexpected error: %v", k, err)
		}
		events, err := Collect(ch)
		if err != nil {
			t.Fatalf("k=%d: stream error: %v", k, err)
		}
		if len(events) != 2 || events[0].Text != "a" || events[1].Text != "b" {
			t.Errorf("k=%d: events = %+v, want exactly [a b]", k, events)
		}
		if *calls != k+1 {
			t.Errorf("k=%d: calls = %d, want %d", k, *calls, k+1)
		}
		if len(rec.delays) != k {
			t.Errorf("k=%d: sleeps = %d, want %d", k, len(rec.delays), k)
		}
	}
}

func TestWithRetry_FailureInChannelBeforeFirstEvent(t *testing.T) {
	t.Parallel()

	calls := 0
	op := func(ctx context.Context) (<-chan StreamEvent, error) {
		calls++
		ch := make(chan StreamEvent, 2)
		if calls == 1 {
			ch <- StreamEvent{Err: TransportError("test", "reset", nil)}
		} else {
			ch <- TextEvent("ok")
		}
		close(ch)
		return ch, nil
	}

	ch, err := WithRetry(op, fastPolicy(3))(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events, err := Collect(ch)
	if err != nil || len(events) != 1 || events[0].Text != "ok" {
		t.Fatalf("events = %+v, err = %v", events, err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestWithRetry_NoRetryAfterFirstEvent(t *testing.T) {
	t.Parallel()

	calls := 0
	midErr := TransportError("test", "connection reset", nil)
	op := func(ctx context.Context) (<-chan StreamEvent, error) {
		calls++
		ch := make(chan StreamEvent, 2)
		ch <- TextEvent("partial")
		ch <- StreamEvent{Err: midErr}
		close(ch)
		return ch, nil
	}

	ch, err := WithRetry(op, fastPolicy(5))(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events, err := Collect(ch)
	if len(events) != 1 || events[0].Text != "partial" {
		t.Errorf("events = %+v, want exactly one", events)
	}
	if !errors.Is(err, midErr) {
		t.Errorf("err = %v, want the mid-stream error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithRetry_Exhausted(t *testing.T) {
	t.Parallel()

	last := StatusError("test", http.StatusServiceUnavailable, 0, "down")
	op, calls := scriptedOp(10, last)

	_, err := WithRetry(op, fastPolicy(3), WithRetryBackend("test"))(context.Background())

	var re *RetryError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want *RetryError", err)
	}
	if re.Attempts != 3 || re.Backend != "test" || !errors.Is(re.Last, last) {
		t.Errorf("RetryError = %+v", re)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Error("should match ErrRetryExhausted")
	}
	if *calls != 3 {
		t.Errorf("calls = %d, want 3", *calls)
	}
}

func TestWithRetry_NonRetryableSurfacedImmediately(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{"protocol", ProtocolError("test", "bad frame", nil)},
		{"client status", StatusError("test", http.StatusUnauthorized, 0, "bad key")},
		{"plain", errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			op, calls := scriptedOp(10, tt.err)
			_, err := WithRetry(op, fastPolicy(5))(context.Background())
			if !errors.Is(err, tt.err) {
				t.Errorf("err = %v, want %v", err, tt.err)
			}
			if errors.Is(err, ErrRetryExhausted) {
				t.Error("non-retryable error must not be reported as exhaustion")
			}
			if *calls != 1 {
				t.Errorf("calls = %d, want 1", *calls)
			}
		})
	}
}

func TestWithRetry_DelaysDoubleAndCap(t *testing.T) {
	t.Parallel()

	op, _ := scriptedOp(10, ConnectionError("test", nil))
	rec := &sleepRecorder{}
	policy := RetryPolicy{MaxAttempts: 6, BaseDelay: 100 * time.Millisecond, MaxDelay: 500 * time.Millisecond}

	_, _ = WithRetry(op, policy, withSleep(rec.sleep))(context.Background())

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}
	if len(rec.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", rec.delays, want)
	}
	for i := range want {
		if rec.delays[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, rec.delays[i], want[i])
		}
	}
}

func TestWithRetry_RetryAfterHintWins(t *testing.T) {
	t.Parallel()

	op, _ := scriptedOp(1, StatusError("test", http.StatusTooManyRequests, 3*time.Second, ""), TextEvent("x"))
	rec := &sleepRecorder{}
	policy := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Second, MaxRetryAfter: 2 * time.Second}

	ch, err := WithRetry(op, policy, withSleep(rec.sleep))(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	_, _ = Collect(ch)

	if len(rec.delays) != 1 || rec.delays[0] != 2*time.Second {
		t.Errorf("delays = %v, want [2s] (hint capped)", rec.delays)
	}
}

func TestWithRetry_CancelDuringBackoff(t *testing.T) {
	t.Parallel()

	op, calls := scriptedOp(10, ConnectionError("test", nil))
	ctx, cancel := context.WithCancel(context.Background())

	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}
	done := make(chan error, 1)
	go func() {
		_, err := WithRetry(op, policy)(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not stop on cancellation")
	}
	if *calls != 1 {
		t.Errorf("calls = %d, want 1", *calls)
	}
}

func TestWithRetry_EmptyStream(t *testing.T) {
	t.Parallel()

	op, _ := scriptedOp(0, nil)
	ch, err := WithRetry(op, fastPolicy(2))(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	events, err := Collect(ch)
	if err != nil || len(events) != 0 {
		t.Errorf("events = %v, err = %v", events, err)
	}
}

func TestWithRetry_OnRetryCallback(t *testing.T) {
	t.Parallel()

	op, _ := scriptedOp(2, ConnectionError("test", nil), TextEvent("x"))
	var attempts []int
	ch, err := WithRetry(op, fastPolicy(3), OnRetry(func(attempt int, _ error, _ time.Duration) {
		attempts = append(attempts, attempt)
	}))(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	_, _ = Collect(ch)

	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("attempts = %v, want [1 2]", attempts)
	}
}

func TestRetryPolicy_Normalized(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxAttempts: 0, BaseDelay: time.Second, MaxDelay: time.Millisecond}.normalized()
	if p.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", p.MaxAttempts)
	}
	if p.MaxDelay != time.Second {
		t.Errorf("MaxDelay = %v, want raised to BaseDelay", p.MaxDelay)
	}
	if p.RetryableStatus == nil {
		t.Error("RetryableStatus should default")
	}
}
