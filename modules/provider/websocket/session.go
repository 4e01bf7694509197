package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/coder/websocket"
	"golang.org/x/sync/singleflight"

	"github.com/flemzord/llmrelay/internal/metrics"
	"github.com/flemzord/llmrelay/internal/provider"
)

// State is the connection state of a session.
type State string

// Session states.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateClosing      State = "closing"
)

// dialer opens a connection. The session owns the returned conn.
type dialer func(ctx context.Context, taskID string) (*ws.Conn, error)

// session owns the shared connection. All state changes happen under mu.
// Dials are collapsed with singleflight; calls are serialized by slot
// because frames carry no request id.
type session struct {
	backend     string
	dial        dialer
	dialTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics

	group singleflight.Group
	slot  chan struct{}

	mu       sync.Mutex
	state    State
	conn     *ws.Conn
	listener *listener
}

func newSession(backend string, dial dialer, dialTimeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *session {
	return &session{
		backend:     backend,
		dial:        dial,
		dialTimeout: dialTimeout,
		logger:      logger,
		metrics:     m,
		slot:        make(chan struct{}, 1),
		state:       StateDisconnected,
	}
}

// State returns the current connection state.
func (s *session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// acquire reserves the in-flight slot.
func (s *session) acquire(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) release() {
	<-s.slot
}

// ensureConnected returns the open connection, dialing if needed. Callers
// that arrive while a dial is in progress wait for its result or their
// own ctx, whichever comes first.
func (s *session) ensureConnected(ctx context.Context, taskID string) (*ws.Conn, error) {
	s.mu.Lock()
	if s.state == StateOpen {
		c := s.conn
		s.mu.Unlock()
		return c, nil
	}
	s.mu.Unlock()

	ch := s.group.DoChan("dial", func() (any, error) {
		return s.connect(taskID)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ws.Conn), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// connect performs the dial. It runs detached from any one caller so an
// impatient waiter cannot abort the handshake for the others.
func (s *session) connect(taskID string) (*ws.Conn, error) {
	s.mu.Lock()
	if s.state == StateOpen {
		c := s.conn
		s.mu.Unlock()
		return c, nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.dialTimeout)
	defer cancel()

	c, err := s.dial(ctx, taskID)
	s.metrics.Dial(s.backend, err)
	if err != nil {
		s.mu.Lock()
		if s.state == StateConnecting {
			s.state = StateDisconnected
		}
		s.mu.Unlock()
		s.logger.Warn("websocket dial failed", "error", err)
		return nil, err
	}

	s.mu.Lock()
	s.state = StateOpen
	s.conn = c
	s.mu.Unlock()

	s.metrics.Connected(s.backend, true)
	s.logger.Debug("websocket connected")

	go s.readLoop(c)
	return c, nil
}

// readLoop hands every inbound frame to the active listener until the
// connection fails.
func (s *session) readLoop(c *ws.Conn) {
	defer s.metrics.Connected(s.backend, false)

	for {
		_, data, err := c.Read(context.Background())
		if err != nil {
			s.lost(c, err)
			return
		}

		s.mu.Lock()
		l := s.listener
		s.mu.Unlock()

		if l == nil || l.conn != c {
			s.logger.Debug("discarding frame with no active call", "bytes", len(data))
			continue
		}
		if !l.push(data) {
			s.logger.Warn("frame queue overflow, closing connection", "queued", cap(l.frames))
			l.fail(provider.TransportError(s.backend, "frame queue overflow", provider.ErrQueueOverflow))
			s.reset(c, "frame queue overflow")
		}
	}
}

// lost marks c as gone and fails the listener attached to it.
func (s *session) lost(c *ws.Conn, err error) {
	s.mu.Lock()
	if s.conn == c {
		s.conn = nil
		s.state = StateDisconnected
	}
	l := s.listener
	s.mu.Unlock()

	if l != nil && l.conn == c {
		l.fail(provider.TransportError(s.backend, "connection closed mid-stream", err))
	}
	if ws.CloseStatus(err) != ws.StatusNormalClosure {
		s.logger.Debug("websocket read ended", "error", err)
	}
}

// reset closes c if it is still the current connection.
func (s *session) reset(c *ws.Conn, reason string) {
	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = StateClosing
	s.mu.Unlock()

	_ = c.Close(ws.StatusPolicyViolation, reason)

	s.mu.Lock()
	if s.state == StateClosing {
		s.state = StateDisconnected
	}
	s.mu.Unlock()
}

// attach makes l the receiver of frames on c. It fails when c is no
// longer the current connection.
func (s *session) attach(c *ws.Conn, l *listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != c || s.state != StateOpen {
		return false
	}
	l.conn = c
	s.listener = l
	return true
}

func (s *session) detach(l *listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == l {
		s.listener = nil
	}
}

// close shuts the connection down for good.
func (s *session) close() error {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	if c != nil {
		s.state = StateClosing
	}
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	err := c.Close(ws.StatusNormalClosure, "shutting down")

	s.mu.Lock()
	if s.state == StateClosing {
		s.state = StateDisconnected
	}
	s.mu.Unlock()
	return err
}

// listener is the per-call frame queue.
type listener struct {
	conn   *ws.Conn
	frames chan []byte

	once sync.Once
	lost chan struct{}
	err  error
}

func newListener(capacity int) *listener {
	return &listener{
		frames: make(chan []byte, capacity),
		lost:   make(chan struct{}),
	}
}

// push queues data. It reports false when the queue is full.
func (l *listener) push(data []byte) bool {
	select {
	case l.frames <- data:
		return true
	default:
		return false
	}
}

func (l *listener) fail(err error) {
	l.once.Do(func() {
		l.err = err
		close(l.lost)
	})
}

// dialHeaders returns the handshake headers.
func dialHeaders(apiKey, taskID string, extra map[string]string) http.Header {
	h := http.Header{}
	if apiKey != "" {
		h.Set("Authorization", "Bearer "+apiKey)
	}
	if taskID != "" {
		h.Set("X-Task-ID", taskID)
	}
	for k, v := range extra {
		h.Set(k, v)
	}
	return h
}
