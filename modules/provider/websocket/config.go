package websocket

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/flemzord/llmrelay/internal/provider"
)

// Defaults applied by Config.defaults.
const (
	DefaultURL             = "ws://localhost:3001"
	DefaultModel           = "websocket-default"
	DefaultMaxQueuedFrames = 4096
	defaultReadLimit       = 1 << 20
)

// Config holds the configuration for the WebSocket provider module.
type Config struct {
	provider.Options `yaml:",inline"`

	// DialTimeout bounds the opening handshake.
	DialTimeout string `yaml:"dial_timeout"`

	// AbandonDrainTimeout is how long an abandoned call may keep the
	// connection reserved while the rest of its response is discarded.
	// The connection is closed when it runs out.
	AbandonDrainTimeout string `yaml:"abandon_drain_timeout"`

	// MaxQueuedFrames caps the frames buffered for one call.
	MaxQueuedFrames int `yaml:"max_queued_frames"`

	// ReadLimit is the largest inbound frame accepted, in bytes.
	ReadLimit int64 `yaml:"read_limit"`
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.DialTimeout == "" {
		c.DialTimeout = "10s"
	}
	if c.AbandonDrainTimeout == "" {
		c.AbandonDrainTimeout = "30s"
	}
	if c.MaxQueuedFrames == 0 {
		c.MaxQueuedFrames = DefaultMaxQueuedFrames
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = defaultReadLimit
	}
}

// durations parses the duration fields.
func (c *Config) durations() (dial, drain time.Duration, err error) {
	dial, err1 := time.ParseDuration(c.DialTimeout)
	if err1 != nil {
		err1 = fmt.Errorf("provider.websocket: invalid dial_timeout %q: %w", c.DialTimeout, err1)
	}
	drain, err2 := time.ParseDuration(c.AbandonDrainTimeout)
	if err2 != nil {
		err2 = fmt.Errorf("provider.websocket: invalid abandon_drain_timeout %q: %w", c.AbandonDrainTimeout, err2)
	}
	return dial, drain, errors.Join(err1, err2)
}

func (c *Config) validate() error {
	var errs []error
	u, err := url.Parse(c.BaseURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("provider.websocket: invalid base_url: %w", err))
	case u.Scheme != "ws" && u.Scheme != "wss" && u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("provider.websocket: base_url scheme %q is not ws or wss", u.Scheme))
	}
	if c.MaxQueuedFrames < 0 {
		errs = append(errs, errors.New("provider.websocket: max_queued_frames must not be negative"))
	}
	if c.ReadLimit < 0 {
		errs = append(errs, errors.New("provider.websocket: read_limit must not be negative"))
	}
	if _, _, err := c.durations(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
