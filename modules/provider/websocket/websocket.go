// Package websocket implements the provider.websocket module: completions
// streamed over one persistent WebSocket connection shared by all calls.
//
// The wire protocol has no request id, so calls on a connection are
// serialized. A call abandoned mid-response keeps the connection reserved
// while the remainder is discarded; if the remainder does not arrive in
// time the connection is closed and redialed on the next call.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	ws "github.com/coder/websocket"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/llmrelay/internal/core"
	"github.com/flemzord/llmrelay/internal/model"
	"github.com/flemzord/llmrelay/internal/provider"
	"github.com/flemzord/llmrelay/internal/telemetry"
)

// ModuleID is the registry identifier of this module.
const ModuleID = "provider.websocket"

// backendName labels errors, logs and metrics.
const backendName = "websocket"

func init() {
	core.RegisterModule(&Provider{})
}

// Compile-time interface guards.
var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
	_ core.Module            = (*Provider)(nil)
	_ core.Configurable      = (*Provider)(nil)
	_ core.Provisioner       = (*Provider)(nil)
	_ core.Validator         = (*Provider)(nil)
	_ core.Stopper           = (*Provider)(nil)
)

// Provider streams completions over a shared WebSocket connection.
type Provider struct {
	config       Config
	logger       *slog.Logger
	desc         model.Descriptor
	policy       provider.RetryPolicy
	hooks        telemetry.Hooks
	drainTimeout time.Duration
	session      *session
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return err
	}
	p.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.config.defaults()
	p.logger = ctx.Logger
	p.hooks = telemetry.Lookup(ctx)

	policy, err := p.config.Retry.Policy()
	if err != nil {
		return fmt.Errorf("provider.websocket: %w", err)
	}
	p.policy = policy

	dialTimeout, drainTimeout, err := p.config.durations()
	if err != nil {
		return err
	}
	p.drainTimeout = drainTimeout

	var reg *model.Registry
	if svc, ok := ctx.Service(model.ServiceName); ok {
		reg, _ = svc.(*model.Registry)
	}
	p.desc = p.config.Resolve(reg)

	p.session = newSession(backendName, p.dial, dialTimeout, p.logger, p.hooks.Metrics)

	ctx.RegisterService(ModuleID, p)
	return nil
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	return p.config.validate()
}

// Stop implements core.Stopper. It closes the shared connection.
func (p *Provider) Stop(_ context.Context) error {
	if p.session == nil {
		return nil
	}
	return p.session.close()
}

// dial opens a connection to the configured endpoint.
func (p *Provider) dial(ctx context.Context, taskID string) (*ws.Conn, error) {
	c, resp, err := ws.Dial(ctx, p.config.BaseURL, &ws.DialOptions{
		HTTPHeader: dialHeaders(p.config.APIKey, taskID, p.config.Headers),
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		perr := provider.ConnectionError(backendName, err)
		if resp != nil {
			perr.StatusCode = resp.StatusCode
			perr.Message = http.StatusText(resp.StatusCode)
			perr.RetryAfter = provider.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		}
		return nil, perr
	}
	c.SetReadLimit(p.config.ReadLimit)
	return c, nil
}

// HealthCheck reports whether a connection is or can be established.
func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.session.ensureConnected(ctx, p.config.TaskID)
	return err
}

// ResolveModel returns the descriptor resolved at provisioning.
func (p *Provider) ResolveModel() model.Descriptor {
	return p.desc
}

// State returns the state of the shared connection.
func (p *Provider) State() State {
	return p.session.State()
}
