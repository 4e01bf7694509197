// Package openai implements the provider.openai module: streaming chat
// completions over SSE against OpenAI-compatible endpoints, including
// Azure OpenAI deployments.
package openai

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/llmrelay/internal/core"
	"github.com/flemzord/llmrelay/internal/model"
	"github.com/flemzord/llmrelay/internal/provider"
	"github.com/flemzord/llmrelay/internal/telemetry"
)

// ModuleID is the registry identifier of this module.
const ModuleID = "provider.openai"

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
)

// Provider streams from an OpenAI-compatible Chat Completions endpoint.
type Provider struct {
	config    Config
	logger    *slog.Logger
	client    *http.Client
	transport transport
	desc      model.Descriptor
	policy    provider.RetryPolicy
	limiter   *rate.Limiter
	hooks     telemetry.Hooks
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
		return err
	}
	p.policy = policy

	// No client-wide timeout: it would cut long streams. Only the wait
	// for response headers is bounded; the rest follows ctx.
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = p.config.parsedTimeout()
	p.client = &http.Client{Transport: tr}

	var reg *model.Registry
	if svc, ok := ctx.Service(model.ServiceName); ok {
		reg, _ = svc.(*model.Registry)
	}
	p.desc = p.config.Resolve(reg)

	// Chosen once; every call uses the same transport.
	p.transport = selectTransport(p.config)

	if rpm := p.config.RequestsPerMinute; rpm > 0 {
		p.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
	}

	p.logger.Info("provider ready",
		"transport", p.transport.name(),
		"model", p.desc.ID,
	)

	ctx.RegisterService(ModuleID, p)
	return nil
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	var errs []error
	if p.config.APIKey == "" {
		errs = append(errs, errors.New("provider.openai: api_key is required"))
	}
	if p.config.Model == "" {
		errs = append(errs, errors.New("provider.openai: model is required"))
	}
	if p.config.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("provider.openai: requests_per_minute must not be negative"))
	}
	if err := p.config.validateTimeout(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
