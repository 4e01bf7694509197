// Package gateway serves the provider chain over HTTP: streams as
// Server-Sent Events, usage totals, health and Prometheus metrics.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/llmrelay/internal/core"
	"github.com/flemzord/llmrelay/internal/metrics"
	"github.com/flemzord/llmrelay/internal/model"
	"github.com/flemzord/llmrelay/internal/provider"
	"github.com/flemzord/llmrelay/internal/usage"
	"gopkg.in/yaml.v3"
)

// ModuleID is the gateway's module identifier.
const ModuleID = "gateway.http"

func init() {
	core.RegisterModule(&Gateway{})
}

// Gateway is the HTTP gateway module. It is a leaf module: nothing
// imports it, and its dependencies are resolved from the service registry.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	stats     *Stats
	startedAt time.Time

	// Resolved lazily at Start() via service registry.
	chain   *provider.Chain
	ledger  usage.Ledger
	models  *model.Registry
	metrics *metrics.Metrics
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.stats = &Stats{}
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	if (g.config.Auth.BasicUser == "") != (g.config.Auth.BasicPass == "") {
		return errors.New("gateway: auth.basic_user and auth.basic_pass must be set together")
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the service
// registry and starts the HTTP server.
func (g *Gateway) Start() error {
	g.resolveServices()
	if g.chain == nil {
		g.logger.Warn("gateway started without a provider chain; /v1/stream will return 503")
	}
	if !g.config.Auth.IsConfigured() {
		g.logger.Warn("gateway auth not configured; /status and /v1 are open", "bind", g.config.Bind)
	}

	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

// resolveServices binds optional dependencies. Missing services degrade
// the matching endpoints instead of failing startup.
func (g *Gateway) resolveServices() {
	if svc, ok := g.appCtx.Service(provider.ChainService); ok {
		g.chain, _ = svc.(*provider.Chain)
	}
	if svc, ok := g.appCtx.Service(usage.LedgerService); ok {
		g.ledger, _ = svc.(usage.Ledger)
	}
	if svc, ok := g.appCtx.Service(model.ServiceName); ok {
		g.models, _ = svc.(*model.Registry)
	}
	if svc, ok := g.appCtx.Service(metrics.ServiceName); ok {
		g.metrics, _ = svc.(*metrics.Metrics)
	}
}

// Interface guards.
var (
	_ core.Module       = (*Gateway)(nil)
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)
