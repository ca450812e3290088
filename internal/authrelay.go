package internal

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dgellow/auth-relay/internal/config"
	"github.com/dgellow/auth-relay/internal/cookie"
	"github.com/dgellow/auth-relay/internal/idp"
	"github.com/dgellow/auth-relay/internal/log"
	"github.com/dgellow/auth-relay/internal/metrics"
	"github.com/dgellow/auth-relay/internal/relay"
	"github.com/dgellow/auth-relay/internal/server"
	"github.com/dgellow/auth-relay/internal/sessiontoken"
)

const shutdownTimeout = 30 * time.Second

// AuthRelay is the assembled relay service
type AuthRelay struct {
	config     config.Config
	handler    http.Handler
	httpServer *server.HTTPServer
	registry   *prometheus.Registry
}

// Option adjusts how the relay is built
type Option func(*buildOptions)

type buildOptions struct {
	httpClient *http.Client
	provider   idp.Provider
}

// WithHTTPClient sets the client used for provider calls
func WithHTTPClient(c *http.Client) Option {
	return func(o *buildOptions) { o.httpClient = c }
}

// WithProvider replaces the provider built from config
func WithProvider(p idp.Provider) Option {
	return func(o *buildOptions) { o.provider = p }
}

// NewAuthRelay builds every component from a resolved config. ctx bounds
// background work such as JWKS refresh.
func NewAuthRelay(ctx context.Context, cfg config.Config, opts ...Option) (*AuthRelay, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	log.LogInfoWithFields("authrelay", "Building auth relay", map[string]any{
		"baseURL":  cfg.BaseURL,
		"provider": string(cfg.Provider.Kind),
		"tokenTtl": cfg.Session.TokenTTL.String(),
	})

	provider := o.provider
	if provider == nil {
		var err error
		provider, err = idp.NewProvider(ctx, cfg.Provider, o.httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to create identity provider: %w", err)
		}
	}

	codec := sessiontoken.NewCodec([]byte(cfg.Session.JWTSecret), cfg.BaseURL, cfg.Session.TokenTTL)
	cookies := cookie.NewPolicy(cfg.Cookie)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	targets := relay.Targets{
		Native: cfg.AppRedirectURI,
		Web:    cfg.BaseURL,
	}

	handler := server.NewRouter(server.RouterConfig{
		Relay:    server.NewRelayHandlers(provider, cfg.Provider.ClientID, targets, codec, cookies, m),
		Session:  server.NewSessionHandlers(cookies),
		Guard:    server.NewGuard(codec, cookies, m),
		Metrics:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		BaseURL:  cfg.BaseURL,
		Origins:  cfg.AllowedOrigins,
		LogLabel: "http",
	})

	log.LogInfoWithFields("authrelay", "Auth relay built", map[string]any{
		"nativeRedirect": targets.Native,
		"webRedirect":    targets.Web,
		"cookie":         cookies.Name,
		"cookieSecure":   cookies.Secure,
	})

	return &AuthRelay{
		config:     cfg,
		handler:    handler,
		httpServer: server.NewHTTPServer(handler, cfg.Addr),
		registry:   registry,
	}, nil
}

// Handler exposes the routed handler, for embedding and tests
func (a *AuthRelay) Handler() http.Handler { return a.handler }

// Run serves until ctx ends, SIGINT or SIGTERM arrives, or the server
// fails, then shuts down gracefully
func (a *AuthRelay) Run(ctx context.Context) error {
	log.LogInfoWithFields("authrelay", "Starting auth relay", map[string]any{
		"addr": a.config.Addr,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		reason := "shutdown requested"
		if ctx.Err() == nil {
			reason = "server failure"
		}
		log.LogInfoWithFields("authrelay", "Starting graceful shutdown", map[string]any{
			"reason":  reason,
			"timeout": shutdownTimeout.String(),
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			log.LogErrorWithFields("authrelay", "HTTP server shutdown error", map[string]any{
				"error": err.Error(),
			})
			return err
		}
		return nil
	})

	err := g.Wait()
	if err != nil {
		return err
	}
	log.LogInfoWithFields("authrelay", "Application shutdown complete", nil)
	return nil
}

// Gatherer exposes the relay's metrics registry
func (a *AuthRelay) Gatherer() prometheus.Gatherer { return a.registry }
