// Package gateway is the public HTTP surface: the Telegram webhook, a plain
// root status line and a JSON health endpoint.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jholhewres/relayclaw/pkg/relayclaw/channels"
	"github.com/jholhewres/relayclaw/pkg/relayclaw/relay"
)

// DefaultMaxBodyBytes limits webhook request bodies.
const DefaultMaxBodyBytes = 1 << 20

// RootText is the body served on GET /.
const RootText = "relayclaw is running"

// Acceptor takes a parsed message and processes it in the background.
type Acceptor interface {
	Accept(msg *channels.IncomingMessage) (bool, error)
}

// StatsSource reports relay counters for /api/status.
type StatsSource interface {
	Stats() relay.Stats
}

// UpdateParser turns a raw webhook body into a message. A nil message with a
// nil error means the update carries nothing to process.
type UpdateParser func(raw []byte) (*channels.IncomingMessage, error)

// Config configures the HTTP server.
type Config struct {
	// Address to listen on (default: ":3000").
	Address string `yaml:"address"`

	// WebhookSecret is the last path segment of the webhook route.
	WebhookSecret string `yaml:"-"`

	// StatusToken protects /api/status with a bearer token when set.
	StatusToken string `yaml:"status_token"`

	// MaxBodyBytes limits webhook bodies (default: 1 MiB).
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// Version is reported by /health.
	Version string `yaml:"-"`
}

// Gateway is the HTTP server.
type Gateway struct {
	config    Config
	acceptor  Acceptor
	parse     UpdateParser
	stats     StatsSource
	server    *http.Server
	logger    *slog.Logger
	startedAt time.Time
}

// New creates a new Gateway. stats may be nil.
func New(cfg Config, acceptor Acceptor, parse UpdateParser, stats StatsSource, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":3000"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Gateway{
		config:    cfg,
		acceptor:  acceptor,
		parse:     parse,
		stats:     stats,
		logger:    logger.With("component", "gateway"),
		startedAt: time.Now(),
	}
}

// Handler builds the routed handler with middleware applied.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", g.handleRoot)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("POST /telegram/webhook/{secret}", g.handleWebhook)
	mux.Handle("GET /api/status", g.authMiddleware(http.HandlerFunc(g.handleStatus)))

	return g.securityHeadersMiddleware(g.recoverMiddleware(mux))
}

// Start listens on the configured address and serves in the background.
// Listen errors are returned before the goroutine starts.
func (g *Gateway) Start(ctx context.Context) error {
	g.startedAt = time.Now()
	g.server = &http.Server{
		Addr:              g.config.Address,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", g.config.Address)
	if err != nil {
		return err
	}

	go func() {
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway server error", "error", err)
		}
	}()
	g.logger.Info("gateway started", "address", ln.Addr().String())
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("gateway stopping...")
	return g.server.Shutdown(ctx)
}
