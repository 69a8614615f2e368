// Package keepalive pings the service's own public URL on a schedule so
// free-tier hosts that sleep idle instances keep it awake.
package keepalive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Config configures the pinger.
type Config struct {
	// Enabled turns the pinger on (default: true when a URL is set).
	Enabled bool `yaml:"enabled"`

	// URL is the address to ping, usually the public base URL.
	URL string `yaml:"url"`

	// Schedule is a cron spec or descriptor (default: "@every 10m").
	Schedule string `yaml:"schedule"`

	// Timeout bounds each ping (default: 10s).
	Timeout time.Duration `yaml:"timeout"`
}

// Pinger runs the periodic self-ping.
type Pinger struct {
	cfg    Config
	client *http.Client
	cron   *cron.Cron
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	okCount   atomic.Int64
	failCount atomic.Int64
}

// New creates a Pinger. Call Start to schedule it.
func New(cfg Config, logger *slog.Logger) *Pinger {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 10m"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Pinger{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With("component", "keepalive"),
	}
}

// Start schedules the ping. An invalid schedule is the only error.
func (p *Pinger) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.cron = cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	if _, err := p.cron.AddFunc(p.cfg.Schedule, func() { p.Ping(p.ctx) }); err != nil {
		p.cancel()
		return fmt.Errorf("keepalive: invalid schedule %q: %w", p.cfg.Schedule, err)
	}
	p.cron.Start()

	p.logger.Info("keepalive started", "url", p.cfg.URL, "schedule", p.cfg.Schedule)
	return nil
}

// Stop halts the schedule and waits briefly for a running ping.
func (p *Pinger) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.cron != nil {
		ctx := p.cron.Stop()
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
			p.logger.Warn("keepalive stop timed out")
		}
	}
	p.logger.Info("keepalive stopped")
}

// Ping performs one GET against the configured URL. Failures are logged at
// debug level and otherwise ignored.
func (p *Pinger) Ping(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		p.failCount.Add(1)
		p.logger.Debug("keepalive request invalid", "error", err)
		return
	}
	req.Header.Set("User-Agent", "relayclaw-keepalive")

	resp, err := p.client.Do(req)
	if err != nil {
		p.failCount.Add(1)
		p.logger.Debug("keepalive ping failed", "error", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		p.failCount.Add(1)
		p.logger.Debug("keepalive ping non-2xx", "status", resp.StatusCode)
		return
	}
	p.okCount.Add(1)
	p.logger.Debug("keepalive ping ok", "status", resp.StatusCode)
}

// Counts returns successful and failed pings so far.
func (p *Pinger) Counts() (ok, failed int64) {
	return p.okCount.Load(), p.failCount.Load()
}
