package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/relayclaw/pkg/relayclaw/channels/telegram"
	"github.com/jholhewres/relayclaw/pkg/relayclaw/config"
	"github.com/jholhewres/relayclaw/pkg/relayclaw/gate"
	"github.com/jholhewres/relayclaw/pkg/relayclaw/gateway"
	"github.com/jholhewres/relayclaw/pkg/relayclaw/keepalive"
	"github.com/jholhewres/relayclaw/pkg/relayclaw/relay"
)

// fallbackBotUsername is used for mention matching when neither the config
// nor getMe provides a username.
const fallbackBotUsername = "relayclaw_bot"

// newServeCmd creates the `relayclaw serve` command that runs the relay.
func newServeCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server and relay",
		Long: `Start the HTTP server, register the Telegram webhook and relay
messages to the assistant until interrupted.

Examples:
  relayclaw serve
  relayclaw serve --config ./config.yaml
  relayclaw serve --no-webhook`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, version)
		},
	}

	cmd.Flags().Bool("no-webhook", false, "do not call setWebhook at startup")
	return cmd
}

func runServe(cmd *cobra.Command, version string) error {
	// ── Load config ──
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		var missing *config.MissingError
		if errors.As(err, &missing) {
			logger.Error("required configuration missing", "variables", missing.Fields)
		}
		return err
	}
	if skip, _ := cmd.Flags().GetBool("no-webhook"); skip {
		cfg.Telegram.RegisterWebhook = false
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Telegram ──
	tg := telegram.New(cfg.Telegram.Config, logger)
	botUsername := resolveBotUsername(ctx, cfg, tg, logger)

	// ── Sessions and assistant ──
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Sessions.ResetOnStart {
		if err := store.ResetAll(ctx); err != nil {
			return fmt.Errorf("resetting sessions: %w", err)
		}
		logger.Info("sessions reset on start")
	}

	driver := newDriver(cfg, store, false, logger)

	// ── Relay and gateway ──
	relayCfg := cfg.Relay
	relayCfg.SerializePerKey = cfg.Sessions.SerializePerKey
	r := relay.New(gate.New(botUsername, logger), driver, tg, relayCfg, logger)
	gw := gateway.New(gateway.Config{
		Address:       ":" + strconv.Itoa(cfg.Port),
		WebhookSecret: cfg.Telegram.WebhookSecret,
		StatusToken:   cfg.Gateway.StatusToken,
		MaxBodyBytes:  cfg.Gateway.MaxBodyBytes,
		Version:       version,
	}, r, telegram.ParseUpdate, r, logger)

	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("starting gateway: %w", err)
	}

	if cfg.Telegram.RegisterWebhook {
		if err := tg.SetWebhook(ctx, telegram.WebhookOptions{
			URL:                cfg.WebhookURL(),
			DropPendingUpdates: cfg.Telegram.DropPendingUpdates,
			AllowedUpdates:     []string{"message"},
		}); err != nil {
			// The server keeps running; the webhook can be set later.
			logger.Error("failed to register webhook", "error", err)
		}
	}

	// ── Keepalive ──
	var pinger *keepalive.Pinger
	if cfg.Keepalive.Enabled && cfg.Keepalive.URL != "" {
		pinger = keepalive.New(cfg.Keepalive, logger)
		if err := pinger.Start(ctx); err != nil {
			logger.Error("failed to start keepalive", "error", err)
			pinger = nil
		}
	}

	// ── Wait for shutdown ──
	logger.Info("relayclaw running. Press Ctrl+C to stop.",
		"port", cfg.Port,
		"bot", botUsername,
		"instruction_version", cfg.Assistant.InstructionVersion,
		"sessions_backend", cfg.Sessions.Backend,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	// Graceful shutdown with timeout.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown", "error", err)
	}
	if err := r.Shutdown(shutdownCtx); err != nil {
		logger.Warn("relay shutdown timed out, abandoning in-flight updates", "error", err)
	}
	if pinger != nil {
		pinger.Stop()
	}

	logger.Info("shutdown complete")
	return nil
}

// resolveBotUsername prefers the configured username, then getMe, then a
// fixed fallback.
func resolveBotUsername(ctx context.Context, cfg *config.Config, tg *telegram.Telegram, logger *slog.Logger) string {
	if cfg.Telegram.BotUsername != "" {
		return cfg.Telegram.BotUsername
	}

	meCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	me, err := tg.GetMe(meCtx)
	if err != nil || me.Username == "" {
		logger.Warn("could not resolve bot username, using fallback",
			"fallback", fallbackBotUsername, "error", err)
		return fallbackBotUsername
	}
	return me.Username
}
