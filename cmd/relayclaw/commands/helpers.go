package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jholhewres/relayclaw/pkg/relayclaw/assistant"
	"github.com/jholhewres/relayclaw/pkg/relayclaw/config"
	"github.com/jholhewres/relayclaw/pkg/relayclaw/database"
	"github.com/jholhewres/relayclaw/pkg/relayclaw/sessions"
)

// loadConfig resolves the --config flag, loads the configuration and builds
// the process logger from it.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	cfg, path, err := config.Load(configPath, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger := cfg.Logging.NewLogger(os.Stderr, verbose)
	slog.SetDefault(logger)
	if path != "" {
		logger.Debug("config loaded", "path", path)
	}
	return cfg, logger, nil
}

// openStore builds the session store selected by the configuration and
// loads its durable state.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (sessions.Store, error) {
	var store sessions.Store
	switch cfg.Sessions.Backend {
	case config.SessionsMemory:
		store = sessions.NewMemoryStore()
	case config.SessionsDatabase:
		db, err := database.Open(ctx, cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("opening session database: %w", err)
		}
		store = sessions.NewSQLStore(db, logger)
	case config.SessionsFile, "":
		store = sessions.NewFileStore(cfg.Sessions.Path, logger)
	default:
		return nil, fmt.Errorf("unknown sessions backend %q", cfg.Sessions.Backend)
	}

	if err := store.Load(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("loading sessions: %w", err)
	}
	return store, nil
}

// newDriver wires the assistant service, the resolver and the run driver.
// serialize makes the driver hold a per-key lock itself; serve leaves that
// to the relay.
func newDriver(cfg *config.Config, store sessions.Store, serialize bool, logger *slog.Logger) *assistant.Driver {
	service := assistant.NewOpenAIService(assistant.OpenAIConfig{
		APIKey:     cfg.Assistant.APIKey,
		BaseURL:    cfg.Assistant.BaseURL,
		MaxRetries: cfg.Assistant.MaxRetries,
	}, logger)

	resolver := sessions.NewResolver(store, service, cfg.Assistant.InstructionVersion, logger)
	return assistant.NewDriver(service, resolver, assistant.DriverConfig{
		AssistantID:     cfg.Assistant.ID,
		PollInterval:    cfg.Assistant.PollInterval,
		PollMaxAttempts: cfg.Assistant.PollMaxAttempts,
		RunTimeout:      cfg.Assistant.RunTimeout,
		RecentTurns:     cfg.Assistant.RecentTurns,
		FallbackReply:   cfg.Assistant.FallbackReply,
		SerializePerKey: serialize,
	}, logger)
}
