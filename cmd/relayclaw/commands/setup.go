package commands

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jholhewres/relayclaw/pkg/relayclaw/config"
)

// Secret storage choices offered by setup.
const (
	storageEnv     = "env"
	storageKeyring = "keyring"
)

// newSetupCmd creates the `relayclaw setup` wizard.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long: `Starts an interactive wizard that writes config.yaml. Credentials are
never written in plain text: they are either referenced as ${ENV}
variables or stored in the OS keyring.

Examples:
  relayclaw setup
  relayclaw setup --config ./configs/config.yaml`,
		Args: cobra.NoArgs,
		RunE: runSetup,
	}
}

// setupAnswers collects the wizard input before it is applied.
type setupAnswers struct {
	baseURL            string
	botUsername        string
	assistantID        string
	instructionVersion string
	port               string
	backend            string
	storage            string
	telegramToken      string
	openAIKey          string
}

func runSetup(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = "config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		overwrite := false
		if err := huh.NewConfirm().
			Title(fmt.Sprintf("%s already exists. Overwrite?", path)).
			Value(&overwrite).
			Run(); err != nil {
			return setupAborted(err)
		}
		if !overwrite {
			fmt.Fprintln(cmd.OutOrStdout(), "Setup cancelled.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	a := setupAnswers{
		instructionVersion: cfg.Assistant.InstructionVersion,
		port:               strconv.Itoa(cfg.Port),
		backend:            cfg.Sessions.Backend,
		storage:            storageEnv,
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Public base URL").
				Description("Telegram delivers updates to <base URL>/telegram/webhook/<secret>.").
				Placeholder("https://relay.example.com").
				Value(&a.baseURL).
				Validate(validateBaseURL),
			huh.NewInput().
				Title("Bot username").
				Description("Used to detect mentions in groups. Leave empty to ask Telegram.").
				Value(&a.botUsername),
			huh.NewInput().
				Title("Port").
				Value(&a.port).
				Validate(validatePort),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Assistant ID").
				Placeholder("asst_...").
				Value(&a.assistantID).
				Validate(required("assistant ID")),
			huh.NewInput().
				Title("Instruction version").
				Description("Changing it later starts a fresh conversation for every participant.").
				Value(&a.instructionVersion).
				Validate(required("instruction version")),
			huh.NewSelect[string]().
				Title("Session store").
				Options(
					huh.NewOption("JSON file", config.SessionsFile),
					huh.NewOption("SQLite / PostgreSQL database", config.SessionsDatabase),
					huh.NewOption("Memory (lost on restart)", config.SessionsMemory),
				).
				Value(&a.backend),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should credentials live?").
				Options(
					huh.NewOption("Environment variables (${VAR} references)", storageEnv),
					huh.NewOption("OS keyring", storageKeyring),
				).
				Value(&a.storage),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram bot token").
				EchoMode(huh.EchoModePassword).
				Value(&a.telegramToken).
				Validate(required("bot token")),
			huh.NewInput().
				Title("OpenAI API key").
				EchoMode(huh.EchoModePassword).
				Value(&a.openAIKey).
				Validate(required("API key")),
		).WithHideFunc(func() bool { return a.storage != storageKeyring }),
	)

	if err := form.Run(); err != nil {
		return setupAborted(err)
	}

	if err := applySetupAnswers(cfg, a); err != nil {
		return err
	}
	if err := config.SaveConfigToFile(cfg, path); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nConfiguration written to %s\n", path)
	if a.storage == storageEnv {
		fmt.Fprintf(out, "Set %s, %s and %s before running `relayclaw serve`.\n",
			config.EnvTelegramToken, config.EnvOpenAIKey, config.EnvWebhookSecret)
	}
	return nil
}

// applySetupAnswers copies the wizard answers into cfg and stores keyring
// secrets.
func applySetupAnswers(cfg *config.Config, a setupAnswers) error {
	port, err := strconv.Atoi(strings.TrimSpace(a.port))
	if err != nil {
		return fmt.Errorf("invalid port %q", a.port)
	}

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(a.baseURL), "/")
	cfg.Port = port
	cfg.Telegram.BotUsername = strings.TrimPrefix(strings.TrimSpace(a.botUsername), "@")
	cfg.Assistant.ID = strings.TrimSpace(a.assistantID)
	cfg.Assistant.InstructionVersion = strings.TrimSpace(a.instructionVersion)
	cfg.Sessions.Backend = a.backend

	switch a.storage {
	case storageKeyring:
		if err := config.StoreKeyring(config.KeyringTelegramToken, a.telegramToken); err != nil {
			return fmt.Errorf("storing bot token in keyring: %w", err)
		}
		if err := config.StoreKeyring(config.KeyringOpenAIKey, a.openAIKey); err != nil {
			return fmt.Errorf("storing API key in keyring: %w", err)
		}
		cfg.Telegram.WebhookSecret = newWebhookSecret()
	default:
		cfg.Telegram.Token = "${" + config.EnvTelegramToken + "}"
		cfg.Assistant.APIKey = "${" + config.EnvOpenAIKey + "}"
		cfg.Telegram.WebhookSecret = "${" + config.EnvWebhookSecret + "}"
	}
	return nil
}

// newWebhookSecret returns a random path-safe secret.
func newWebhookSecret() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func setupAborted(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return fmt.Errorf("setup aborted")
	}
	return err
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

func validateBaseURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("enter an absolute http(s) URL")
	}
	return nil
}

func validatePort(s string) error {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("enter a port between 1 and 65535")
	}
	return nil
}
