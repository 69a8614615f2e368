package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/relayclaw/pkg/relayclaw/channels/telegram"
	"github.com/jholhewres/relayclaw/pkg/relayclaw/config"
)

// newWebhookCmd creates `relayclaw webhook` for managing the Telegram
// webhook registration outside of serve.
func newWebhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook registration",
	}
	cmd.AddCommand(newWebhookSetCmd(), newWebhookInfoCmd(), newWebhookDeleteCmd())
	return cmd
}

// telegramFromConfig loads the config and builds a client, requiring only
// the bot token.
func telegramFromConfig(cmd *cobra.Command) (*config.Config, *telegram.Telegram, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Telegram.Token == "" {
		return nil, nil, &config.MissingError{Fields: []string{config.EnvTelegramToken}}
	}
	return cfg, telegram.New(cfg.Telegram.Config, logger), nil
}

func newWebhookSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Register BASE_URL/telegram/webhook/<secret> with Telegram",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, tg, err := telegramFromConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			drop, _ := cmd.Flags().GetBool("drop-pending")
			if err := tg.SetWebhook(cmd.Context(), telegram.WebhookOptions{
				URL:                cfg.WebhookURL(),
				DropPendingUpdates: drop || cfg.Telegram.DropPendingUpdates,
				AllowedUpdates:     []string{"message"},
			}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Webhook registered.")
			return nil
		},
	}
	cmd.Flags().Bool("drop-pending", false, "discard updates queued at Telegram")
	return cmd
}

func newWebhookInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the current webhook registration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, tg, err := telegramFromConfig(cmd)
			if err != nil {
				return err
			}
			info, err := tg.GetWebhookInfo(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			url := info.URL
			if url == "" {
				url = "(none)"
			}
			fmt.Fprintf(out, "URL:             %s\n", redactSecretPath(url))
			fmt.Fprintf(out, "Pending updates: %d\n", info.PendingUpdateCount)
			if info.LastErrorDate > 0 {
				fmt.Fprintf(out, "Last error:      %s (%s)\n",
					info.LastErrorMessage,
					time.Unix(info.LastErrorDate, 0).Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newWebhookDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook registration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, tg, err := telegramFromConfig(cmd)
			if err != nil {
				return err
			}
			drop, _ := cmd.Flags().GetBool("drop-pending")
			if err := tg.DeleteWebhook(cmd.Context(), drop); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Webhook deleted.")
			return nil
		},
	}
	cmd.Flags().Bool("drop-pending", false, "discard updates queued at Telegram")
	return cmd
}

// redactSecretPath hides the last path segment of a webhook URL.
func redactSecretPath(url string) string {
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '/' {
			if i == len(url)-1 {
				return url
			}
			return url[:i+1] + "***"
		}
	}
	return url
}
