// Package commands implements the relayclaw CLI using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "relayclaw",
		Short: "relayclaw - Telegram relay for a hosted AI assistant",
		Long: `relayclaw connects a Telegram bot to a hosted AI assistant. Every
participant gets a persistent conversation, group chats answer only when
the bot is mentioned, and webhooks are acknowledged immediately.

Examples:
  relayclaw serve
  relayclaw chat "What can you do?"
  relayclaw sessions list
  relayclaw webhook info`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(version),
		newChatCmd(),
		newSessionsCmd(),
		newWebhookCmd(),
		newSecretsCmd(),
		newSetupCmd(),
	)

	// Global flags.
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
