package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jholhewres/relayclaw/pkg/relayclaw/config"
)

// newSecretsCmd creates `relayclaw secrets` for storing credentials in the
// OS keyring instead of files or the environment.
func newSecretsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Store credentials in the OS keyring",
		Long: fmt.Sprintf(`Store or remove credentials in the OS keyring. Keyring values are
used only when the environment and config file leave them empty.

Keys: %s

Examples:
  relayclaw secrets set telegram_token
  relayclaw secrets delete openai_api_key`, strings.Join(config.KeyringKeys, ", ")),
	}
	cmd.AddCommand(newSecretsSetCmd(), newSecretsDeleteCmd())
	return cmd
}

func newSecretsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key>",
		Short: "Prompt for a secret and store it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !config.ValidKeyringKey(key) {
				return fmt.Errorf("unknown key %q (valid: %s)", key, strings.Join(config.KeyringKeys, ", "))
			}
			value, err := config.ReadPassword(fmt.Sprintf("%s: ", key))
			if err != nil {
				return err
			}
			if value == "" {
				return fmt.Errorf("empty value, nothing stored")
			}
			if err := config.StoreKeyring(key, value); err != nil {
				return fmt.Errorf("storing in keyring: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s in the OS keyring.\n", key)
			return nil
		},
	}
}

func newSecretsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !config.ValidKeyringKey(key) {
				return fmt.Errorf("unknown key %q (valid: %s)", key, strings.Join(config.KeyringKeys, ", "))
			}
			if err := config.DeleteKeyring(key); err != nil {
				return fmt.Errorf("deleting from keyring: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from the OS keyring.\n", key)
			return nil
		},
	}
}
