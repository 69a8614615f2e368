package commands

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newSessionsCmd creates `relayclaw sessions` for inspecting the store.
func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect or reset stored assistant sessions",
	}
	cmd.AddCommand(newSessionsListCmd(), newSessionsResetCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List session records",
		Long: `List every stored participant key with its session handle and
instruction version. Records from another version are marked stale and
will be replaced on that participant's next message.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			all, err := store.All(cmd.Context())
			if err != nil {
				return err
			}
			if len(all) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions stored.")
				return nil
			}

			keys := make([]string, 0, len(all))
			for k := range all {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			version := cfg.Assistant.InstructionVersion
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tHANDLE\tVERSION\tSTATE")
			for _, k := range keys {
				rec := all[k]
				state := "current"
				if !rec.Current(version) {
					state = "stale"
				}
				v := rec.Version
				if v == "" {
					v = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", k, rec.Handle, v, state)
			}
			return w.Flush()
		},
	}
}

func newSessionsResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return fmt.Errorf("refusing to reset without --yes")
			}
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.ResetAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All sessions deleted.")
			return nil
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "confirm the reset")
	return cmd
}
