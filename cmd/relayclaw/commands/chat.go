package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/jholhewres/relayclaw/pkg/relayclaw/assistant"
	"github.com/jholhewres/relayclaw/pkg/relayclaw/config"
	"github.com/jholhewres/relayclaw/pkg/relayclaw/sessions"
)

// cliChatID is the chat identifier of terminal conversations. It can never
// collide with a numeric Telegram chat ID.
const cliChatID = "cli"

// newChatCmd creates the `relayclaw chat` command for talking to the
// assistant from a terminal.
func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the assistant from the terminal",
		Long: `Send one message to the assistant, or start an interactive session
when no message is given. Terminal conversations use the same session
store as Telegram under the key cli:<user>.

Examples:
  relayclaw chat "Hello there"
  relayclaw chat            # interactive mode
  relayclaw chat --ephemeral`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}

	cmd.Flags().StringP("user", "u", "", "participant name for the session key (default: OS user)")
	cmd.Flags().Bool("ephemeral", false, "keep the session in memory only")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.ValidateAssistant(); err != nil {
		return err
	}

	if ephemeral, _ := cmd.Flags().GetBool("ephemeral"); ephemeral {
		cfg.Sessions.Backend = config.SessionsMemory
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	driver := newDriver(cfg, store, cfg.Sessions.SerializePerKey, logger)
	name, _ := cmd.Flags().GetString("user")
	key := sessions.Key{ChatID: cliChatID, UserID: chatUser(name)}

	if len(args) > 0 {
		reply, err := driver.Converse(ctx, key, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	}
	return chatLoop(ctx, cmd.OutOrStdout(), driver, key)
}

// chatLoop runs the interactive REPL until EOF or "/exit".
func chatLoop(ctx context.Context, out io.Writer, driver *assistant.Driver, key sessions.Key) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("starting prompt: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(out, "Chatting as %s. Type /exit to quit.\n", key)
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		}

		reply, err := driver.Converse(ctx, key, line)
		if err != nil {
			fmt.Fprintf(out, "[error] %v\n", err)
			continue
		}
		fmt.Fprintf(out, "assistant> %s\n\n", reply)
	}
}

// chatUser picks the participant name for terminal sessions.
func chatUser(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "local"
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".relayclaw_history")
}
