package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/leapstack-labs/dbconn/pkg/credentials"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// NewSecretCommand creates the secret command group.
func NewSecretCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage passwords in the credential store",
		Long: `Store or delete the password behind a profile's credential reference.

Secrets go to the first writable store in the configured chain, usually
the OS keyring.`,
	}
	cmd.AddCommand(newSecretSetCommand(), newSecretDeleteCommand())
	return cmd
}

func writableStore(cmdCtx *CommandContext) (credentials.Writer, error) {
	r, err := cmdCtx.Credentials()
	if err != nil {
		return nil, err
	}
	w, ok := r.(credentials.Writer)
	if !ok {
		return nil, fmt.Errorf("credential store %q is read-only", cmdCtx.Cfg.Credentials.Store)
	}
	return w, nil
}

func newSecretSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <ref>",
		Short: "Store a password (prompted, or read from stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			w, err := writableStore(cmdCtx)
			if err != nil {
				return err
			}

			var password string
			if isTerminal(os.Stdin) {
				_, _ = fmt.Fprintf(cmdCtx.ErrOut, "Password for %s: ", args[0])
				b, err := term.ReadPassword(int(os.Stdin.Fd()))
				_, _ = fmt.Fprintln(cmdCtx.ErrOut)
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				password = string(b)
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read password from stdin: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			if err := w.StorePassword(cmd.Context(), args[0], password); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmdCtx.Out, "stored %s\n", args[0])
			return nil
		},
	}
}

func newSecretDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <ref>",
		Short: "Delete a stored password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			w, err := writableStore(cmdCtx)
			if err != nil {
				return err
			}
			if err := w.DeletePassword(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmdCtx.Out, "deleted %s\n", args[0])
			return nil
		},
	}
}
