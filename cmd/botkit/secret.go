package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/keepmind9/botkit/internal/keychain"
	"github.com/spf13/cobra"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage credentials in the system keychain",
	Long: `Store and remove bot credentials in the system keychain.

Config values of the form "keyring:<account>" are resolved from the
keychain when botkit starts.`,
}

var secretSetCmd = &cobra.Command{
	Use:   "set <account>",
	Short: "Store a secret read from stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := readSecret(bufio.NewReader(cmd.InOrStdin()))
		if err != nil {
			return err
		}
		if err := keychain.Set(args[0], value); err != nil {
			return fmt.Errorf("store secret %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Stored %s%s\n", keychain.RefPrefix, args[0])
		return nil
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:   "delete <account>",
	Short: "Remove a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := keychain.Delete(args[0]); err != nil {
			return fmt.Errorf("delete secret %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", args[0])
		return nil
	},
}

// readSecret reads one line, trimming the trailing newline
func readSecret(r *bufio.Reader) (string, error) {
	if fi, err := os.Stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		fmt.Fprint(os.Stderr, "Secret: ")
	}
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read secret: %w", err)
	}
	value := strings.TrimRight(line, "\r\n")
	if value == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}
	return value, nil
}

func init() {
	secretCmd.AddCommand(secretSetCmd)
	secretCmd.AddCommand(secretDeleteCmd)
}
