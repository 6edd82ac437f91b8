package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"partialdump/internal/secret"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage source passwords in the macOS Keychain",
	Long: `Store source passwords in the macOS Keychain so partialdump.yaml can refer
to them with password_secret: keychain:<key> instead of a literal password.`,
}

var secretSetCmd = &cobra.Command{
	Use:   "set <key>",
	Short: "Store a password read from stdin",
	Example: `  # Store the production password and reference it from the config
  printf '%s' "$PROD_PW" | partialdump secret set prod-db
  # partialdump.yaml:  source: { password_secret: keychain:prod-db }`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := readSecretValue(cmd.InOrStdin())
		if err != nil {
			return GeneralError("reading secret from stdin", err)
		}
		if err := secret.NewKeychainStore().Set(args[0], []byte(value)); err != nil {
			return GeneralError("storing secret", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored keychain:%s\n", args[0])
		return nil
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a stored password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := secret.NewKeychainStore().Delete(args[0]); err != nil {
			return GeneralError("deleting secret", err)
		}
		return nil
	},
}

// readSecretValue returns the first line of r without its line ending.
func readSecretValue(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty secret")
	}
	return line, nil
}

func init() {
	secretCmd.AddCommand(secretSetCmd)
	secretCmd.AddCommand(secretDeleteCmd)
}
