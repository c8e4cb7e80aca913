// Command hashsecret prints a bcrypt hash for AUTH_LOCAL_SECRET_HASH.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/session-bff/internal/auth"
)

var cost int

var rootCmd = &cobra.Command{
	Use:   "hashsecret [secret]",
	Short: "Hash a development secret for the local credential gate",
	Long: `Prints a bcrypt hash suitable for AUTH_LOCAL_SECRET_HASH.
When no argument is given the secret is read from the first line of stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHash,
}

func init() {
	rootCmd.Flags().IntVar(&cost, "cost", 12, "bcrypt cost factor")
}

func runHash(cmd *cobra.Command, args []string) error {
	secret := ""
	if len(args) == 1 {
		secret = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read secret: %w", err)
		}
		secret = strings.TrimRight(line, "\r\n")
	}
	if secret == "" {
		return errors.New("secret must not be empty")
	}

	hash, err := auth.HashSecret(secret, cost)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
