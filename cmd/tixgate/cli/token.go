package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tixgate/tixgate/internal/service"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage admin bearer tokens",
		Long:  "Issue short-lived admin bearer tokens for the key-management API.",
	}

	cmd.AddCommand(newTokenIssueCmd())

	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var (
		email string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue an admin bearer token",
		Example: `  tixgate token issue --email ops@example.com
  tixgate token issue --email ops@example.com --ttl 15m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenIssue(email, ttl)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Admin email to embed in the token (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runTokenIssue(email string, ttl time.Duration) error {
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address: %q", email)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		// Prompt rather than fail: operators often keep the JWT secret out
		// of local config files entirely.
		fmt.Fprint(os.Stderr, "JWT secret: ")
		secretBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("read secret: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		secret = string(secretBytes)
	}
	if secret == "" {
		return errors.New("auth.jwt_secret is not configured")
	}

	token, err := service.NewAuthService(secret).IssueToken(email, ttl)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	fmt.Println(token)
	return nil
}
