package main

import (
	"fmt"
	"time"

	"github.com/artpar/paycore/adapters/auth"
	"github.com/artpar/paycore/config"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token <service>",
	Short: "Issue an API bearer token",
	Long: `Issue a bearer token for the billing API, signed with server.auth_secret.

Read tokens may call GET endpoints; write tokens may call everything.

Examples:
  paycore token backoffice --write
  paycore token reporting --ttl=24h`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

var (
	tokenWrite bool
	tokenTTL   time.Duration
)

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().BoolVar(&tokenWrite, "write", false, "grant the write scope")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default: server.token_ttl)")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ttl := tokenTTL
	if ttl == 0 {
		ttl = cfg.Server.TokenTTL
	}
	svc, err := auth.NewTokenService(cfg.Server.AuthSecret, ttl)
	if err != nil {
		return fmt.Errorf("set server.auth_secret first: %w", err)
	}

	scope := auth.ScopeRead
	if tokenWrite {
		scope = auth.ScopeWrite
	}
	token, expiresAt, err := svc.GenerateToken(args[0], scope)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "scope %s, expires %s\n", scope, expiresAt.Format(time.RFC3339))
	return nil
}
