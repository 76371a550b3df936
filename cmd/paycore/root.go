package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/artpar/paycore/bootstrap"
	"github.com/artpar/paycore/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile    string
	cliTimeout time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "paycore",
	Short: "Billing core for a hosted payment processor",
	Long: `paycore provisions catalog products and plans, customers, payment
sources, subscriptions, coupons and one-off charges on a payment processor,
and reads settled ledger entries back.

Quick start:
  paycore serve            # Start the billing API
  paycore validate         # Validate configuration

Operations:
  paycore plans ensure     # Provision a plan
  paycore customers ensure # Provision a customer
  paycore charges create   # Submit a one-off charge
  paycore ledger balance   # List settled charges`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "paycore.yaml", "config file path")
	rootCmd.PersistentFlags().DurationVar(&cliTimeout, "timeout", time.Minute, "timeout for a single command")
}

// openApp loads configuration and wires the application without starting
// the HTTP server. Logs go to stderr so command output stays parseable.
func openApp() (*bootstrap.App, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return bootstrap.NewWithOptions(cfg, bootstrap.Options{LogOutput: os.Stderr})
}

// withApp runs fn with a wired application and a command-scoped context.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *bootstrap.App) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Shutdown()

	ctx, cancel := context.WithTimeout(cmd.Context(), cliTimeout)
	defer cancel()

	return fn(ctx, a)
}
