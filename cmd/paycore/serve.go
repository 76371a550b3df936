package main

import (
	"fmt"
	"os"

	"github.com/artpar/paycore/bootstrap"
	"github.com/artpar/paycore/config"
	"github.com/spf13/cobra"
)

var serveSyncCatalog bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the billing API server",
	Long: `Start the paycore billing API.

The server will:
  - Load configuration from paycore.yaml (or --config)
  - Or load configuration from PAYCORE_* environment variables
  - Open the local customer store
  - Provision the configured catalog when catalog.sync_on_start is set
  - Serve the billing API under /billing

Environment variables (for container deployments):
  PAYCORE_PROCESSOR_API_KEY  - Stripe secret key
  PAYCORE_PROCESSOR_MODE     - stripe or memory
  PAYCORE_BILLING_CURRENCY   - Settlement currency (default: eur)
  PAYCORE_DATABASE_DSN       - Database path (default: paycore.db)
  PAYCORE_SERVER_PORT        - Server port (default: 8080)
  PAYCORE_LOG_LEVEL          - Log level: debug, info, warn, error

Examples:
  paycore serve
  paycore serve --config /etc/paycore/config.yaml
  paycore serve --sync-catalog`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveSyncCatalog, "sync-catalog", false, "provision the configured catalog before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfgFile); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Running with environment variables (no config file)")
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if serveSyncCatalog {
		cfg.Catalog.SyncOnStart = true
	}

	a, err := bootstrap.New(cfg)
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return a.Run()
}
