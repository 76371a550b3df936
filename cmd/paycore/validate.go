package main

import (
	"fmt"
	"os"

	"github.com/artpar/paycore/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the paycore configuration file.

Checks:
  - YAML syntax is valid
  - Processor mode and credentials are consistent
  - Currency, multiplier and timezone are usable
  - Catalog products and plans are well formed

Examples:
  paycore validate
  paycore validate --config /etc/paycore/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Fprintf(out, "  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Fprintf(out, "  %s Config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)

	money := cfg.Billing.Money()
	fmt.Fprintf(out, "  %s Processor: %s\n", checkMark, cfg.Processor.Mode)
	fmt.Fprintf(out, "  %s Currency: %s (x%d)\n", checkMark, money.Currency, money.Multiplier)
	fmt.Fprintf(out, "  %s Database: %s (%s)\n", checkMark, cfg.Database.DSN, cfg.Database.Driver)
	fmt.Fprintf(out, "  %s Catalog: %d products, %d plans\n", checkMark, len(cfg.Catalog.Products), len(cfg.Catalog.Plans))

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
