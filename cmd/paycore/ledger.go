package main

import (
	"context"
	"fmt"
	"io"
	"iter"
	"text/tabwriter"
	"time"

	"github.com/artpar/paycore/bootstrap"
	"github.com/artpar/paycore/domain/billing"
	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Read settled charges from the processor balance",
	Long: `Read settled charge transactions from the processor balance.

Dates are dd/mm/yyyy in the configured billing timezone.

Examples:
  paycore ledger balance --since=01/03/2024
  paycore ledger payouts --from=01/03/2024 --to=31/03/2024`,
}

var ledgerBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "List charges created after midnight of --since",
	RunE:  runLedgerBalance,
}

var ledgerPayoutsCmd = &cobra.Command{
	Use:   "payouts",
	Short: "List charges created between --from and --to, inclusive",
	RunE:  runLedgerPayouts,
}

var (
	ledgerSince string
	ledgerFrom  string
	ledgerTo    string
)

func init() {
	rootCmd.AddCommand(ledgerCmd)

	ledgerCmd.AddCommand(ledgerBalanceCmd)
	ledgerCmd.AddCommand(ledgerPayoutsCmd)

	ledgerBalanceCmd.Flags().StringVar(&ledgerSince, "since", "", "start date, dd/mm/yyyy (required)")
	ledgerBalanceCmd.MarkFlagRequired("since")

	ledgerPayoutsCmd.Flags().StringVar(&ledgerFrom, "from", "", "start date, dd/mm/yyyy (required)")
	ledgerPayoutsCmd.Flags().StringVar(&ledgerTo, "to", "", "end date, dd/mm/yyyy (required)")
	ledgerPayoutsCmd.MarkFlagRequired("from")
	ledgerPayoutsCmd.MarkFlagRequired("to")
}

func runLedgerBalance(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
		seq, err := a.Ledger.ListBalanceSince(ctx, ledgerSince)
		if err != nil {
			return err
		}
		return printLedger(cmd.OutOrStdout(), seq, func(e billing.BalanceEntry) billing.LedgerEntry {
			return billing.LedgerEntry(e)
		})
	})
}

func runLedgerPayouts(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
		seq, err := a.Ledger.ListPayoutsBetween(ctx, ledgerFrom, ledgerTo)
		if err != nil {
			return err
		}
		return printLedger(cmd.OutOrStdout(), seq, func(e billing.PayoutEntry) billing.LedgerEntry {
			return billing.LedgerEntry(e)
		})
	})
}

// printLedger streams entries as they arrive from the processor.
func printLedger[E any](out io.Writer, seq iter.Seq2[E, error], entry func(E) billing.LedgerEntry) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tTYPE\tAMOUNT\tCURRENCY")
	fmt.Fprintln(w, "--\t-------\t----\t------\t--------")

	var total int64
	n := 0
	for e, err := range seq {
		if err != nil {
			w.Flush()
			return fmt.Errorf("failed to list ledger: %w", err)
		}
		le := entry(e)
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			le.ID, time.Unix(le.CreatedEpoch, 0).Format("2006-01-02 15:04:05"), le.Type, le.AmountMinorUnits, le.Currency)
		total += le.AmountMinorUnits
		n++
	}
	w.Flush()

	fmt.Fprintf(out, "\n%d entries, total %d\n", n, total)
	return nil
}
