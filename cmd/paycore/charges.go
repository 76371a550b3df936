package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/artpar/paycore/bootstrap"
	"github.com/artpar/paycore/domain/billing"
	"github.com/artpar/paycore/ports"
	"github.com/spf13/cobra"
)

var chargesCmd = &cobra.Command{
	Use:   "charges",
	Short: "Submit and list one-off charges",
	Long: `Submit one-off charges against a local customer.

Amounts are in minor units. Pass --idempotency-key when retrying a charge
so the processor returns the first result instead of charging twice.

Examples:
  paycore charges create 42 --amount=1500 --description="Invoice 7" --descriptor="ACME"
  paycore charges create 42 --amount=1500 --source=src_123 --idempotency-key=invoice-7
  paycore charges list 42`,
}

var chargesCreateCmd = &cobra.Command{
	Use:   "create <local-id>",
	Short: "Charge a customer",
	Args:  cobra.ExactArgs(1),
	RunE:  runChargesCreate,
}

var chargesListCmd = &cobra.Command{
	Use:   "list <local-id>",
	Short: "List charges logged for a customer",
	Args:  cobra.ExactArgs(1),
	RunE:  runChargesList,
}

var (
	chargeAmount      int64
	chargeSource      string
	chargeDescription string
	chargeDescriptor  string
	chargeKey         string
	chargeLimit       int
)

func init() {
	rootCmd.AddCommand(chargesCmd)

	chargesCmd.AddCommand(chargesCreateCmd)
	chargesCmd.AddCommand(chargesListCmd)

	chargesCreateCmd.Flags().Int64Var(&chargeAmount, "amount", 0, "amount in minor units (required)")
	chargesCreateCmd.Flags().StringVar(&chargeSource, "source", "", "payment source ID (default: the customer's default)")
	chargesCreateCmd.Flags().StringVar(&chargeDescription, "description", "", "charge description")
	chargesCreateCmd.Flags().StringVar(&chargeDescriptor, "descriptor", "", "statement descriptor (truncated to 22 characters)")
	chargesCreateCmd.Flags().StringVar(&chargeKey, "idempotency-key", "", "idempotency key")
	chargesCreateCmd.MarkFlagRequired("amount")

	chargesListCmd.Flags().IntVar(&chargeLimit, "limit", 20, "maximum number of charges")
}

func runChargesCreate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
		rec, err := provisionedRecord(ctx, a, args[0])
		if err != nil {
			return err
		}

		var ch billing.ChargeRef
		if chargeSource != "" {
			ch, err = a.Charges.ChargeBySource(ctx, rec.RemoteID, chargeSource, chargeAmount, chargeDescription, chargeDescriptor, chargeKey)
		} else {
			ch, err = a.Charges.ChargeByCustomer(ctx, rec.RemoteID, chargeAmount, chargeDescription, chargeDescriptor, chargeKey)
		}
		if err != nil {
			var be *billing.Error
			if errors.As(err, &be) && be.Kind == billing.KindDeclined && be.DeclineCode != "" {
				return fmt.Errorf("charge declined (%s): %w", be.DeclineCode, err)
			}
			return fmt.Errorf("failed to charge: %w", err)
		}

		currency := a.Config.Billing.Money().Currency
		if err := a.ChargeLog.Record(ctx, ports.ChargeRecord{
			LocalID:   rec.LocalID,
			Charge:    ch,
			Currency:  currency,
			CreatedAt: time.Now(),
		}); err != nil {
			a.Logger.Error().Err(err).Str("charge_id", ch.ID).Msg("failed to log charge")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Charge %s: %d %s (%s)\n", ch.ID, ch.AmountMinorUnits, currency, ch.Status)
		return nil
	})
}

func runChargesList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
		records, err := a.ChargeLog.ListByCustomer(ctx, args[0], chargeLimit)
		if err != nil {
			return fmt.Errorf("failed to list charges: %w", err)
		}
		if len(records) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No charges logged for %s.\n", args[0])
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tAMOUNT\tCURRENCY\tSTATUS\tDESCRIPTOR\tCREATED")
		fmt.Fprintln(w, "--\t------\t--------\t------\t----------\t-------")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
				r.Charge.ID, r.Charge.AmountMinorUnits, r.Currency, r.Charge.Status,
				r.Charge.StatementDescriptor, r.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		w.Flush()
		return nil
	})
}
