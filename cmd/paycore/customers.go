package main

import (
	"context"
	"fmt"

	"github.com/artpar/paycore/bootstrap"
	"github.com/artpar/paycore/ports"
	"github.com/spf13/cobra"
)

var customersCmd = &cobra.Command{
	Use:   "customers",
	Short: "Manage processor customers",
	Long: `Manage processor customers for local customer records.

Customers are addressed by their local id. The remote customer id is
stored on the local record once provisioned.

Examples:
  paycore customers ensure 42 --email=ada@example.com
  paycore customers card 42 --token=tok_visa
  paycore customers sepa 42 --iban=DE89370400440532013000 --owner="Ada Lovelace"
  paycore customers show 42`,
}

var customersEnsureCmd = &cobra.Command{
	Use:   "ensure <local-id>",
	Short: "Create the processor customer if it does not exist",
	Args:  cobra.ExactArgs(1),
	RunE:  runCustomersEnsure,
}

var customersCardCmd = &cobra.Command{
	Use:   "card <local-id>",
	Short: "Set a card token as the default payment method",
	Args:  cobra.ExactArgs(1),
	RunE:  runCustomersCard,
}

var customersSepaCmd = &cobra.Command{
	Use:   "sepa <local-id>",
	Short: "Set a SEPA debit source as the default payment method",
	Args:  cobra.ExactArgs(1),
	RunE:  runCustomersSepa,
}

var customersShowCmd = &cobra.Command{
	Use:   "show <local-id>",
	Short: "Show a local customer record",
	Args:  cobra.ExactArgs(1),
	RunE:  runCustomersShow,
}

var (
	customerEmail  string
	customerCoupon string
	customerToken  string
	customerIBAN   string
	customerOwner  string
)

func init() {
	rootCmd.AddCommand(customersCmd)

	customersCmd.AddCommand(customersEnsureCmd)
	customersCmd.AddCommand(customersCardCmd)
	customersCmd.AddCommand(customersSepaCmd)
	customersCmd.AddCommand(customersShowCmd)

	customersEnsureCmd.Flags().StringVar(&customerEmail, "email", "", "customer email (required)")
	customersEnsureCmd.Flags().StringVar(&customerCoupon, "coupon", "", "coupon applied at creation")
	customersEnsureCmd.MarkFlagRequired("email")

	customersCardCmd.Flags().StringVar(&customerToken, "token", "", "card token (required)")
	customersCardCmd.MarkFlagRequired("token")

	customersSepaCmd.Flags().StringVar(&customerIBAN, "iban", "", "account IBAN (required)")
	customersSepaCmd.Flags().StringVar(&customerOwner, "owner", "", "account owner name (required)")
	customersSepaCmd.MarkFlagRequired("iban")
	customersSepaCmd.MarkFlagRequired("owner")
}

func runCustomersEnsure(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
		localID := args[0]
		if err := a.Customers.Upsert(ctx, ports.CustomerRecord{LocalID: localID, Email: customerEmail}); err != nil {
			return fmt.Errorf("failed to store customer: %w", err)
		}
		rec, err := a.Customers.Get(ctx, localID)
		if err != nil {
			return err
		}

		remoteID, err := a.Provisioner.EnsureCustomer(ctx, rec.Ref(), customerCoupon)
		if err != nil {
			return fmt.Errorf("failed to ensure customer: %w", err)
		}
		if err := a.Customers.SetRemoteID(ctx, localID, remoteID); err != nil {
			return fmt.Errorf("failed to bind customer %s: %w", remoteID, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Customer %s is provisioned as %s.\n", localID, remoteID)
		return nil
	})
}

func runCustomersCard(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
		rec, err := a.Customers.Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("customer not found: %s", args[0])
		}
		if err := a.Provisioner.UpdateCard(ctx, rec.Ref(), customerToken); err != nil {
			return fmt.Errorf("failed to update card: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Card updated for %s.\n", args[0])
		return nil
	})
}

func runCustomersSepa(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
		rec, err := a.Customers.Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("customer not found: %s", args[0])
		}
		src, err := a.Provisioner.UpdateSource(ctx, rec.Ref(), customerIBAN, customerOwner)
		if err != nil {
			return fmt.Errorf("failed to update source: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Source %s is now the default for %s.\n", src.ID, args[0])
		return nil
	})
}

func runCustomersShow(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
		rec, err := a.Customers.Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("customer not found: %s", args[0])
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Local ID:      %s\n", rec.LocalID)
		fmt.Fprintf(out, "Email:         %s\n", rec.Email)
		if rec.RemoteID != "" {
			fmt.Fprintf(out, "Customer:      %s\n", rec.RemoteID)
		} else {
			fmt.Fprintf(out, "Customer:      (not provisioned)\n")
		}
		if rec.SubscriptionID != "" {
			fmt.Fprintf(out, "Subscription:  %s\n", rec.SubscriptionID)
		}
		fmt.Fprintf(out, "Created:       %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
		return nil
	})
}

// provisionedRecord resolves a local customer that already has a remote id.
func provisionedRecord(ctx context.Context, a *bootstrap.App, localID string) (ports.CustomerRecord, error) {
	rec, err := a.Customers.Get(ctx, localID)
	if err != nil {
		return rec, fmt.Errorf("customer not found: %s", localID)
	}
	if !rec.Ref().Provisioned() {
		return rec, fmt.Errorf("customer %s is not provisioned; run 'paycore customers ensure %s' first", localID, localID)
	}
	return rec, nil
}
