package main

import (
	"context"
	"fmt"

	"github.com/artpar/paycore/bootstrap"
	"github.com/artpar/paycore/domain/billing"
	"github.com/spf13/cobra"
)

var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Create a hosted checkout session for a plan",
	Long: `Create a hosted checkout session for a single plan.

The payer is either a provisioned local customer (--customer) or an
e-mail address (--email).

Examples:
  paycore checkout --plan=pro-m --customer=42 --success-url=https://example.com/ok --cancel-url=https://example.com/cancel
  paycore checkout --plan=pro-m --email=ada@example.com --success-url=https://example.com/ok --cancel-url=https://example.com/cancel`,
	RunE: runCheckout,
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Mint reusable payment sources",
}

var sourcesSepaCmd = &cobra.Command{
	Use:   "sepa",
	Short: "Create a detached SEPA debit source",
	RunE:  runSourcesSepa,
}

var (
	checkoutPlan     string
	checkoutCustomer string
	checkoutEmail    string
	checkoutSuccess  string
	checkoutCancel   string

	sourceIBAN  string
	sourceOwner string
)

func init() {
	rootCmd.AddCommand(checkoutCmd)
	rootCmd.AddCommand(sourcesCmd)
	sourcesCmd.AddCommand(sourcesSepaCmd)

	checkoutCmd.Flags().StringVar(&checkoutPlan, "plan", "", "plan ID (required)")
	checkoutCmd.Flags().StringVar(&checkoutCustomer, "customer", "", "local customer ID")
	checkoutCmd.Flags().StringVar(&checkoutEmail, "email", "", "payer e-mail when no customer is given")
	checkoutCmd.Flags().StringVar(&checkoutSuccess, "success-url", "", "absolute success URL (required)")
	checkoutCmd.Flags().StringVar(&checkoutCancel, "cancel-url", "", "absolute cancel URL (required)")
	checkoutCmd.MarkFlagRequired("plan")
	checkoutCmd.MarkFlagRequired("success-url")
	checkoutCmd.MarkFlagRequired("cancel-url")

	sourcesSepaCmd.Flags().StringVar(&sourceIBAN, "iban", "", "account IBAN (required)")
	sourcesSepaCmd.Flags().StringVar(&sourceOwner, "owner", "", "account owner name (required)")
	sourcesSepaCmd.MarkFlagRequired("iban")
	sourcesSepaCmd.MarkFlagRequired("owner")
}

func runCheckout(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
		req := billing.CheckoutRequest{
			CustomerEmail: checkoutEmail,
			PlanID:        checkoutPlan,
			SuccessURL:    checkoutSuccess,
			CancelURL:     checkoutCancel,
		}
		if checkoutCustomer != "" {
			rec, err := provisionedRecord(ctx, a, checkoutCustomer)
			if err != nil {
				return err
			}
			req.CustomerID = rec.RemoteID
		}

		sess, err := a.Checkout.CreateSession(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to create checkout session: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s\n%s\n", sess.ID, sess.URL)
		return nil
	})
}

func runSourcesSepa(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
		src, err := a.Provisioner.CreatePaymentSourceByIBAN(ctx, sourceIBAN, sourceOwner)
		if err != nil {
			return fmt.Errorf("failed to create source: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Source %s (%s)\n", src.ID, src.Kind)
		return nil
	})
}
