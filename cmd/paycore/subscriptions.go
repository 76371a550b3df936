package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/artpar/paycore/bootstrap"
	"github.com/artpar/paycore/domain/billing"
	"github.com/spf13/cobra"
)

var subscriptionsCmd = &cobra.Command{
	Use:   "subscriptions",
	Short: "Manage customer subscriptions",
	Long: `Manage the subscription of a local customer.

Each local customer has at most one current subscription. Changing its
plan keeps the subscription id, coupon and trial.

Examples:
  paycore subscriptions create 42 --plan=pro-m
  paycore subscriptions create 42 --plan=pro-m --trial-days=14 --coupon=SPRING
  paycore subscriptions change-plan 42 --plan=pro-y
  paycore subscriptions cancel 42`,
}

var subscriptionsCreateCmd = &cobra.Command{
	Use:   "create <local-id>",
	Short: "Subscribe a customer to a plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubscriptionsCreate,
}

var subscriptionsChangePlanCmd = &cobra.Command{
	Use:   "change-plan <local-id>",
	Short: "Move the customer's subscription to another plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubscriptionsChangePlan,
}

var subscriptionsCancelCmd = &cobra.Command{
	Use:   "cancel <local-id>",
	Short: "Cancel the customer's subscription",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubscriptionsCancel,
}

var (
	subPlanID    string
	subQuantity  int64
	subCoupon    string
	subTrialDays int
)

func init() {
	rootCmd.AddCommand(subscriptionsCmd)

	subscriptionsCmd.AddCommand(subscriptionsCreateCmd)
	subscriptionsCmd.AddCommand(subscriptionsChangePlanCmd)
	subscriptionsCmd.AddCommand(subscriptionsCancelCmd)

	subscriptionsCreateCmd.Flags().StringVar(&subPlanID, "plan", "", "plan ID (required)")
	subscriptionsCreateCmd.Flags().Int64Var(&subQuantity, "quantity", 1, "quantity")
	subscriptionsCreateCmd.Flags().StringVar(&subCoupon, "coupon", "", "coupon ID")
	subscriptionsCreateCmd.Flags().IntVar(&subTrialDays, "trial-days", 0, "trial length in days")
	subscriptionsCreateCmd.MarkFlagRequired("plan")

	subscriptionsChangePlanCmd.Flags().StringVar(&subPlanID, "plan", "", "new plan ID (required)")
	subscriptionsChangePlanCmd.MarkFlagRequired("plan")
}

func runSubscriptionsCreate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
		rec, err := provisionedRecord(ctx, a, args[0])
		if err != nil {
			return err
		}
		if rec.SubscriptionID != "" {
			return fmt.Errorf("customer %s already has subscription %s; use change-plan", rec.LocalID, rec.SubscriptionID)
		}

		req := billing.SubscriptionRequest{
			CustomerID: rec.RemoteID,
			PlanID:     subPlanID,
			Quantity:   subQuantity,
			CouponID:   subCoupon,
		}
		if subTrialDays > 0 {
			req.TrialEndEpoch = time.Now().AddDate(0, 0, subTrialDays).Unix()
		}

		sub, err := a.Subscriptions.Create(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to create subscription: %w", err)
		}
		if err := a.Customers.SetSubscriptionID(ctx, rec.LocalID, sub.ID); err != nil {
			return fmt.Errorf("subscription %s created but not recorded: %w", sub.ID, err)
		}
		printSubscription(cmd.OutOrStdout(), sub)
		return nil
	})
}

func runSubscriptionsChangePlan(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
		rec, err := provisionedRecord(ctx, a, args[0])
		if err != nil {
			return err
		}
		if rec.SubscriptionID == "" {
			return fmt.Errorf("customer %s has no subscription", rec.LocalID)
		}

		sub, err := a.Subscriptions.ChangePlan(ctx, rec.SubscriptionID, subPlanID)
		if err != nil {
			return fmt.Errorf("failed to change plan: %w", err)
		}
		printSubscription(cmd.OutOrStdout(), sub)
		return nil
	})
}

func runSubscriptionsCancel(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
		rec, err := provisionedRecord(ctx, a, args[0])
		if err != nil {
			return err
		}
		if rec.SubscriptionID == "" {
			return fmt.Errorf("customer %s has no subscription", rec.LocalID)
		}

		sub, err := a.Subscriptions.Cancel(ctx, rec.SubscriptionID)
		if err != nil {
			return fmt.Errorf("failed to cancel subscription: %w", err)
		}
		if err := a.Customers.SetSubscriptionID(ctx, rec.LocalID, ""); err != nil {
			return err
		}
		printSubscription(cmd.OutOrStdout(), sub)
		return nil
	})
}

func printSubscription(out io.Writer, sub billing.SubscriptionRef) {
	fmt.Fprintf(out, "ID:        %s\n", sub.ID)
	fmt.Fprintf(out, "Customer:  %s\n", sub.CustomerID)
	fmt.Fprintf(out, "Plan:      %s\n", sub.PlanID)
	fmt.Fprintf(out, "Quantity:  %d\n", sub.Quantity)
	if sub.CouponID != "" {
		fmt.Fprintf(out, "Coupon:    %s\n", sub.CouponID)
	}
	if sub.TrialEndEpoch > 0 {
		fmt.Fprintf(out, "Trial end: %s\n", time.Unix(sub.TrialEndEpoch, 0).Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(out, "Status:    %s\n", sub.Status)
}
