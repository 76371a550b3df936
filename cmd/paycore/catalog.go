package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/artpar/paycore/bootstrap"
	"github.com/artpar/paycore/domain/billing"
	"github.com/spf13/cobra"
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "Manage catalog products",
	Long: `Manage catalog products on the processor.

Products are keyed by a stable id you choose. Ensuring a product that
already exists does nothing.

Examples:
  paycore products ensure pro --name="Pro"`,
}

var productsEnsureCmd = &cobra.Command{
	Use:   "ensure <product-id>",
	Short: "Create a product if it does not exist",
	Args:  cobra.ExactArgs(1),
	RunE:  runProductsEnsure,
}

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Manage subscription plans",
	Long: `Manage recurring plans on the processor.

Plans are keyed by a stable id you choose. Amounts are given in major
units and converted with the configured multiplier.

Examples:
  paycore plans ensure pro-m --name="Pro monthly" --amount=9.99 --interval=month --product=pro
  paycore plans delete pro-m
  paycore plans sync`,
}

var plansEnsureCmd = &cobra.Command{
	Use:   "ensure <plan-id>",
	Short: "Create a plan if it does not exist",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlansEnsure,
}

var plansDeleteCmd = &cobra.Command{
	Use:   "delete <plan-id>",
	Short: "Delete a plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlansDelete,
}

var plansSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Provision every product and plan declared in the config",
	RunE:  runPlansSync,
}

var (
	productName   string
	planName      string
	planAmount    float64
	planInterval  string
	planProductID string
)

func init() {
	rootCmd.AddCommand(productsCmd)
	rootCmd.AddCommand(plansCmd)

	productsCmd.AddCommand(productsEnsureCmd)
	plansCmd.AddCommand(plansEnsureCmd)
	plansCmd.AddCommand(plansDeleteCmd)
	plansCmd.AddCommand(plansSyncCmd)

	productsEnsureCmd.Flags().StringVar(&productName, "name", "", "product name (required)")
	productsEnsureCmd.MarkFlagRequired("name")

	plansEnsureCmd.Flags().StringVar(&planName, "name", "", "plan name")
	plansEnsureCmd.Flags().Float64Var(&planAmount, "amount", 0, "price per interval in major units (required)")
	plansEnsureCmd.Flags().StringVar(&planInterval, "interval", "month", "billing interval: day, week, month, year")
	plansEnsureCmd.Flags().StringVar(&planProductID, "product", "", "product ID (required)")
	plansEnsureCmd.MarkFlagRequired("amount")
	plansEnsureCmd.MarkFlagRequired("product")
}

func runProductsEnsure(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
		p, err := a.Provisioner.EnsureProduct(ctx, billing.ProductRef{ID: args[0], Name: productName})
		if err != nil {
			return fmt.Errorf("failed to ensure product: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Product %s (%s) is provisioned.\n", p.ID, p.Name)
		return nil
	})
}

func runPlansEnsure(cmd *cobra.Command, args []string) error {
	interval, err := billing.ParseInterval(planInterval)
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
		p, err := a.Provisioner.EnsurePlan(ctx, billing.PlanSpec{
			ID:        args[0],
			Name:      planName,
			Amount:    planAmount,
			Interval:  interval,
			ProductID: planProductID,
		})
		if err != nil {
			return fmt.Errorf("failed to ensure plan: %w", err)
		}
		printPlans(cmd.OutOrStdout(), []billing.PlanRef{p})
		return nil
	})
}

func runPlansDelete(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
		if err := a.Provisioner.DeletePlan(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to delete plan: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Plan %s deleted.\n", args[0])
		return nil
	})
}

func runPlansSync(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
		cat := a.Config.Catalog
		if len(cat.Products) == 0 && len(cat.Plans) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No catalog declared in the config.")
			return nil
		}

		plans, err := a.Provisioner.EnsureCatalog(ctx, cat.ProductRefs(), cat.PlanSpecs())
		if err != nil {
			return fmt.Errorf("failed to sync catalog: %w", err)
		}
		printPlans(cmd.OutOrStdout(), plans)
		return nil
	})
}

func printPlans(out io.Writer, plans []billing.PlanRef) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tAMOUNT\tCURRENCY\tINTERVAL\tPRODUCT")
	fmt.Fprintln(w, "--\t----\t------\t--------\t--------\t-------")
	for _, p := range plans {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			p.ID, p.Name, p.AmountMinorUnits, p.Currency, p.Interval, p.ProductID)
	}
	w.Flush()
}
