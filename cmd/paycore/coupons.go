package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/artpar/paycore/bootstrap"
	"github.com/artpar/paycore/domain/billing"
	"github.com/spf13/cobra"
)

var couponsCmd = &cobra.Command{
	Use:   "coupons",
	Short: "Manage discount coupons",
	Long: `Manage discount coupons on the processor.

Examples:
  paycore coupons create --id=SPRING --percent-off=20 --duration=once
  paycore coupons create --id=TENOFF --amount-off=1000 --duration=repeating --months=3
  paycore coupons redeem-by SPRING --at=2024-06-01`,
}

var couponsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a coupon",
	RunE:  runCouponsCreate,
}

var couponsRedeemByCmd = &cobra.Command{
	Use:   "redeem-by <coupon-id>",
	Short: "Set the redeem-by metadata of a coupon",
	Args:  cobra.ExactArgs(1),
	RunE:  runCouponsRedeemBy,
}

var (
	couponID         string
	couponName       string
	couponPercentOff float64
	couponAmountOff  int64
	couponCurrency   string
	couponDuration   string
	couponMonths     int64
	couponMaxRedeem  int64
	couponRedeemAt   string
)

func init() {
	rootCmd.AddCommand(couponsCmd)

	couponsCmd.AddCommand(couponsCreateCmd)
	couponsCmd.AddCommand(couponsRedeemByCmd)

	couponsCreateCmd.Flags().StringVar(&couponID, "id", "", "coupon ID (default: generated by the processor)")
	couponsCreateCmd.Flags().StringVar(&couponName, "name", "", "coupon name")
	couponsCreateCmd.Flags().Float64Var(&couponPercentOff, "percent-off", 0, "percentage discount")
	couponsCreateCmd.Flags().Int64Var(&couponAmountOff, "amount-off", 0, "fixed discount in minor units")
	couponsCreateCmd.Flags().StringVar(&couponCurrency, "currency", "", "currency of --amount-off (default: settlement currency)")
	couponsCreateCmd.Flags().StringVar(&couponDuration, "duration", "once", "once, repeating or forever")
	couponsCreateCmd.Flags().Int64Var(&couponMonths, "months", 0, "duration in months for repeating coupons")
	couponsCreateCmd.Flags().Int64Var(&couponMaxRedeem, "max-redemptions", 0, "maximum number of redemptions")

	couponsRedeemByCmd.Flags().StringVar(&couponRedeemAt, "at", "", "redeem-by date (YYYY-MM-DD) or unix epoch (required)")
	couponsRedeemByCmd.MarkFlagRequired("at")
}

func runCouponsCreate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
		c, err := a.Coupons.Create(ctx, billing.CouponSpec{
			ID:               couponID,
			Name:             couponName,
			PercentOff:       couponPercentOff,
			AmountOff:        couponAmountOff,
			Currency:         couponCurrency,
			Duration:         couponDuration,
			DurationInMonths: couponMonths,
			MaxRedemptions:   couponMaxRedeem,
		})
		if err != nil {
			return fmt.Errorf("failed to create coupon: %w", err)
		}
		printCoupon(cmd, c)
		return nil
	})
}

func runCouponsRedeemBy(cmd *cobra.Command, args []string) error {
	epoch, err := parseEpoch(couponRedeemAt)
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
		c, err := a.Coupons.UpdateRedeemBy(ctx, args[0], epoch)
		if err != nil {
			return fmt.Errorf("failed to update coupon: %w", err)
		}
		printCoupon(cmd, c)
		return nil
	})
}

// parseEpoch accepts a unix epoch or a YYYY-MM-DD date in UTC.
func parseEpoch(s string) (int64, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.Unix(), nil
	}
	epoch, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: want YYYY-MM-DD or a unix epoch", s)
	}
	return epoch, nil
}

func printCoupon(cmd *cobra.Command, c billing.CouponRef) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Coupon %s\n", c.ID)

	keys := make([]string, 0, len(c.Metadata))
	for k := range c.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %s: %s\n", k, c.Metadata[k])
	}
}
