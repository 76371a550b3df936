package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/artpar/paycore/domain/billing"
	"github.com/artpar/paycore/ports"
	"github.com/rs/zerolog"
)

// CouponService creates coupons and maintains their redeem-by marker.
type CouponService struct {
	processor ports.Coupons
	currency  string
	logger    zerolog.Logger
}

// NewCouponService creates a new coupon service.
func NewCouponService(processor ports.Coupons, money billing.Money, logger zerolog.Logger) *CouponService {
	return &CouponService{
		processor: processor,
		currency:  money.Currency,
		logger:    logger,
	}
}

// Create passes the coupon definition through to the processor.
// Amount-off coupons without a currency get the settlement currency.
func (s *CouponService) Create(ctx context.Context, spec billing.CouponSpec) (billing.CouponRef, error) {
	if spec.AmountOff > 0 && spec.Currency == "" {
		spec.Currency = s.currency
	}

	c, err := s.processor.CreateCoupon(ctx, spec)
	if err != nil {
		return billing.CouponRef{}, fmt.Errorf("create coupon %s: %w", spec.ID, err)
	}

	s.logger.Info().Str("coupon_id", c.ID).Msg("coupon created")
	return c, nil
}

// UpdateRedeemBy stores epoch in the coupon's redeem_by metadata.
// Other metadata keys are left untouched.
func (s *CouponService) UpdateRedeemBy(ctx context.Context, id string, epoch int64) (billing.CouponRef, error) {
	const op = "update_redeem_by"

	if strings.TrimSpace(id) == "" {
		return billing.CouponRef{}, billing.Validationf(op, "coupon id is required")
	}
	if epoch <= 0 {
		return billing.CouponRef{}, billing.Validationf(op, "redeem_by must be a unix timestamp, got %d", epoch)
	}

	if _, err := s.processor.GetCoupon(ctx, id); err != nil {
		return billing.CouponRef{}, fmt.Errorf("update coupon %s: %w", id, err)
	}
	c, err := s.processor.UpdateCouponMetadata(ctx, id, map[string]string{
		billing.MetadataRedeemBy: strconv.FormatInt(epoch, 10),
	})
	if err != nil {
		return billing.CouponRef{}, fmt.Errorf("update coupon %s: %w", id, err)
	}

	s.logger.Info().
		Str("coupon_id", id).
		Int64("redeem_by", epoch).
		Msg("coupon redeem_by updated")
	return c, nil
}
