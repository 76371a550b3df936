package payment

import (
	"context"

	"github.com/artpar/paycore/domain/billing"
	"github.com/stripe/stripe-go/v76"
)

// CreateCharge submits a one-off charge against the customer's default
// payment method, or against r.SourceID when set.
func (p *StripeProcessor) CreateCharge(ctx context.Context, r billing.ChargeRequest) (billing.ChargeRef, error) {
	const op = "create_charge"

	currency := r.Currency
	if currency == "" {
		currency = p.currency
	}

	ch, err := call(ctx, p, op, func() (*stripe.Charge, error) {
		params := &stripe.ChargeParams{
			Amount:   stripe.Int64(r.AmountMinorUnits),
			Currency: stripe.String(currency),
			Customer: stripe.String(r.CustomerID),
		}
		if r.Description != "" {
			params.Description = stripe.String(r.Description)
		}
		if r.StatementDescriptor != "" {
			params.StatementDescriptor = stripe.String(r.StatementDescriptor)
		}
		if r.SourceID != "" {
			if err := params.SetSource(r.SourceID); err != nil {
				return nil, billing.WrapError(billing.KindValidation, op, err)
			}
		}
		if r.IdempotencyKey != "" {
			params.IdempotencyKey = stripe.String(r.IdempotencyKey)
		}
		params.Context = ctx
		return p.api.Charges.New(params)
	})
	if err != nil {
		return billing.ChargeRef{}, err
	}

	ref := billing.ChargeRef{
		ID:                  ch.ID,
		AmountMinorUnits:    ch.Amount,
		CustomerID:          r.CustomerID,
		SourceID:            r.SourceID,
		Description:         ch.Description,
		StatementDescriptor: ch.StatementDescriptor,
		Status:              string(ch.Status),
	}
	if ch.Customer != nil {
		ref.CustomerID = ch.Customer.ID
	}
	if ch.Source != nil {
		ref.SourceID = ch.Source.ID
	}
	return ref, nil
}

// GetCoupon retrieves a coupon.
func (p *StripeProcessor) GetCoupon(ctx context.Context, id string) (billing.CouponRef, error) {
	c, err := call(ctx, p, "get_coupon", func() (*stripe.Coupon, error) {
		params := &stripe.CouponParams{}
		params.Context = ctx
		return p.api.Coupons.Get(id, params)
	})
	if err != nil {
		return billing.CouponRef{}, err
	}
	return toCouponRef(c), nil
}

// CreateCoupon creates a coupon from a processor-defined spec.
func (p *StripeProcessor) CreateCoupon(ctx context.Context, spec billing.CouponSpec) (billing.CouponRef, error) {
	c, err := call(ctx, p, "create_coupon", func() (*stripe.Coupon, error) {
		params := &stripe.CouponParams{}
		if spec.ID != "" {
			params.ID = stripe.String(spec.ID)
		}
		if spec.Name != "" {
			params.Name = stripe.String(spec.Name)
		}
		if spec.PercentOff > 0 {
			params.PercentOff = stripe.Float64(spec.PercentOff)
		}
		if spec.AmountOff > 0 {
			params.AmountOff = stripe.Int64(spec.AmountOff)
			currency := spec.Currency
			if currency == "" {
				currency = p.currency
			}
			params.Currency = stripe.String(currency)
		}
		if spec.Duration != "" {
			params.Duration = stripe.String(spec.Duration)
		}
		if spec.DurationInMonths > 0 {
			params.DurationInMonths = stripe.Int64(spec.DurationInMonths)
		}
		if spec.MaxRedemptions > 0 {
			params.MaxRedemptions = stripe.Int64(spec.MaxRedemptions)
		}
		if spec.RedeemBy > 0 {
			params.RedeemBy = stripe.Int64(spec.RedeemBy)
		}
		for k, v := range spec.Metadata {
			params.AddMetadata(k, v)
		}
		if spec.IdempotencyKey != "" {
			params.IdempotencyKey = stripe.String(spec.IdempotencyKey)
		}
		params.Context = ctx
		return p.api.Coupons.New(params)
	})
	if err != nil {
		return billing.CouponRef{}, err
	}
	return toCouponRef(c), nil
}

// UpdateCouponMetadata sets the given metadata keys; other keys are kept
// by the API.
func (p *StripeProcessor) UpdateCouponMetadata(ctx context.Context, id string, md map[string]string) (billing.CouponRef, error) {
	c, err := call(ctx, p, "update_coupon", func() (*stripe.Coupon, error) {
		params := &stripe.CouponParams{}
		for k, v := range md {
			params.AddMetadata(k, v)
		}
		params.Context = ctx
		return p.api.Coupons.Update(id, params)
	})
	if err != nil {
		return billing.CouponRef{}, err
	}
	return toCouponRef(c), nil
}

func toCouponRef(c *stripe.Coupon) billing.CouponRef {
	md := make(map[string]string, len(c.Metadata))
	for k, v := range c.Metadata {
		md[k] = v
	}
	return billing.CouponRef{ID: c.ID, Metadata: md}
}
