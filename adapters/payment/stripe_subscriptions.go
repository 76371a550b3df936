package payment

import (
	"context"
	"fmt"

	"github.com/artpar/paycore/domain/billing"
	"github.com/stripe/stripe-go/v76"
)

// GetSubscription retrieves a subscription, including cancelled ones.
func (p *StripeProcessor) GetSubscription(ctx context.Context, id string) (billing.SubscriptionRef, error) {
	sub, err := p.getSubscription(ctx, "get_subscription", id)
	if err != nil {
		return billing.SubscriptionRef{}, err
	}
	return toSubscriptionRef(sub), nil
}

// CreateSubscription subscribes a customer to a single plan.
func (p *StripeProcessor) CreateSubscription(ctx context.Context, r billing.SubscriptionRequest) (billing.SubscriptionRef, error) {
	sub, err := call(ctx, p, "create_subscription", func() (*stripe.Subscription, error) {
		params := &stripe.SubscriptionParams{
			Customer: stripe.String(r.CustomerID),
			Items: []*stripe.SubscriptionItemsParams{
				{
					Plan:     stripe.String(r.PlanID),
					Quantity: stripe.Int64(r.Quantity),
				},
			},
		}
		if r.TrialEndEpoch > 0 {
			params.TrialEnd = stripe.Int64(r.TrialEndEpoch)
		}
		if r.CouponID != "" {
			params.Coupon = stripe.String(r.CouponID)
		}
		if r.IdempotencyKey != "" {
			params.IdempotencyKey = stripe.String(r.IdempotencyKey)
		}
		params.Context = ctx
		return p.api.Subscriptions.New(params)
	})
	if err != nil {
		return billing.SubscriptionRef{}, err
	}
	return toSubscriptionRef(sub), nil
}

// UpdateSubscriptionPlan swaps the plan on the subscription's item in place.
func (p *StripeProcessor) UpdateSubscriptionPlan(ctx context.Context, id, planID string) (billing.SubscriptionRef, error) {
	const op = "update_subscription"

	current, err := p.getSubscription(ctx, op, id)
	if err != nil {
		return billing.SubscriptionRef{}, err
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return billing.SubscriptionRef{}, billing.NewError(billing.KindValidation, op,
			fmt.Sprintf("subscription %s has no items", id))
	}

	sub, err := call(ctx, p, op, func() (*stripe.Subscription, error) {
		params := &stripe.SubscriptionParams{
			Items: []*stripe.SubscriptionItemsParams{
				{
					ID:   stripe.String(current.Items.Data[0].ID),
					Plan: stripe.String(planID),
				},
			},
		}
		params.Context = ctx
		return p.api.Subscriptions.Update(id, params)
	})
	if err != nil {
		return billing.SubscriptionRef{}, err
	}
	return toSubscriptionRef(sub), nil
}

// CancelSubscription cancels immediately.
func (p *StripeProcessor) CancelSubscription(ctx context.Context, id string) (billing.SubscriptionRef, error) {
	sub, err := call(ctx, p, "cancel_subscription", func() (*stripe.Subscription, error) {
		params := &stripe.SubscriptionCancelParams{}
		params.Context = ctx
		return p.api.Subscriptions.Cancel(id, params)
	})
	if err != nil {
		return billing.SubscriptionRef{}, err
	}
	return toSubscriptionRef(sub), nil
}

func (p *StripeProcessor) getSubscription(ctx context.Context, op, id string) (*stripe.Subscription, error) {
	return call(ctx, p, op, func() (*stripe.Subscription, error) {
		params := &stripe.SubscriptionParams{}
		params.Context = ctx
		return p.api.Subscriptions.Get(id, params)
	})
}

func toSubscriptionRef(s *stripe.Subscription) billing.SubscriptionRef {
	ref := billing.SubscriptionRef{
		ID:            s.ID,
		TrialEndEpoch: s.TrialEnd,
		Status:        mapStripeStatus(s.Status),
	}
	if s.Customer != nil {
		ref.CustomerID = s.Customer.ID
	}
	if s.Discount != nil && s.Discount.Coupon != nil {
		ref.CouponID = s.Discount.Coupon.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		ref.Quantity = item.Quantity
		switch {
		case item.Plan != nil:
			ref.PlanID = item.Plan.ID
		case item.Price != nil:
			ref.PlanID = item.Price.ID
		}
	}
	return ref
}

func mapStripeStatus(status stripe.SubscriptionStatus) billing.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive:
		return billing.SubscriptionStatusActive
	case stripe.SubscriptionStatusPastDue:
		return billing.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return billing.SubscriptionStatusCancelled
	case stripe.SubscriptionStatusUnpaid:
		return billing.SubscriptionStatusUnpaid
	case stripe.SubscriptionStatusTrialing:
		return billing.SubscriptionStatusTrialing
	case stripe.SubscriptionStatusIncomplete:
		return billing.SubscriptionStatusIncomplete
	case stripe.SubscriptionStatusPaused:
		return billing.SubscriptionStatusPaused
	default:
		return billing.SubscriptionStatusActive
	}
}
