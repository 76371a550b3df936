package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/artpar/paycore/domain/billing"
	"github.com/artpar/paycore/ports"
	"github.com/rs/zerolog"
)

// SubscriptionService drives the subscription lifecycle:
// Absent -> Active -> {Active (plan change), Cancelled}. Cancelled is terminal.
type SubscriptionService struct {
	processor ports.Subscriptions
	logger    zerolog.Logger
}

// NewSubscriptionService creates a new subscription service.
func NewSubscriptionService(processor ports.Subscriptions, logger zerolog.Logger) *SubscriptionService {
	return &SubscriptionService{
		processor: processor,
		logger:    logger,
	}
}

// Create starts a subscription. Coupon and trial end are only sent when set.
func (s *SubscriptionService) Create(ctx context.Context, req billing.SubscriptionRequest) (billing.SubscriptionRef, error) {
	const op = "create_subscription"

	if strings.TrimSpace(req.CustomerID) == "" {
		return billing.SubscriptionRef{}, billing.Validationf(op, "customer id is required")
	}
	if strings.TrimSpace(req.PlanID) == "" {
		return billing.SubscriptionRef{}, billing.Validationf(op, "plan id is required")
	}
	if req.Quantity < 0 {
		return billing.SubscriptionRef{}, billing.Validationf(op, "quantity must not be negative, got %d", req.Quantity)
	}
	if req.TrialEndEpoch < 0 {
		return billing.SubscriptionRef{}, billing.Validationf(op, "trial end must be a unix timestamp, got %d", req.TrialEndEpoch)
	}

	sub, err := s.processor.CreateSubscription(ctx, req)
	if err != nil {
		return billing.SubscriptionRef{}, fmt.Errorf("create subscription for %s: %w", req.CustomerID, err)
	}

	s.logger.Info().
		Str("subscription_id", sub.ID).
		Str("customer_id", sub.CustomerID).
		Str("plan_id", sub.PlanID).
		Int64("quantity", sub.Quantity).
		Str("status", string(sub.Status)).
		Msg("subscription created")
	return sub, nil
}

// active fetches a subscription and rejects the terminal state.
func (s *SubscriptionService) active(ctx context.Context, op, id string) (billing.SubscriptionRef, error) {
	if strings.TrimSpace(id) == "" {
		return billing.SubscriptionRef{}, billing.Validationf(op, "subscription id is required")
	}
	sub, err := s.processor.GetSubscription(ctx, id)
	if err != nil {
		return billing.SubscriptionRef{}, err
	}
	if sub.Cancelled() {
		return billing.SubscriptionRef{}, &billing.Error{
			Kind: billing.KindNotFound,
			Op:   op,
			Msg:  fmt.Sprintf("subscription %s is cancelled", id),
			Err:  billing.ErrSubscriptionCancelled,
		}
	}
	return sub, nil
}

// Cancel ends a subscription immediately. Cancelling an already cancelled
// subscription returns a NotFound error wrapping ErrSubscriptionCancelled.
func (s *SubscriptionService) Cancel(ctx context.Context, id string) (billing.SubscriptionRef, error) {
	if _, err := s.active(ctx, "cancel_subscription", id); err != nil {
		return billing.SubscriptionRef{}, fmt.Errorf("cancel subscription %s: %w", id, err)
	}

	sub, err := s.processor.CancelSubscription(ctx, id)
	if err != nil {
		return billing.SubscriptionRef{}, fmt.Errorf("cancel subscription %s: %w", id, err)
	}

	s.logger.Info().
		Str("subscription_id", sub.ID).
		Str("customer_id", sub.CustomerID).
		Msg("subscription cancelled")
	return sub, nil
}

// ChangePlan moves an active subscription to planID in place.
// The subscription id, coupon and trial are kept.
func (s *SubscriptionService) ChangePlan(ctx context.Context, id, planID string) (billing.SubscriptionRef, error) {
	const op = "change_plan"

	if strings.TrimSpace(planID) == "" {
		return billing.SubscriptionRef{}, billing.Validationf(op, "plan id is required")
	}
	cur, err := s.active(ctx, op, id)
	if err != nil {
		return billing.SubscriptionRef{}, fmt.Errorf("change plan of %s: %w", id, err)
	}
	if cur.PlanID == planID {
		return cur, nil
	}

	sub, err := s.processor.UpdateSubscriptionPlan(ctx, id, planID)
	if err != nil {
		return billing.SubscriptionRef{}, fmt.Errorf("change plan of %s: %w", id, err)
	}

	s.logger.Info().
		Str("subscription_id", sub.ID).
		Str("from_plan", cur.PlanID).
		Str("to_plan", sub.PlanID).
		Msg("subscription plan changed")
	return sub, nil
}

// Upsert changes the plan of existingID when given, otherwise creates a new
// subscription from req.
func (s *SubscriptionService) Upsert(ctx context.Context, req billing.SubscriptionRequest, existingID string) (billing.SubscriptionRef, error) {
	if existingID != "" {
		return s.ChangePlan(ctx, existingID, req.PlanID)
	}
	return s.Create(ctx, req)
}
