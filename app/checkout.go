package app

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/artpar/paycore/domain/billing"
	"github.com/artpar/paycore/ports"
	"github.com/rs/zerolog"
)

// CheckoutService creates hosted checkout sessions for a single plan.
type CheckoutService struct {
	processor ports.Checkout
	logger    zerolog.Logger
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(processor ports.Checkout, logger zerolog.Logger) *CheckoutService {
	return &CheckoutService{
		processor: processor,
		logger:    logger,
	}
}

// CreateSession starts a card-only subscription checkout.
// The customer id is used when known, otherwise the e-mail.
func (s *CheckoutService) CreateSession(ctx context.Context, req billing.CheckoutRequest) (billing.CheckoutSession, error) {
	const op = "create_checkout_session"

	if strings.TrimSpace(req.PlanID) == "" {
		return billing.CheckoutSession{}, billing.Validationf(op, "plan id is required")
	}
	if req.CustomerID == "" && !strings.Contains(req.CustomerEmail, "@") {
		return billing.CheckoutSession{}, billing.Validationf(op, "customer id or email is required")
	}
	for name, raw := range map[string]string{"success_url": req.SuccessURL, "cancel_url": req.CancelURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return billing.CheckoutSession{}, billing.Validationf(op, "%s must be an absolute url, got %q", name, raw)
		}
	}
	if req.CustomerID != "" {
		req.CustomerEmail = ""
	}

	sess, err := s.processor.CreateCheckoutSession(ctx, req)
	if err != nil {
		return billing.CheckoutSession{}, fmt.Errorf("create checkout session for plan %s: %w", req.PlanID, err)
	}

	s.logger.Info().
		Str("session_id", sess.ID).
		Str("plan_id", req.PlanID).
		Str("customer_id", req.CustomerID).
		Msg("checkout session created")
	return sess, nil
}
