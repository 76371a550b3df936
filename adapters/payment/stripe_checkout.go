package payment

import (
	"context"

	"github.com/artpar/paycore/domain/billing"
	"github.com/stripe/stripe-go/v76"
)

// CreateCheckoutSession creates a card-only Stripe Checkout session that
// subscribes the payer to one plan.
func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, r billing.CheckoutRequest) (billing.CheckoutSession, error) {
	s, err := call(ctx, p, "create_checkout_session", func() (*stripe.CheckoutSession, error) {
		params := &stripe.CheckoutSessionParams{
			SuccessURL:         stripe.String(r.SuccessURL),
			CancelURL:          stripe.String(r.CancelURL),
			Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
			PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
			LineItems: []*stripe.CheckoutSessionLineItemParams{
				{
					Price:    stripe.String(r.PlanID),
					Quantity: stripe.Int64(1),
				},
			},
		}
		if r.CustomerID != "" {
			params.Customer = stripe.String(r.CustomerID)
		} else {
			params.CustomerEmail = stripe.String(r.CustomerEmail)
		}
		params.Context = ctx
		return p.api.CheckoutSessions.New(params)
	})
	if err != nil {
		return billing.CheckoutSession{}, err
	}
	return billing.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}
