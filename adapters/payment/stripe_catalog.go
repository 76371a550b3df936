package payment

import (
	"context"

	"github.com/artpar/paycore/domain/billing"
	"github.com/stripe/stripe-go/v76"
)

// GetProduct retrieves a product by its caller-supplied id.
func (p *StripeProcessor) GetProduct(ctx context.Context, id string) (billing.ProductRef, error) {
	const op = "get_product"

	prod, err := call(ctx, p, op, func() (*stripe.Product, error) {
		params := &stripe.ProductParams{}
		params.Context = ctx
		return p.api.Products.Get(id, params)
	})
	if err != nil {
		return billing.ProductRef{}, err
	}
	if prod.Deleted {
		return billing.ProductRef{}, notFound(op, "product", id)
	}
	return billing.ProductRef{ID: prod.ID, Name: prod.Name}, nil
}

// CreateProduct creates a product under the given id.
func (p *StripeProcessor) CreateProduct(ctx context.Context, ref billing.ProductRef) (billing.ProductRef, error) {
	prod, err := call(ctx, p, "create_product", func() (*stripe.Product, error) {
		params := &stripe.ProductParams{
			ID:   stripe.String(ref.ID),
			Name: stripe.String(ref.Name),
		}
		params.Context = ctx
		return p.api.Products.New(params)
	})
	if err != nil {
		return billing.ProductRef{}, err
	}
	return billing.ProductRef{ID: prod.ID, Name: prod.Name}, nil
}

// GetPlan retrieves a plan by id.
func (p *StripeProcessor) GetPlan(ctx context.Context, id string) (billing.PlanRef, error) {
	const op = "get_plan"

	plan, err := call(ctx, p, op, func() (*stripe.Plan, error) {
		params := &stripe.PlanParams{}
		params.Context = ctx
		return p.api.Plans.Get(id, params)
	})
	if err != nil {
		return billing.PlanRef{}, err
	}
	if plan.Deleted {
		return billing.PlanRef{}, notFound(op, "plan", id)
	}
	return toPlanRef(plan), nil
}

// CreatePlan creates a plan under the given id. Amount is in minor units.
func (p *StripeProcessor) CreatePlan(ctx context.Context, ref billing.PlanRef) (billing.PlanRef, error) {
	currency := ref.Currency
	if currency == "" {
		currency = p.currency
	}

	plan, err := call(ctx, p, "create_plan", func() (*stripe.Plan, error) {
		params := &stripe.PlanParams{
			ID:        stripe.String(ref.ID),
			Amount:    stripe.Int64(ref.AmountMinorUnits),
			Interval:  stripe.String(string(ref.Interval)),
			Nickname:  stripe.String(ref.Name),
			Currency:  stripe.String(currency),
			ProductID: stripe.String(ref.ProductID),
		}
		params.Context = ctx
		return p.api.Plans.New(params)
	})
	if err != nil {
		return billing.PlanRef{}, err
	}
	return toPlanRef(plan), nil
}

// DeletePlan deletes a plan. Subscriptions already on it are unaffected.
func (p *StripeProcessor) DeletePlan(ctx context.Context, id string) error {
	_, err := call(ctx, p, "delete_plan", func() (*stripe.Plan, error) {
		params := &stripe.PlanParams{}
		params.Context = ctx
		return p.api.Plans.Del(id, params)
	})
	return err
}

func toPlanRef(plan *stripe.Plan) billing.PlanRef {
	ref := billing.PlanRef{
		ID:               plan.ID,
		Name:             plan.Nickname,
		AmountMinorUnits: plan.Amount,
		Interval:         billing.Interval(plan.Interval),
		Currency:         string(plan.Currency),
	}
	if plan.Product != nil {
		ref.ProductID = plan.Product.ID
	}
	return ref
}
