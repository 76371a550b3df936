package payment

import (
	"context"
	"fmt"

	"github.com/artpar/paycore/domain/billing"
	"github.com/stripe/stripe-go/v76"
)

// GetCustomer retrieves a customer. Deleted customers are NotFound.
func (p *StripeProcessor) GetCustomer(ctx context.Context, id string) (billing.RemoteCustomer, error) {
	const op = "get_customer"

	c, err := call(ctx, p, op, func() (*stripe.Customer, error) {
		params := &stripe.CustomerParams{}
		params.Context = ctx
		return p.api.Customers.Get(id, params)
	})
	if err != nil {
		return billing.RemoteCustomer{}, err
	}
	if c.Deleted {
		return billing.RemoteCustomer{}, notFound(op, "customer", id)
	}
	return toRemoteCustomer(c), nil
}

// CreateCustomer creates a customer tagged with the caller's local id.
// The idempotency key makes a replayed create return the first customer.
func (p *StripeProcessor) CreateCustomer(ctx context.Context, cp billing.CustomerParams) (billing.RemoteCustomer, error) {
	c, err := call(ctx, p, "create_customer", func() (*stripe.Customer, error) {
		params := &stripe.CustomerParams{
			Email: stripe.String(cp.Email),
		}
		if cp.CouponID != "" {
			params.Coupon = stripe.String(cp.CouponID)
		}
		if cp.LocalID != "" {
			params.AddMetadata(billing.MetadataLocalID, cp.LocalID)
		}
		if cp.IdempotencyKey != "" {
			params.IdempotencyKey = stripe.String(cp.IdempotencyKey)
		}
		params.Context = ctx
		return p.api.Customers.New(params)
	})
	if err != nil {
		return billing.RemoteCustomer{}, err
	}
	return toRemoteCustomer(c), nil
}

// FindCustomerByLocalID scans the customers registered under email for the
// one tagged with localID.
func (p *StripeProcessor) FindCustomerByLocalID(ctx context.Context, localID, email string) (billing.RemoteCustomer, error) {
	const op = "find_customer"

	found, err := call(ctx, p, op, func() (*stripe.Customer, error) {
		params := &stripe.CustomerListParams{Email: stripe.String(email)}
		params.Context = ctx
		params.Limit = stripe.Int64(100)
		params.Single = true

		it := p.api.Customers.List(params)
		for it.Next() {
			c := it.Customer()
			if !c.Deleted && c.Metadata[billing.MetadataLocalID] == localID {
				return c, nil
			}
		}
		return nil, it.Err()
	})
	if err != nil {
		return billing.RemoteCustomer{}, err
	}
	if found == nil {
		return billing.RemoteCustomer{}, billing.NewError(billing.KindNotFound, op,
			fmt.Sprintf("no customer for local id %s", localID))
	}
	return toRemoteCustomer(found), nil
}

// SetDefaultSource attaches source to the customer as default payment method.
func (p *StripeProcessor) SetDefaultSource(ctx context.Context, customerID, source string) (billing.RemoteCustomer, error) {
	c, err := call(ctx, p, "set_default_source", func() (*stripe.Customer, error) {
		params := &stripe.CustomerParams{Source: stripe.String(source)}
		params.Context = ctx
		return p.api.Customers.Update(customerID, params)
	})
	if err != nil {
		return billing.RemoteCustomer{}, err
	}
	return toRemoteCustomer(c), nil
}

// CreateSepaSource mints a new SEPA debit source. Not idempotent.
func (p *StripeProcessor) CreateSepaSource(ctx context.Context, sp billing.SepaSourceParams) (billing.PaymentSourceRef, error) {
	currency := sp.Currency
	if currency == "" {
		currency = p.currency
	}

	src, err := call(ctx, p, "create_source", func() (*stripe.Source, error) {
		params := &stripe.SourceParams{
			Type:     stripe.String(string(billing.SourceKindSepaDebit)),
			Currency: stripe.String(currency),
			Owner: &stripe.SourceOwnerParams{
				Name: stripe.String(sp.OwnerName),
			},
		}
		params.AddExtra("sepa_debit[iban]", sp.IBAN)
		params.Context = ctx
		return p.api.Sources.New(params)
	})
	if err != nil {
		return billing.PaymentSourceRef{}, err
	}

	ref := billing.PaymentSourceRef{ID: src.ID, Kind: billing.PaymentSourceKind(src.Type), OwnerName: sp.OwnerName}
	if src.Owner != nil && src.Owner.Name != "" {
		ref.OwnerName = src.Owner.Name
	}
	return ref, nil
}

func toRemoteCustomer(c *stripe.Customer) billing.RemoteCustomer {
	rc := billing.RemoteCustomer{
		ID:      c.ID,
		Email:   c.Email,
		LocalID: c.Metadata[billing.MetadataLocalID],
		Deleted: c.Deleted,
	}
	if c.DefaultSource != nil {
		rc.DefaultSource = c.DefaultSource.ID
	}
	return rc
}
