package ports

import (
	"context"
	"iter"

	"github.com/artpar/paycore/domain/billing"
)

// -----------------------------------------------------------------------------
// Processor Ports
// -----------------------------------------------------------------------------
//
// Every method returns either the resource or a *billing.Error. Implementations
// classify failures once; callers branch on the kind.

// Products manages catalog products.
type Products interface {
	GetProduct(ctx context.Context, id string) (billing.ProductRef, error)
	CreateProduct(ctx context.Context, p billing.ProductRef) (billing.ProductRef, error)
}

// Plans manages recurring price plans.
type Plans interface {
	GetPlan(ctx context.Context, id string) (billing.PlanRef, error)
	CreatePlan(ctx context.Context, p billing.PlanRef) (billing.PlanRef, error)
	DeletePlan(ctx context.Context, id string) error
}

// Customers manages remote customers.
type Customers interface {
	GetCustomer(ctx context.Context, id string) (billing.RemoteCustomer, error)
	CreateCustomer(ctx context.Context, p billing.CustomerParams) (billing.RemoteCustomer, error)

	// FindCustomerByLocalID looks up a customer created for a local record.
	// Returns a NotFound error when none exists.
	FindCustomerByLocalID(ctx context.Context, localID, email string) (billing.RemoteCustomer, error)

	// SetDefaultSource makes source (a card token or source id) the
	// customer's default payment method.
	SetDefaultSource(ctx context.Context, customerID, source string) (billing.RemoteCustomer, error)
}

// Sources mints reusable payment sources.
type Sources interface {
	CreateSepaSource(ctx context.Context, p billing.SepaSourceParams) (billing.PaymentSourceRef, error)
}

// Subscriptions manages recurring subscriptions.
type Subscriptions interface {
	GetSubscription(ctx context.Context, id string) (billing.SubscriptionRef, error)
	CreateSubscription(ctx context.Context, r billing.SubscriptionRequest) (billing.SubscriptionRef, error)

	// UpdateSubscriptionPlan swaps the plan of the subscription's single item
	// in place, keeping id, coupon and trial.
	UpdateSubscriptionPlan(ctx context.Context, id, planID string) (billing.SubscriptionRef, error)
	CancelSubscription(ctx context.Context, id string) (billing.SubscriptionRef, error)
}

// Charges submits one-off charges.
type Charges interface {
	CreateCharge(ctx context.Context, r billing.ChargeRequest) (billing.ChargeRef, error)
}

// Coupons manages discount coupons.
type Coupons interface {
	GetCoupon(ctx context.Context, id string) (billing.CouponRef, error)
	CreateCoupon(ctx context.Context, c billing.CouponSpec) (billing.CouponRef, error)

	// UpdateCouponMetadata merges md into the coupon's metadata.
	UpdateCouponMetadata(ctx context.Context, id string, md map[string]string) (billing.CouponRef, error)
}

// Ledger lists settled balance transactions.
type Ledger interface {
	// ListBalanceTransactions returns a single page of entries, at most
	// f.Limit long. The sequence is lazy: the remote call happens on range.
	ListBalanceTransactions(ctx context.Context, f billing.LedgerFilter) iter.Seq2[billing.LedgerEntry, error]
}

// Checkout creates hosted checkout sessions.
type Checkout interface {
	CreateCheckoutSession(ctx context.Context, r billing.CheckoutRequest) (billing.CheckoutSession, error)
}

// Processor is the full capability surface of the payment processor.
type Processor interface {
	Name() string
	Products
	Plans
	Customers
	Sources
	Subscriptions
	Charges
	Coupons
	Ledger
	Checkout
}

// CallObserver records the outcome of every remote processor call.
// kind is empty for successful calls.
type CallObserver interface {
	ObserveCall(op string, kind billing.ErrorKind, seconds float64)
}
