// Package billing provides the value types and pure functions of the billing core.
//
// Every type here is an immutable snapshot of a Processor resource. The core keeps
// no state between calls: refs are produced by the app services on each successful
// remote call and handed back to the caller.
package billing

import (
	"fmt"
	"strings"
)

// MaxStatementDescriptorLen is the processor hard limit on statement descriptors.
const MaxStatementDescriptorLen = 22

// MetadataRedeemBy is the only coupon metadata key mutated after creation.
const MetadataRedeemBy = "redeem_by"

// MetadataLocalID links a remote customer to the caller's local record.
const MetadataLocalID = "local_id"

// ProductRef is a product keyed by a caller-supplied stable id.
type ProductRef struct {
	ID   string
	Name string
}

// Interval is a plan billing interval.
type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// ParseInterval validates a billing interval.
func ParseInterval(s string) (Interval, error) {
	switch i := Interval(strings.ToLower(strings.TrimSpace(s))); i {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalYear:
		return i, nil
	default:
		return "", NewError(KindValidation, "parse_interval", fmt.Sprintf("unsupported interval %q", s))
	}
}

// PlanSpec is the caller's description of a plan. Amount is in major units.
type PlanSpec struct {
	ID        string
	Name      string
	Amount    float64
	Interval  Interval
	ProductID string
}

// PlanRef is a plan as known to the Processor.
type PlanRef struct {
	ID               string
	Name             string
	AmountMinorUnits int64
	Interval         Interval
	ProductID        string
	Currency         string
}

// CustomerRef is an already-resolved local customer record.
// An empty RemoteID means the customer has not been provisioned yet.
type CustomerRef struct {
	LocalID  string
	RemoteID string
	Email    string
}

// Provisioned reports whether the customer has a remote identity.
func (c CustomerRef) Provisioned() bool {
	return c.RemoteID != ""
}

// RemoteCustomer is a customer as returned by the Processor.
type RemoteCustomer struct {
	ID            string
	Email         string
	LocalID       string
	DefaultSource string
	Deleted       bool
}

// CustomerParams describes a customer to create.
type CustomerParams struct {
	Email          string
	CouponID       string
	LocalID        string
	IdempotencyKey string
}

// PaymentSourceKind identifies the instrument behind a payment source.
type PaymentSourceKind string

const (
	SourceKindCardToken PaymentSourceKind = "card_token"
	SourceKindSepaDebit PaymentSourceKind = "sepa_debit"
)

// PaymentSourceRef is a reusable payment source.
type PaymentSourceRef struct {
	ID        string
	Kind      PaymentSourceKind
	OwnerName string
}

// SepaSourceParams describes a SEPA debit source to mint.
type SepaSourceParams struct {
	IBAN      string
	OwnerName string
	Currency  string
}

// SubscriptionStatus represents subscription state on the Processor.
type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid     SubscriptionStatus = "unpaid"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
	SubscriptionStatusPaused     SubscriptionStatus = "paused"
	SubscriptionStatusCancelled  SubscriptionStatus = "cancelled"
)

// SubscriptionRef is a subscription snapshot. Plan and quantity may change
// without the ID changing.
type SubscriptionRef struct {
	ID            string
	CustomerID    string
	PlanID        string
	Quantity      int64
	CouponID      string
	TrialEndEpoch int64
	Status        SubscriptionStatus
}

// Cancelled reports whether the subscription reached its terminal state.
func (s SubscriptionRef) Cancelled() bool {
	return s.Status == SubscriptionStatusCancelled
}

// SubscriptionRequest describes a subscription to create.
// CouponID and TrialEndEpoch are only sent when non-empty.
type SubscriptionRequest struct {
	CustomerID     string
	PlanID         string
	Quantity       int64
	CouponID       string
	TrialEndEpoch  int64
	IdempotencyKey string
}

// CouponSpec is a processor-defined coupon definition, passed through on create.
type CouponSpec struct {
	ID               string
	Name             string
	PercentOff       float64
	AmountOff        int64
	Currency         string
	Duration         string // "once", "repeating", "forever"
	DurationInMonths int64
	MaxRedemptions   int64
	RedeemBy         int64
	Metadata         map[string]string
	IdempotencyKey   string
}

// CouponRef is a coupon snapshot.
type CouponRef struct {
	ID       string
	Metadata map[string]string
}

// ChargeRequest describes a one-off charge. SourceID is empty for charges
// against the customer's default payment method.
type ChargeRequest struct {
	CustomerID          string
	SourceID            string
	AmountMinorUnits    int64
	Currency            string
	Description         string
	StatementDescriptor string
	IdempotencyKey      string
}

// ChargeRef is a submitted charge.
type ChargeRef struct {
	ID                  string
	AmountMinorUnits    int64
	CustomerID          string
	SourceID            string
	Description         string
	StatementDescriptor string
	Status              string
}

// TruncateDescriptor cuts a statement descriptor to the processor limit.
// It counts runes so multi-byte characters are never split.
func TruncateDescriptor(s string) string {
	r := []rune(s)
	if len(r) <= MaxStatementDescriptorLen {
		return s
	}
	return string(r[:MaxStatementDescriptorLen])
}

// LedgerEntry is a settled balance transaction.
type LedgerEntry struct {
	ID               string
	CreatedEpoch     int64
	Type             string
	AmountMinorUnits int64
	Currency         string
}

// BalanceEntry is a ledger entry returned by balance queries.
type BalanceEntry LedgerEntry

// PayoutEntry is a ledger entry returned by payout window queries.
type PayoutEntry LedgerEntry

// LedgerFilter restricts a ledger listing. Zero values are not sent.
type LedgerFilter struct {
	Type       string
	CreatedGt  int64
	CreatedGte int64
	CreatedLte int64
	Limit      int64
}

// Match reports whether e passes the filter's type and time bounds.
func (f LedgerFilter) Match(e LedgerEntry) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.CreatedGt != 0 && e.CreatedEpoch <= f.CreatedGt {
		return false
	}
	if f.CreatedGte != 0 && e.CreatedEpoch < f.CreatedGte {
		return false
	}
	if f.CreatedLte != 0 && e.CreatedEpoch > f.CreatedLte {
		return false
	}
	return true
}

// CheckoutRequest describes a hosted checkout for a single plan.
// CustomerID wins over CustomerEmail when both are set.
type CheckoutRequest struct {
	CustomerID    string
	CustomerEmail string
	PlanID        string
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is a created hosted checkout session.
type CheckoutSession struct {
	ID  string
	URL string
}
