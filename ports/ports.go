// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/artpar/paycore/domain/billing"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Hosting Ports
// -----------------------------------------------------------------------------

// CustomerRecord is the hosting layer's local customer row.
type CustomerRecord struct {
	LocalID  string
	Email    string
	RemoteID string // empty until provisioned

	// SubscriptionID is the customer's current subscription, if any.
	SubscriptionID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Ref returns the record as the core sees it.
func (r CustomerRecord) Ref() billing.CustomerRef {
	return billing.CustomerRef{LocalID: r.LocalID, RemoteID: r.RemoteID, Email: r.Email}
}

// CustomerStore persists local customer records. The billing core never
// uses it; the HTTP and CLI surfaces resolve records before calling the core
// and write back the remote id afterwards.
type CustomerStore interface {
	// Get retrieves a record by local id.
	Get(ctx context.Context, localID string) (CustomerRecord, error)

	// Upsert creates the record or updates its email.
	Upsert(ctx context.Context, r CustomerRecord) error

	// SetRemoteID binds the remote id. Binding the same id again is a no-op;
	// binding a different id to an already bound record fails.
	SetRemoteID(ctx context.Context, localID, remoteID string) error

	// SetSubscriptionID records the customer's current subscription.
	SetSubscriptionID(ctx context.Context, localID, subscriptionID string) error
}

// ChargeRecord is a locally logged charge.
type ChargeRecord struct {
	LocalID   string
	Charge    billing.ChargeRef
	Currency  string
	CreatedAt time.Time
}

// ChargeLog keeps an audit trail of charges submitted for local customers.
type ChargeLog interface {
	Record(ctx context.Context, r ChargeRecord) error

	// ListByCustomer returns the customer's charges, newest first.
	ListByCustomer(ctx context.Context, localID string, limit int) ([]ChargeRecord, error)
}
