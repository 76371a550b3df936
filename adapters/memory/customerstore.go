// Package memory provides in-memory implementations of the local stores,
// used by tests and by the "memory" database driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/artpar/paycore/domain/billing"
	"github.com/artpar/paycore/ports"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = fmt.Errorf("record %w", billing.ErrNotFound)

// ErrRemoteIDBound is returned when a record is already bound to another remote id.
var ErrRemoteIDBound = fmt.Errorf("remote id already bound: %w", billing.ErrConflict)

// CustomerStore is an in-memory implementation of ports.CustomerStore.
type CustomerStore struct {
	mu       sync.RWMutex
	records  map[string]ports.CustomerRecord // by local id
	byRemote map[string]string               // remote id -> local id
	now      func() time.Time
}

// NewCustomerStore creates a new in-memory customer store.
func NewCustomerStore() *CustomerStore {
	return &CustomerStore{
		records:  make(map[string]ports.CustomerRecord),
		byRemote: make(map[string]string),
		now:      time.Now,
	}
}

// Get retrieves a record by local id.
func (s *CustomerStore) Get(ctx context.Context, localID string) (ports.CustomerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[localID]
	if !ok {
		return ports.CustomerRecord{}, ErrNotFound
	}
	return r, nil
}

// Upsert creates the record or updates its email.
func (s *CustomerStore) Upsert(ctx context.Context, r ports.CustomerRecord) error {
	if r.LocalID == "" {
		return billing.Validationf("upsert_customer_record", "local id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	old, ok := s.records[r.LocalID]
	if !ok {
		s.records[r.LocalID] = ports.CustomerRecord{LocalID: r.LocalID, Email: r.Email, CreatedAt: now, UpdatedAt: now}
		return nil
	}
	old.Email = r.Email
	old.UpdatedAt = now
	s.records[r.LocalID] = old
	return nil
}

// SetRemoteID binds the processor customer id to the record.
func (s *CustomerStore) SetRemoteID(ctx context.Context, localID, remoteID string) error {
	if remoteID == "" {
		return billing.Validationf("set_remote_id", "remote id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[localID]
	if !ok {
		return ErrNotFound
	}
	if r.RemoteID == remoteID {
		return nil
	}
	if r.RemoteID != "" {
		return ErrRemoteIDBound
	}
	if owner, taken := s.byRemote[remoteID]; taken && owner != localID {
		return fmt.Errorf("remote id %s belongs to another customer: %w", remoteID, billing.ErrConflict)
	}

	r.RemoteID = remoteID
	r.UpdatedAt = s.now().UTC()
	s.records[localID] = r
	s.byRemote[remoteID] = localID
	return nil
}

// SetSubscriptionID records the customer's current subscription.
func (s *CustomerStore) SetSubscriptionID(ctx context.Context, localID, subscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[localID]
	if !ok {
		return ErrNotFound
	}
	r.SubscriptionID = subscriptionID
	r.UpdatedAt = s.now().UTC()
	s.records[localID] = r
	return nil
}

// All returns every record, ordered by local id.
func (s *CustomerStore) All() []ports.CustomerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ports.CustomerRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocalID < out[j].LocalID })
	return out
}

var _ ports.CustomerStore = (*CustomerStore)(nil)
