package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/artpar/paycore/domain/billing"
	"github.com/artpar/paycore/ports"
)

// CustomerStore implements ports.CustomerStore using SQLite.
type CustomerStore struct {
	db *DB
}

// NewCustomerStore creates a new SQLite customer store.
func NewCustomerStore(db *DB) *CustomerStore {
	return &CustomerStore{db: db}
}

// Get retrieves a customer record by local id.
func (s *CustomerStore) Get(ctx context.Context, localID string) (ports.CustomerRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT local_id, email, remote_id, subscription_id, created_at, updated_at
		FROM customers WHERE local_id = ?
	`, localID)
	return scanCustomer(row)
}

// Upsert creates the record or updates its email. Remote and subscription
// ids are never touched here.
func (s *CustomerStore) Upsert(ctx context.Context, r ports.CustomerRecord) error {
	if r.LocalID == "" {
		return billing.Validationf("upsert_customer_record", "local id is required")
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (local_id, email, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET email = excluded.email, updated_at = excluded.updated_at
	`, r.LocalID, r.Email, now, now)
	return err
}

// SetRemoteID binds the processor customer id to the record. Rebinding the
// same id is a no-op; rebinding a different id returns ErrRemoteIDBound.
func (s *CustomerStore) SetRemoteID(ctx context.Context, localID, remoteID string) error {
	if remoteID == "" {
		return billing.Validationf("set_remote_id", "remote id is required")
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE customers SET remote_id = ?, updated_at = ?
		WHERE local_id = ? AND (remote_id IS NULL OR remote_id = ?)
	`, remoteID, time.Now().UTC(), localID, remoteID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("remote id %s belongs to another customer: %w", remoteID, billing.ErrConflict)
		}
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	// Either the record is missing or it is bound elsewhere.
	if _, err := s.Get(ctx, localID); err != nil {
		return err
	}
	return ErrRemoteIDBound
}

// SetSubscriptionID records the customer's current subscription.
func (s *CustomerStore) SetSubscriptionID(ctx context.Context, localID, subscriptionID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE customers SET subscription_id = ?, updated_at = ? WHERE local_id = ?
	`, nullString(subscriptionID), time.Now().UTC(), localID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCustomer(row *sql.Row) (ports.CustomerRecord, error) {
	var (
		r              ports.CustomerRecord
		remoteID       sql.NullString
		subscriptionID sql.NullString
	)
	err := row.Scan(&r.LocalID, &r.Email, &remoteID, &subscriptionID, &r.CreatedAt, &r.UpdatedAt)
	if isNoRows(err) {
		return ports.CustomerRecord{}, ErrNotFound
	}
	if err != nil {
		return ports.CustomerRecord{}, err
	}
	r.RemoteID = remoteID.String
	r.SubscriptionID = subscriptionID.String
	return r, nil
}

var _ ports.CustomerStore = (*CustomerStore)(nil)
