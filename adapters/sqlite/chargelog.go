package sqlite

import (
	"context"
	"database/sql"

	"github.com/artpar/paycore/ports"
)

// ChargeLog implements ports.ChargeLog using SQLite.
type ChargeLog struct {
	db *DB
}

// NewChargeLog creates a new SQLite charge log.
func NewChargeLog(db *DB) *ChargeLog {
	return &ChargeLog{db: db}
}

// Record stores a submitted charge.
func (l *ChargeLog) Record(ctx context.Context, r ports.ChargeRecord) error {
	c := r.Charge
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO charges (id, local_id, remote_customer_id, source_id, amount_minor_units,
			currency, description, statement_descriptor, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, r.LocalID, c.CustomerID, nullString(c.SourceID), c.AmountMinorUnits,
		r.Currency, nullString(c.Description), nullString(c.StatementDescriptor), c.Status, r.CreatedAt.UTC())
	if isUniqueConstraintError(err) {
		// Idempotent replays return the same charge id.
		return nil
	}
	return err
}

// ListByCustomer returns the customer's charges, newest first.
func (l *ChargeLog) ListByCustomer(ctx context.Context, localID string, limit int) ([]ports.ChargeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, local_id, remote_customer_id, source_id, amount_minor_units,
			currency, description, statement_descriptor, status, created_at
		FROM charges WHERE local_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, localID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ports.ChargeRecord
	for rows.Next() {
		var r ports.ChargeRecord
		var source, desc, descriptor sql.NullString
		if err := rows.Scan(&r.Charge.ID, &r.LocalID, &r.Charge.CustomerID, &source, &r.Charge.AmountMinorUnits,
			&r.Currency, &desc, &descriptor, &r.Charge.Status, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Charge.SourceID = source.String
		r.Charge.Description = desc.String
		r.Charge.StatementDescriptor = descriptor.String
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ ports.ChargeLog = (*ChargeLog)(nil)
