package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/artpar/paycore/ports"
)

// ChargeLog is an in-memory implementation of ports.ChargeLog.
type ChargeLog struct {
	mu      sync.RWMutex
	charges []ports.ChargeRecord
	seen    map[string]bool // by charge id
}

// NewChargeLog creates a new in-memory charge log.
func NewChargeLog() *ChargeLog {
	return &ChargeLog{seen: make(map[string]bool)}
}

// Record stores a submitted charge. Replays of a charge id are ignored.
func (l *ChargeLog) Record(ctx context.Context, r ports.ChargeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seen[r.Charge.ID] {
		return nil
	}
	l.seen[r.Charge.ID] = true
	l.charges = append(l.charges, r)
	return nil
}

// ListByCustomer returns the customer's charges, newest first.
func (l *ChargeLog) ListByCustomer(ctx context.Context, localID string, limit int) ([]ports.ChargeRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []ports.ChargeRecord
	for _, r := range l.charges {
		if r.LocalID == localID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Charge.ID > out[j].Charge.ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ ports.ChargeLog = (*ChargeLog)(nil)
