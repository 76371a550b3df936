package app

import (
	"context"
	"iter"
	"sync/atomic"
	"time"

	"github.com/artpar/paycore/domain/billing"
	"github.com/artpar/paycore/ports"
	"github.com/rs/zerolog"
)

// Ledger query limits. Each query returns a single page; no pagination.
const (
	BalancePageLimit = 40
	PayoutPageLimit  = 400

	chargeEntryType = "charge"
)

// LedgerService answers balance and payout window queries over settled
// charge transactions. Dates are dd/mm/yyyy in the configured location.
type LedgerService struct {
	processor ports.Ledger
	location  *time.Location
	logger    zerolog.Logger
}

// NewLedgerService creates a new ledger service. A nil location means Local.
func NewLedgerService(processor ports.Ledger, location *time.Location, logger zerolog.Logger) *LedgerService {
	if location == nil {
		location = time.Local
	}
	return &LedgerService{
		processor: processor,
		location:  location,
		logger:    logger,
	}
}

// ListBalanceSince lists charge transactions created strictly after midnight
// of start, at most BalancePageLimit of them.
func (s *LedgerService) ListBalanceSince(ctx context.Context, start string) (iter.Seq2[billing.BalanceEntry, error], error) {
	from, err := billing.ParseLocalDate(start, s.location)
	if err != nil {
		return nil, err
	}

	f := billing.LedgerFilter{
		Type:      chargeEntryType,
		CreatedGt: from.Unix(),
		Limit:     BalancePageLimit,
	}
	s.logger.Debug().
		Time("since", from).
		Int64("limit", f.Limit).
		Msg("listing balance transactions")

	return once(convert(s.processor.ListBalanceTransactions(ctx, f), func(e billing.LedgerEntry) billing.BalanceEntry {
		return billing.BalanceEntry(e)
	})), nil
}

// ListPayoutsBetween lists charge transactions created between midnight of
// start and midnight of end, both inclusive, at most PayoutPageLimit of them.
func (s *LedgerService) ListPayoutsBetween(ctx context.Context, start, end string) (iter.Seq2[billing.PayoutEntry, error], error) {
	from, err := billing.ParseLocalDate(start, s.location)
	if err != nil {
		return nil, err
	}
	to, err := billing.ParseLocalDate(end, s.location)
	if err != nil {
		return nil, err
	}
	if from.After(to) {
		return nil, billing.Validationf("list_payouts", "start %s is after end %s", start, end)
	}

	f := billing.LedgerFilter{
		Type:       chargeEntryType,
		CreatedGte: from.Unix(),
		CreatedLte: to.Unix(),
		Limit:      PayoutPageLimit,
	}
	s.logger.Debug().
		Time("from", from).
		Time("to", to).
		Int64("limit", f.Limit).
		Msg("listing payout window")

	return once(convert(s.processor.ListBalanceTransactions(ctx, f), func(e billing.LedgerEntry) billing.PayoutEntry {
		return billing.PayoutEntry(e)
	})), nil
}

// Collect drains seq into a slice, stopping at the first error.
func Collect[E any](seq iter.Seq2[E, error]) ([]E, error) {
	var out []E
	for e, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}

func convert[E any](seq iter.Seq2[billing.LedgerEntry, error], to func(billing.LedgerEntry) E) iter.Seq2[E, error] {
	return func(yield func(E, error) bool) {
		for e, err := range seq {
			if !yield(to(e), err) {
				return
			}
		}
	}
}

// once makes seq non-restartable: ranging it again yields one validation
// error wrapping ErrSequenceConsumed.
func once[E any](seq iter.Seq2[E, error]) iter.Seq2[E, error] {
	var used atomic.Bool
	return func(yield func(E, error) bool) {
		if used.Swap(true) {
			var zero E
			yield(zero, &billing.Error{
				Kind: billing.KindValidation,
				Op:   "list_ledger",
				Msg:  "sequence already consumed",
				Err:  billing.ErrSequenceConsumed,
			})
			return
		}
		for e, err := range seq {
			if !yield(e, err) {
				return
			}
		}
	}
}
