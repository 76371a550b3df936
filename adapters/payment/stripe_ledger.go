package payment

import (
	"context"
	"iter"
	"time"

	"github.com/artpar/paycore/domain/billing"
	"github.com/stripe/stripe-go/v76"
)

// ListBalanceTransactions lists one page of balance transactions.
// Auto-pagination is disabled; callers wanting more narrow the window.
func (p *StripeProcessor) ListBalanceTransactions(ctx context.Context, f billing.LedgerFilter) iter.Seq2[billing.LedgerEntry, error] {
	const op = "list_balance_transactions"

	return func(yield func(billing.LedgerEntry, error) bool) {
		if err := p.wait(ctx, op); err != nil {
			yield(billing.LedgerEntry{}, err)
			return
		}

		params := &stripe.BalanceTransactionListParams{}
		if f.Type != "" {
			params.Type = stripe.String(f.Type)
		}
		if f.CreatedGt != 0 || f.CreatedGte != 0 || f.CreatedLte != 0 {
			params.CreatedRange = &stripe.RangeQueryParams{
				GreaterThan:        f.CreatedGt,
				GreaterThanOrEqual: f.CreatedGte,
				LesserThanOrEqual:  f.CreatedLte,
			}
		}
		if f.Limit > 0 {
			params.Limit = stripe.Int64(f.Limit)
		}
		params.Single = true
		params.Context = ctx

		start := time.Now()
		it := p.api.BalanceTransactions.List(params)
		for it.Next() {
			if !yield(toLedgerEntry(it.BalanceTransaction()), nil) {
				p.record(op, nil, time.Since(start))
				return
			}
		}

		err := Classify(op, it.Err())
		p.record(op, err, time.Since(start))
		if err != nil {
			yield(billing.LedgerEntry{}, err)
		}
	}
}

func toLedgerEntry(bt *stripe.BalanceTransaction) billing.LedgerEntry {
	return billing.LedgerEntry{
		ID:               bt.ID,
		CreatedEpoch:     bt.Created,
		Type:             string(bt.Type),
		AmountMinorUnits: bt.Amount,
		Currency:         string(bt.Currency),
	}
}
