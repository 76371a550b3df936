package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/artpar/paycore/domain/billing"
	"github.com/artpar/paycore/ports"
	"github.com/rs/zerolog"
)

// ChargeService submits one-off charges in the settlement currency.
type ChargeService struct {
	processor ports.Charges
	currency  string
	logger    zerolog.Logger
}

// NewChargeService creates a new charge service.
func NewChargeService(processor ports.Charges, money billing.Money, logger zerolog.Logger) *ChargeService {
	return &ChargeService{
		processor: processor,
		currency:  money.Currency,
		logger:    logger,
	}
}

// ChargeByCustomer charges the customer's default payment method.
func (s *ChargeService) ChargeByCustomer(ctx context.Context, customerID string, amountMinor int64, description, statementDescriptor, idempotencyKey string) (billing.ChargeRef, error) {
	return s.charge(ctx, "charge_by_customer", billing.ChargeRequest{
		CustomerID:          customerID,
		AmountMinorUnits:    amountMinor,
		Description:         description,
		StatementDescriptor: statementDescriptor,
		IdempotencyKey:      idempotencyKey,
	})
}

// ChargeBySource charges an explicit source belonging to the customer.
func (s *ChargeService) ChargeBySource(ctx context.Context, customerID, sourceID string, amountMinor int64, description, statementDescriptor, idempotencyKey string) (billing.ChargeRef, error) {
	if strings.TrimSpace(sourceID) == "" {
		return billing.ChargeRef{}, billing.Validationf("charge_by_source", "source id is required")
	}
	return s.charge(ctx, "charge_by_source", billing.ChargeRequest{
		CustomerID:          customerID,
		SourceID:            sourceID,
		AmountMinorUnits:    amountMinor,
		Description:         description,
		StatementDescriptor: statementDescriptor,
		IdempotencyKey:      idempotencyKey,
	})
}

func (s *ChargeService) charge(ctx context.Context, op string, req billing.ChargeRequest) (billing.ChargeRef, error) {
	if strings.TrimSpace(req.CustomerID) == "" {
		return billing.ChargeRef{}, billing.Validationf(op, "customer id is required")
	}
	if req.AmountMinorUnits <= 0 {
		return billing.ChargeRef{}, billing.Validationf(op, "amount must be positive, got %d", req.AmountMinorUnits)
	}

	req.Currency = s.currency
	if d := billing.TruncateDescriptor(req.StatementDescriptor); d != req.StatementDescriptor {
		s.logger.Debug().
			Str("descriptor", req.StatementDescriptor).
			Str("truncated", d).
			Msg("statement descriptor truncated")
		req.StatementDescriptor = d
	}

	ch, err := s.processor.CreateCharge(ctx, req)
	if err != nil {
		ev := s.logger.Warn()
		if billing.IsKind(err, billing.KindDeclined) {
			ev = s.logger.Info()
		}
		ev.Err(err).
			Str("customer_id", req.CustomerID).
			Int64("amount", req.AmountMinorUnits).
			Msg("charge failed")
		return billing.ChargeRef{}, fmt.Errorf("charge %s: %w", req.CustomerID, err)
	}

	s.logger.Info().
		Str("charge_id", ch.ID).
		Str("customer_id", req.CustomerID).
		Str("source_id", req.SourceID).
		Int64("amount", ch.AmountMinorUnits).
		Str("currency", req.Currency).
		Msg("charge created")
	return ch, nil
}
