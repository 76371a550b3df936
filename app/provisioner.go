// Package app contains the billing services that orchestrate processor calls.
//
// Services are stateless: each operation is an independent unit of work that
// is safe to call concurrently. All remote failures arrive already classified
// as *billing.Error and are returned to the caller, never collapsed.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/paycore/domain/billing"
	"github.com/artpar/paycore/ports"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ProvisionerProcessor is the processor surface the provisioner needs.
type ProvisionerProcessor interface {
	ports.Products
	ports.Plans
	ports.Customers
	ports.Sources
}

// ProvisionerService ensures products, plans and customers exist remotely,
// and mints payment sources.
//
// Provisioning is idempotent: an existing resource is returned unchanged,
// a missing one is created, and a create that loses a race (Conflict) is
// resolved by reading the winner's resource.
type ProvisionerService struct {
	processor ProvisionerProcessor
	money     billing.Money
	logger    zerolog.Logger

	// customers coalesces concurrent EnsureCustomer calls per local id.
	customers singleflight.Group
}

// NewProvisionerService creates a new provisioner.
func NewProvisionerService(processor ProvisionerProcessor, money billing.Money, logger zerolog.Logger) *ProvisionerService {
	return &ProvisionerService{
		processor: processor,
		money:     money,
		logger:    logger,
	}
}

// ensure runs the provisioning protocol shared by products and plans.
func ensure[T any](ctx context.Context, get func(context.Context) (T, error), create func(context.Context) (T, error)) (T, bool, error) {
	v, err := get(ctx)
	if err == nil {
		return v, false, nil
	}
	if !errors.Is(err, billing.ErrNotFound) {
		return v, false, err
	}

	v, err = create(ctx)
	if err == nil {
		return v, true, nil
	}
	if !errors.Is(err, billing.ErrConflict) {
		return v, false, err
	}

	// Someone else created it between our read and our create.
	v, err = get(ctx)
	return v, false, err
}

// EnsureProduct returns the product with ref.ID, creating it if missing.
// An existing product is never updated, even if its name differs.
func (s *ProvisionerService) EnsureProduct(ctx context.Context, ref billing.ProductRef) (billing.ProductRef, error) {
	if strings.TrimSpace(ref.ID) == "" {
		return billing.ProductRef{}, billing.Validationf("ensure_product", "product id is required")
	}
	if strings.TrimSpace(ref.Name) == "" {
		return billing.ProductRef{}, billing.Validationf("ensure_product", "product name is required")
	}

	prod, created, err := ensure(ctx,
		func(ctx context.Context) (billing.ProductRef, error) { return s.processor.GetProduct(ctx, ref.ID) },
		func(ctx context.Context) (billing.ProductRef, error) { return s.processor.CreateProduct(ctx, ref) },
	)
	if err != nil {
		return billing.ProductRef{}, fmt.Errorf("ensure product %s: %w", ref.ID, err)
	}

	s.logger.Info().
		Str("product_id", prod.ID).
		Bool("created", created).
		Msg("product provisioned")
	return prod, nil
}

// EnsurePlan returns the plan with spec.ID, creating it if missing.
// spec.Amount is in major units and is converted with the configured multiplier.
func (s *ProvisionerService) EnsurePlan(ctx context.Context, spec billing.PlanSpec) (billing.PlanRef, error) {
	const op = "ensure_plan"

	if strings.TrimSpace(spec.ID) == "" {
		return billing.PlanRef{}, billing.Validationf(op, "plan id is required")
	}
	if strings.TrimSpace(spec.ProductID) == "" {
		return billing.PlanRef{}, billing.Validationf(op, "product id is required for plan %s", spec.ID)
	}
	interval, err := billing.ParseInterval(string(spec.Interval))
	if err != nil {
		return billing.PlanRef{}, err
	}
	amount, err := s.money.ToMinor(spec.Amount)
	if err != nil {
		return billing.PlanRef{}, err
	}

	want := billing.PlanRef{
		ID:               spec.ID,
		Name:             spec.Name,
		AmountMinorUnits: amount,
		Interval:         interval,
		ProductID:        spec.ProductID,
		Currency:         s.money.Currency,
	}

	plan, created, err := ensure(ctx,
		func(ctx context.Context) (billing.PlanRef, error) { return s.processor.GetPlan(ctx, spec.ID) },
		func(ctx context.Context) (billing.PlanRef, error) { return s.processor.CreatePlan(ctx, want) },
	)
	if err != nil {
		return billing.PlanRef{}, fmt.Errorf("ensure plan %s: %w", spec.ID, err)
	}

	if !created && (plan.AmountMinorUnits != want.AmountMinorUnits || plan.Interval != want.Interval) {
		s.logger.Warn().
			Str("plan_id", plan.ID).
			Int64("remote_amount", plan.AmountMinorUnits).
			Int64("local_amount", want.AmountMinorUnits).
			Str("remote_interval", string(plan.Interval)).
			Str("local_interval", string(want.Interval)).
			Msg("existing plan differs from local definition; plans are immutable, keeping remote")
	}

	s.logger.Info().
		Str("plan_id", plan.ID).
		Str("product_id", plan.ProductID).
		Int64("amount", plan.AmountMinorUnits).
		Bool("created", created).
		Msg("plan provisioned")
	return plan, nil
}

// DeletePlan removes a plan. Deleting a missing plan is a NotFound error.
func (s *ProvisionerService) DeletePlan(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return billing.Validationf("delete_plan", "plan id is required")
	}
	if _, err := s.processor.GetPlan(ctx, id); err != nil {
		return fmt.Errorf("delete plan %s: %w", id, err)
	}
	if err := s.processor.DeletePlan(ctx, id); err != nil {
		return fmt.Errorf("delete plan %s: %w", id, err)
	}

	s.logger.Info().Str("plan_id", id).Msg("plan deleted")
	return nil
}

// EnsureCatalog provisions all products, then all plans, each batch
// concurrently. The first failure cancels the rest of its batch.
func (s *ProvisionerService) EnsureCatalog(ctx context.Context, products []billing.ProductRef, plans []billing.PlanSpec) ([]billing.PlanRef, error) {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range products {
		g.Go(func() error {
			_, err := s.EnsureProduct(gctx, p)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]billing.PlanRef, len(plans))
	g, gctx = errgroup.WithContext(ctx)
	for i, spec := range plans {
		g.Go(func() error {
			plan, err := s.EnsurePlan(gctx, spec)
			if err != nil {
				return err
			}
			out[i] = plan
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EnsureCustomer returns the remote id for a local customer, creating the
// remote customer on first use.
//
// A customer that already has a remote id is only verified: if the remote
// customer is gone the NotFound error is returned and no replacement is
// minted, so a local record is never rebound to a second identity.
func (s *ProvisionerService) EnsureCustomer(ctx context.Context, customer billing.CustomerRef, couponID string) (string, error) {
	const op = "ensure_customer"

	if strings.TrimSpace(customer.LocalID) == "" {
		return "", billing.Validationf(op, "local customer id is required")
	}

	if customer.Provisioned() {
		c, err := s.processor.GetCustomer(ctx, customer.RemoteID)
		if err != nil {
			return "", fmt.Errorf("ensure customer %s: %w", customer.LocalID, err)
		}
		s.logger.Info().
			Str("local_id", customer.LocalID).
			Str("customer_id", c.ID).
			Msg("customer verified")
		return c.ID, nil
	}

	if !strings.Contains(customer.Email, "@") {
		return "", billing.Validationf(op, "customer %s has no valid email", customer.LocalID)
	}

	// The shared create outlives any single caller; each caller only stops
	// waiting when its own context ends.
	ch := s.customers.DoChan(customer.LocalID, func() (any, error) {
		return s.createCustomer(context.WithoutCancel(ctx), customer, couponID)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("ensure customer %s: %w", customer.LocalID,
			billing.WrapError(billing.KindTransient, op, ctx.Err()))
	case res = <-ch:
	}
	if res.Err != nil {
		return "", fmt.Errorf("ensure customer %s: %w", customer.LocalID, res.Err)
	}

	remoteID := res.Val.(string)
	s.logger.Info().
		Str("local_id", customer.LocalID).
		Str("customer_id", remoteID).
		Bool("shared", res.Shared).
		Msg("customer provisioned")
	return remoteID, nil
}

// createCustomer creates the remote customer under an idempotency key
// derived from the local id, so replays across processes converge on the
// first customer. A Conflict (key reused with different parameters) falls
// back to looking the customer up by its local id tag.
func (s *ProvisionerService) createCustomer(ctx context.Context, customer billing.CustomerRef, couponID string) (string, error) {
	c, err := s.processor.CreateCustomer(ctx, billing.CustomerParams{
		Email:          customer.Email,
		CouponID:       couponID,
		LocalID:        customer.LocalID,
		IdempotencyKey: CustomerIdempotencyKey(customer.LocalID),
	})
	if err == nil {
		return c.ID, nil
	}
	if !errors.Is(err, billing.ErrConflict) {
		return "", err
	}

	c, err = s.processor.FindCustomerByLocalID(ctx, customer.LocalID, customer.Email)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// CustomerIdempotencyKey is the processor idempotency key used when creating
// the remote customer for a local record.
func CustomerIdempotencyKey(localID string) string {
	return "customer-" + localID
}

// CreatePaymentSourceByIBAN mints a new SEPA debit source.
// Each call creates a new source; do not retry blindly on ambiguous failures.
func (s *ProvisionerService) CreatePaymentSourceByIBAN(ctx context.Context, iban, ownerName string) (billing.PaymentSourceRef, error) {
	iban = normalizeIBAN(iban)
	if iban == "" {
		return billing.PaymentSourceRef{}, billing.Validationf("create_source", "iban is required")
	}
	if strings.TrimSpace(ownerName) == "" {
		return billing.PaymentSourceRef{}, billing.Validationf("create_source", "iban owner name is required")
	}

	src, err := s.processor.CreateSepaSource(ctx, billing.SepaSourceParams{
		IBAN:      iban,
		OwnerName: ownerName,
		Currency:  s.money.Currency,
	})
	if err != nil {
		return billing.PaymentSourceRef{}, fmt.Errorf("create sepa source: %w", err)
	}

	s.logger.Info().Str("source_id", src.ID).Msg("sepa source created")
	return src, nil
}

// UpdateCard replaces the customer's default payment method with a card
// token from client-side tokenization.
func (s *ProvisionerService) UpdateCard(ctx context.Context, customer billing.CustomerRef, token string) error {
	if !customer.Provisioned() {
		return billing.Validationf("update_card", "customer %s is not provisioned", customer.LocalID)
	}
	if strings.TrimSpace(token) == "" {
		return billing.Validationf("update_card", "card token is required")
	}

	if _, err := s.processor.SetDefaultSource(ctx, customer.RemoteID, token); err != nil {
		return fmt.Errorf("update card for %s: %w", customer.RemoteID, err)
	}

	s.logger.Info().Str("customer_id", customer.RemoteID).Msg("default card updated")
	return nil
}

// UpdateSource mints a SEPA source from iban and makes it the customer's
// default payment method. The source is returned even when attaching fails,
// so the caller can see what was minted.
func (s *ProvisionerService) UpdateSource(ctx context.Context, customer billing.CustomerRef, iban, ownerName string) (billing.PaymentSourceRef, error) {
	if !customer.Provisioned() {
		return billing.PaymentSourceRef{}, billing.Validationf("update_source", "customer %s is not provisioned", customer.LocalID)
	}
	if _, err := s.processor.GetCustomer(ctx, customer.RemoteID); err != nil {
		return billing.PaymentSourceRef{}, fmt.Errorf("update source for %s: %w", customer.RemoteID, err)
	}

	src, err := s.CreatePaymentSourceByIBAN(ctx, iban, ownerName)
	if err != nil {
		return billing.PaymentSourceRef{}, err
	}
	if _, err := s.processor.SetDefaultSource(ctx, customer.RemoteID, src.ID); err != nil {
		return src, fmt.Errorf("attach source %s to %s: %w", src.ID, customer.RemoteID, err)
	}

	s.logger.Info().
		Str("customer_id", customer.RemoteID).
		Str("source_id", src.ID).
		Msg("default sepa source updated")
	return src, nil
}

func normalizeIBAN(iban string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(iban), " ", ""))
}
