package payment

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"sort"
	"sync"

	"github.com/artpar/paycore/domain/billing"
	"github.com/artpar/paycore/ports"
)

// MemoryProcessor is an in-process processor for development and tests.
// It mirrors the Stripe semantics the billing core relies on: caller-keyed
// products and plans conflict on duplicate create, idempotency keys replay
// the first result, cancelled subscriptions stay retrievable, and coupon
// metadata updates merge.
type MemoryProcessor struct {
	currency string
	ids      ports.IDGenerator
	clock    ports.Clock

	mu            sync.Mutex
	products      map[string]billing.ProductRef
	plans         map[string]billing.PlanRef
	customers     map[string]billing.RemoteCustomer
	sources       map[string]billing.PaymentSourceRef
	subscriptions map[string]billing.SubscriptionRef
	charges       map[string]billing.ChargeRef
	coupons       map[string]billing.CouponRef
	ledger        []billing.LedgerEntry
	idempotency   map[string]string
	declined      map[string]bool
	failures      map[string][]error
	calls         map[string]int
	lastCharge    billing.ChargeRequest
}

// NewMemoryProcessor creates an empty in-memory processor.
func NewMemoryProcessor(currency string, ids ports.IDGenerator, clock ports.Clock) *MemoryProcessor {
	return &MemoryProcessor{
		currency:      billing.NewMoney(currency, 0).Currency,
		ids:           ids,
		clock:         clock,
		products:      make(map[string]billing.ProductRef),
		plans:         make(map[string]billing.PlanRef),
		customers:     make(map[string]billing.RemoteCustomer),
		sources:       make(map[string]billing.PaymentSourceRef),
		subscriptions: make(map[string]billing.SubscriptionRef),
		charges:       make(map[string]billing.ChargeRef),
		coupons:       make(map[string]billing.CouponRef),
		idempotency:   make(map[string]string),
		declined:      make(map[string]bool),
		failures:      make(map[string][]error),
		calls:         make(map[string]int),
	}
}

// Name returns the processor name.
func (p *MemoryProcessor) Name() string {
	return "memory"
}

// FailNext makes the next call of op return err. Calls queue in order.
func (p *MemoryProcessor) FailNext(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[op] = append(p.failures[op], err)
}

// DeclineCustomer makes every charge against customerID fail as declined.
func (p *MemoryProcessor) DeclineCustomer(customerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.declined[customerID] = true
}

// AddLedgerEntry seeds a balance transaction.
func (p *MemoryProcessor) AddLedgerEntry(e billing.LedgerEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e.ID == "" {
		e.ID = "txn_" + p.ids.New()
	}
	if e.Currency == "" {
		e.Currency = p.currency
	}
	p.ledger = append(p.ledger, e)
}

// Calls returns how many times op was invoked.
func (p *MemoryProcessor) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

// LastCharge returns the last charge request received.
func (p *MemoryProcessor) LastCharge() billing.ChargeRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCharge
}

// begin counts the call and pops an injected failure. Callers hold p.mu.
func (p *MemoryProcessor) begin(ctx context.Context, op string) error {
	p.calls[op]++
	if err := ctx.Err(); err != nil {
		return billing.WrapError(billing.KindTransient, op, err)
	}
	if q := p.failures[op]; len(q) > 0 {
		p.failures[op] = q[1:]
		return Classify(op, q[0])
	}
	return nil
}

// replay returns the resource id stored under an idempotency key.
func (p *MemoryProcessor) replay(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	id, ok := p.idempotency[key]
	return id, ok
}

func (p *MemoryProcessor) remember(key, id string) {
	if key != "" {
		p.idempotency[key] = id
	}
}

func missing(op, what, id string) error {
	return &billing.Error{
		Kind: billing.KindNotFound,
		Op:   op,
		Code: "resource_missing",
		Msg:  fmt.Sprintf("No such %s: '%s'", what, id),
	}
}

func exists(op, what, id string) error {
	return &billing.Error{
		Kind: billing.KindConflict,
		Op:   op,
		Code: "resource_already_exists",
		Msg:  fmt.Sprintf("%s already exists: '%s'", what, id),
	}
}

// GetProduct implements ports.Products.
func (p *MemoryProcessor) GetProduct(ctx context.Context, id string) (billing.ProductRef, error) {
	const op = "get_product"
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(ctx, op); err != nil {
		return billing.ProductRef{}, err
	}
	prod, ok := p.products[id]
	if !ok {
		return billing.ProductRef{}, missing(op, "product", id)
	}
	return prod, nil
}

// CreateProduct implements ports.Products.
func (p *MemoryProcessor) CreateProduct(ctx context.Context, ref billing.ProductRef) (billing.ProductRef, error) {
	const op = "create_product"
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(ctx, op); err != nil {
		return billing.ProductRef{}, err
	}
	if ref.ID == "" {
		ref.ID = "prod_" + p.ids.New()
	}
	if _, ok := p.products[ref.ID]; ok {
		return billing.ProductRef{}, exists(op, "Product", ref.ID)
	}
	p.products[ref.ID] = ref
	return ref, nil
}

// GetPlan implements ports.Plans.
func (p *MemoryProcessor) GetPlan(ctx context.Context, id string) (billing.PlanRef, error) {
	const op = "get_plan"
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(ctx, op); err != nil {
		return billing.PlanRef{}, err
	}
	plan, ok := p.plans[id]
	if !ok {
		return billing.PlanRef{}, missing(op, "plan", id)
	}
	return plan, nil
}

// CreatePlan implements ports.Plans.
func (p *MemoryProcessor) CreatePlan(ctx context.Context, ref billing.PlanRef) (billing.PlanRef, error) {
	const op = "create_plan"
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(ctx, op); err != nil {
		return billing.PlanRef{}, err
	}
	if _, ok := p.plans[ref.ID]; ok {
		return billing.PlanRef{}, exists(op, "Plan", ref.ID)
	}
	if _, ok := p.products[ref.ProductID]; !ok {
		return billing.PlanRef{}, missing(op, "product", ref.ProductID)
	}
	if ref.Currency == "" {
		ref.Currency = p.currency
	}
	p.plans[ref.ID] = ref
	return ref, nil
}

// DeletePlan implements ports.Plans.
func (p *MemoryProcessor) DeletePlan(ctx context.Context, id string) error {
	const op = "delete_plan"
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(ctx, op); err != nil {
		return err
	}
	if _, ok := p.plans[id]; !ok {
		return missing(op, "plan", id)
	}
	delete(p.plans, id)
	return nil
}

// GetCustomer implements ports.Customers.
func (p *MemoryProcessor) GetCustomer(ctx context.Context, id string) (billing.RemoteCustomer, error) {
	const op = "get_customer"
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(ctx, op); err != nil {
		return billing.RemoteCustomer{}, err
	}
	c, ok := p.customers[id]
	if !ok || c.Deleted {
		return billing.RemoteCustomer{}, missing(op, "customer", id)
	}
	return c, nil
}

// CreateCustomer implements ports.Customers.
func (p *MemoryProcessor) CreateCustomer(ctx context.Context, cp billing.CustomerParams) (billing.RemoteCustomer, error) {
	const op = "create_customer"
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(ctx, op); err != nil {
		return billing.RemoteCustomer{}, err
	}
	if id, ok := p.replay(cp.IdempotencyKey); ok {
		return p.customers[id], nil
	}
	if cp.CouponID != "" {
		if _, ok := p.coupons[cp.CouponID]; !ok {
			return billing.RemoteCustomer{}, missing(op, "coupon", cp.CouponID)
		}
	}
	c := billing.RemoteCustomer{
		ID:      "cus_" + p.ids.New(),
		Email:   cp.Email,
		LocalID: cp.LocalID,
	}
	p.customers[c.ID] = c
	p.remember(cp.IdempotencyKey, c.ID)
	return c, nil
}

// FindCustomerByLocalID implements ports.Customers.
func (p *MemoryProcessor) FindCustomerByLocalID(ctx context.Context, localID, email string) (billing.RemoteCustomer, error) {
	const op = "find_customer"
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(ctx, op); err != nil {
		return billing.RemoteCustomer{}, err
	}
	for _, c := range p.customers {
		if !c.Deleted && c.Email == email && c.LocalID == localID {
			return c, nil
		}
	}
	return billing.RemoteCustomer{}, missing(op, "customer for local id", localID)
}

// SetDefaultSource implements ports.Customers.
func (p *MemoryProcessor) SetDefaultSource(ctx context.Context, customerID, source string) (billing.RemoteCustomer, error) {
	const op = "set_default_source"
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(ctx, op); err != nil {
		return billing.RemoteCustomer{}, err
	}
	c, ok := p.customers[customerID]
	if !ok || c.Deleted {
		return billing.RemoteCustomer{}, missing(op, "customer", customerID)
	}
	c.DefaultSource = source
	p.customers[customerID] = c
	return c, nil
}

// DeleteCustomer marks a customer deleted, as the dashboard would.
func (p *MemoryProcessor) DeleteCustomer(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.customers[id]; ok {
		c.Deleted = true
		p.customers[id] = c
	}
}

// CreateSepaSource implements ports.Sources.
func (p *MemoryProcessor) CreateSepaSource(ctx context.Context, sp billing.SepaSourceParams) (billing.PaymentSourceRef, error) {
	const op = "create_source"
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(ctx, op); err != nil {
		return billing.PaymentSourceRef{}, err
	}
	if len(sp.IBAN) < 15 {
		return billing.PaymentSourceRef{}, &billing.Error{
			Kind: billing.KindValidation, Op: op, Code: "invalid_bank_account_iban", Msg: "The IBAN provided is invalid.",
		}
	}
	src := billing.PaymentSourceRef{ID: "src_" + p.ids.New(), Kind: billing.SourceKindSepaDebit, OwnerName: sp.OwnerName}
	p.sources[src.ID] = src
	return src, nil
}

// GetSubscription implements ports.Subscriptions.
func (p *MemoryProcessor) GetSubscription(ctx context.Context, id string) (billing.SubscriptionRef, error) {
	const op = "get_subscription"
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(ctx, op); err != nil {
		return billing.SubscriptionRef{}, err
	}
	sub, ok := p.subscriptions[id]
	if !ok {
		return billing.SubscriptionRef{}, missing(op, "subscription", id)
	}
	return sub, nil
}

// CreateSubscription implements ports.Subscriptions.
func (p *MemoryProcessor) CreateSubscription(ctx context.Context, r billing.SubscriptionRequest) (billing.SubscriptionRef, error) {
	const op = "create_subscription"
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(ctx, op); err != nil {
		return billing.SubscriptionRef{}, err
	}
	if id, ok := p.replay(r.IdempotencyKey); ok {
		return p.subscriptions[id], nil
	}
	if c, ok := p.customers[r.CustomerID]; !ok || c.Deleted {
		return billing.SubscriptionRef{}, missing(op, "customer", r.CustomerID)
	}
	if _, ok := p.plans[r.PlanID]; !ok {
		return billing.SubscriptionRef{}, missing(op, "plan", r.PlanID)
	}
	if r.CouponID != "" {
		if _, ok := p.coupons[r.CouponID]; !ok {
			return billing.SubscriptionRef{}, missing(op, "coupon", r.CouponID)
		}
	}

	status := billing.SubscriptionStatusActive
	if r.TrialEndEpoch > p.clock.Now().Unix() {
		status = billing.SubscriptionStatusTrialing
	}
	sub := billing.SubscriptionRef{
		ID:            "sub_" + p.ids.New(),
		CustomerID:    r.CustomerID,
		PlanID:        r.PlanID,
		Quantity:      r.Quantity,
		CouponID:      r.CouponID,
		TrialEndEpoch: r.TrialEndEpoch,
		Status:        status,
	}
	p.subscriptions[sub.ID] = sub
	p.remember(r.IdempotencyKey, sub.ID)
	return sub, nil
}

// UpdateSubscriptionPlan implements ports.Subscriptions.
func (p *MemoryProcessor) UpdateSubscriptionPlan(ctx context.Context, id, planID string) (billing.SubscriptionRef, error) {
	const op = "update_subscription"
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(ctx, op); err != nil {
		return billing.SubscriptionRef{}, err
	}
	sub, ok := p.subscriptions[id]
	if !ok {
		return billing.SubscriptionRef{}, missing(op, "subscription", id)
	}
	if sub.Cancelled() {
		return billing.SubscriptionRef{}, &billing.Error{
			Kind: billing.KindValidation, Op: op,
			Msg: "A canceled subscription can only update its cancellation_details and metadata.",
		}
	}
	if _, ok := p.plans[planID]; !ok {
		return billing.SubscriptionRef{}, missing(op, "plan", planID)
	}
	sub.PlanID = planID
	p.subscriptions[id] = sub
	return sub, nil
}

// CancelSubscription implements ports.Subscriptions.
func (p *MemoryProcessor) CancelSubscription(ctx context.Context, id string) (billing.SubscriptionRef, error) {
	const op = "cancel_subscription"
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(ctx, op); err != nil {
		return billing.SubscriptionRef{}, err
	}
	sub, ok := p.subscriptions[id]
	if !ok || sub.Cancelled() {
		return billing.SubscriptionRef{}, missing(op, "subscription", id)
	}
	sub.Status = billing.SubscriptionStatusCancelled
	p.subscriptions[id] = sub
	return sub, nil
}

// CreateCharge implements ports.Charges.
func (p *MemoryProcessor) CreateCharge(ctx context.Context, r billing.ChargeRequest) (billing.ChargeRef, error) {
	const op = "create_charge"
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(ctx, op); err != nil {
		return billing.ChargeRef{}, err
	}
	p.lastCharge = r
	if id, ok := p.replay(r.IdempotencyKey); ok {
		return p.charges[id], nil
	}
	c, ok := p.customers[r.CustomerID]
	if !ok || c.Deleted {
		return billing.ChargeRef{}, missing(op, "customer", r.CustomerID)
	}
	if r.SourceID != "" {
		if _, ok := p.sources[r.SourceID]; !ok {
			return billing.ChargeRef{}, missing(op, "source", r.SourceID)
		}
	} else if c.DefaultSource == "" {
		return billing.ChargeRef{}, &billing.Error{
			Kind: billing.KindValidation, Op: op, Code: "missing",
			Msg: "Cannot charge a customer that has no active card",
		}
	}
	if p.declined[r.CustomerID] {
		return billing.ChargeRef{}, &billing.Error{
			Kind: billing.KindDeclined, Op: op, Code: "card_declined", DeclineCode: "generic_decline",
			HTTPStatus: 402, Msg: "Your card was declined.",
		}
	}

	ch := billing.ChargeRef{
		ID:                  "ch_" + p.ids.New(),
		AmountMinorUnits:    r.AmountMinorUnits,
		CustomerID:          r.CustomerID,
		SourceID:            r.SourceID,
		Description:         r.Description,
		StatementDescriptor: r.StatementDescriptor,
		Status:              "succeeded",
	}
	p.charges[ch.ID] = ch
	p.remember(r.IdempotencyKey, ch.ID)
	p.ledger = append(p.ledger, billing.LedgerEntry{
		ID:               "txn_" + p.ids.New(),
		CreatedEpoch:     p.clock.Now().Unix(),
		Type:             "charge",
		AmountMinorUnits: r.AmountMinorUnits,
		Currency:         p.currency,
	})
	return ch, nil
}

// GetCoupon implements ports.Coupons.
func (p *MemoryProcessor) GetCoupon(ctx context.Context, id string) (billing.CouponRef, error) {
	const op = "get_coupon"
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(ctx, op); err != nil {
		return billing.CouponRef{}, err
	}
	c, ok := p.coupons[id]
	if !ok {
		return billing.CouponRef{}, missing(op, "coupon", id)
	}
	return billing.CouponRef{ID: c.ID, Metadata: maps.Clone(c.Metadata)}, nil
}

// CreateCoupon implements ports.Coupons.
func (p *MemoryProcessor) CreateCoupon(ctx context.Context, spec billing.CouponSpec) (billing.CouponRef, error) {
	const op = "create_coupon"
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(ctx, op); err != nil {
		return billing.CouponRef{}, err
	}
	if id, ok := p.replay(spec.IdempotencyKey); ok {
		return p.coupons[id], nil
	}
	if (spec.PercentOff > 0) == (spec.AmountOff > 0) {
		return billing.CouponRef{}, &billing.Error{
			Kind: billing.KindValidation, Op: op, Code: "parameter_missing",
			Msg: "Exactly one of percent_off or amount_off is required.",
		}
	}
	id := spec.ID
	if id == "" {
		id = p.ids.New()
	}
	if _, ok := p.coupons[id]; ok {
		return billing.CouponRef{}, exists(op, "Coupon", id)
	}
	c := billing.CouponRef{ID: id, Metadata: maps.Clone(spec.Metadata)}
	if c.Metadata == nil {
		c.Metadata = map[string]string{}
	}
	p.coupons[id] = c
	p.remember(spec.IdempotencyKey, id)
	return billing.CouponRef{ID: id, Metadata: maps.Clone(c.Metadata)}, nil
}

// UpdateCouponMetadata implements ports.Coupons.
func (p *MemoryProcessor) UpdateCouponMetadata(ctx context.Context, id string, md map[string]string) (billing.CouponRef, error) {
	const op = "update_coupon"
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(ctx, op); err != nil {
		return billing.CouponRef{}, err
	}
	c, ok := p.coupons[id]
	if !ok {
		return billing.CouponRef{}, missing(op, "coupon", id)
	}
	maps.Copy(c.Metadata, md)
	p.coupons[id] = c
	return billing.CouponRef{ID: id, Metadata: maps.Clone(c.Metadata)}, nil
}

// ListBalanceTransactions implements ports.Ledger. Entries come newest first.
func (p *MemoryProcessor) ListBalanceTransactions(ctx context.Context, f billing.LedgerFilter) iter.Seq2[billing.LedgerEntry, error] {
	const op = "list_balance_transactions"

	return func(yield func(billing.LedgerEntry, error) bool) {
		p.mu.Lock()
		if err := p.begin(ctx, op); err != nil {
			p.mu.Unlock()
			yield(billing.LedgerEntry{}, err)
			return
		}
		var page []billing.LedgerEntry
		for _, e := range p.ledger {
			if f.Match(e) {
				page = append(page, e)
			}
		}
		p.mu.Unlock()

		sort.SliceStable(page, func(i, j int) bool {
			return page[i].CreatedEpoch > page[j].CreatedEpoch
		})
		if f.Limit > 0 && int64(len(page)) > f.Limit {
			page = page[:f.Limit]
		}
		for _, e := range page {
			if !yield(e, nil) {
				return
			}
		}
	}
}

// CreateCheckoutSession implements ports.Checkout.
func (p *MemoryProcessor) CreateCheckoutSession(ctx context.Context, r billing.CheckoutRequest) (billing.CheckoutSession, error) {
	const op = "create_checkout_session"
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(ctx, op); err != nil {
		return billing.CheckoutSession{}, err
	}
	if _, ok := p.plans[r.PlanID]; !ok {
		return billing.CheckoutSession{}, missing(op, "price", r.PlanID)
	}
	// No hosted page exists in memory mode; send the payer straight to success.
	return billing.CheckoutSession{ID: "cs_" + p.ids.New(), URL: r.SuccessURL}, nil
}

var _ ports.Processor = (*MemoryProcessor)(nil)
