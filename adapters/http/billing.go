package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/artpar/paycore/app"
	"github.com/artpar/paycore/domain/billing"
	"github.com/artpar/paycore/ports"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// BillingHandler serves the billing API.
//
// Customers are addressed by their local id. The handler resolves the local
// record, calls the billing core with it, and writes remote and subscription
// ids back to the store.
type BillingHandler struct {
	provisioner   *app.ProvisionerService
	subscriptions *app.SubscriptionService
	charges       *app.ChargeService
	coupons       *app.CouponService
	ledger        *app.LedgerService
	checkout      *app.CheckoutService
	customers     ports.CustomerStore
	chargeLog     ports.ChargeLog
	clock         ports.Clock
	currency      string
	logger        zerolog.Logger
}

// Deps contains dependencies for the billing handler.
type Deps struct {
	Provisioner   *app.ProvisionerService
	Subscriptions *app.SubscriptionService
	Charges       *app.ChargeService
	Coupons       *app.CouponService
	Ledger        *app.LedgerService
	Checkout      *app.CheckoutService
	Customers     ports.CustomerStore
	ChargeLog     ports.ChargeLog
	Clock         ports.Clock
	Currency      string
	Logger        zerolog.Logger
}

// NewBillingHandler creates a new billing API handler.
func NewBillingHandler(deps Deps) *BillingHandler {
	return &BillingHandler{
		provisioner:   deps.Provisioner,
		subscriptions: deps.Subscriptions,
		charges:       deps.Charges,
		coupons:       deps.Coupons,
		ledger:        deps.Ledger,
		checkout:      deps.Checkout,
		customers:     deps.Customers,
		chargeLog:     deps.ChargeLog,
		clock:         deps.Clock,
		currency:      deps.Currency,
		logger:        deps.Logger,
	}
}

// Router returns the billing API router.
func (h *BillingHandler) Router() chi.Router {
	r := chi.NewRouter()

	// Catalog
	r.Put("/products/{id}", h.EnsureProduct)
	r.Put("/plans/{id}", h.EnsurePlan)
	r.Delete("/plans/{id}", h.DeletePlan)

	// Customers
	r.Put("/customers/{localID}", h.EnsureCustomer)
	r.Put("/customers/{localID}/card", h.UpdateCard)
	r.Put("/customers/{localID}/source", h.UpdateSource)
	r.Put("/customers/{localID}/subscription", h.UpsertSubscription)
	r.Delete("/customers/{localID}/subscription", h.CancelSubscription)
	r.Post("/customers/{localID}/charges", h.CreateCharge)
	r.Get("/customers/{localID}/charges", h.ListCharges)

	// Payment sources
	r.Post("/sources", h.CreateSource)

	// Coupons
	r.Post("/coupons", h.CreateCoupon)
	r.Put("/coupons/{id}/redeem-by", h.UpdateRedeemBy)

	// Ledger
	r.Get("/ledger/balance", h.ListBalance)
	r.Get("/ledger/payouts", h.ListPayouts)

	// Checkout
	r.Post("/checkout/sessions", h.CreateCheckoutSession)

	return r
}

// -----------------------------------------------------------------------------
// Responses
// -----------------------------------------------------------------------------

// PlanResponse is a provisioned plan.
type PlanResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Interval  string `json:"interval"`
	ProductID string `json:"product_id"`
}

// CustomerResponse is a local customer and its bindings.
type CustomerResponse struct {
	LocalID        string `json:"local_id"`
	Email          string `json:"email"`
	CustomerID     string `json:"customer_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

// SubscriptionResponse is a subscription snapshot.
type SubscriptionResponse struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	PlanID     string `json:"plan_id"`
	Quantity   int64  `json:"quantity"`
	CouponID   string `json:"coupon_id,omitempty"`
	TrialEnd   int64  `json:"trial_end,omitempty"`
	Status     string `json:"status"`
}

// ChargeResponse is a submitted charge.
type ChargeResponse struct {
	ID                  string    `json:"id"`
	Amount              int64     `json:"amount"`
	Currency            string    `json:"currency"`
	CustomerID          string    `json:"customer_id"`
	SourceID            string    `json:"source_id,omitempty"`
	Description         string    `json:"description,omitempty"`
	StatementDescriptor string    `json:"statement_descriptor,omitempty"`
	Status              string    `json:"status"`
	CreatedAt           time.Time `json:"created_at,omitempty"`
}

// LedgerEntryResponse is a balance transaction.
type LedgerEntryResponse struct {
	ID       string `json:"id"`
	Created  int64  `json:"created"`
	Type     string `json:"type"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func planResponse(p billing.PlanRef) PlanResponse {
	return PlanResponse{
		ID:        p.ID,
		Name:      p.Name,
		Amount:    p.AmountMinorUnits,
		Currency:  p.Currency,
		Interval:  string(p.Interval),
		ProductID: p.ProductID,
	}
}

func subscriptionResponse(s billing.SubscriptionRef) SubscriptionResponse {
	return SubscriptionResponse{
		ID:         s.ID,
		CustomerID: s.CustomerID,
		PlanID:     s.PlanID,
		Quantity:   s.Quantity,
		CouponID:   s.CouponID,
		TrialEnd:   s.TrialEndEpoch,
		Status:     string(s.Status),
	}
}

func chargeResponse(c billing.ChargeRef, currency string, at time.Time) ChargeResponse {
	return ChargeResponse{
		ID:                  c.ID,
		Amount:              c.AmountMinorUnits,
		Currency:            currency,
		CustomerID:          c.CustomerID,
		SourceID:            c.SourceID,
		Description:         c.Description,
		StatementDescriptor: c.StatementDescriptor,
		Status:              c.Status,
		CreatedAt:           at,
	}
}

// -----------------------------------------------------------------------------
// Catalog
// -----------------------------------------------------------------------------

// EnsureProduct provisions a product.
func (h *BillingHandler) EnsureProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.provisioner.EnsureProduct(r.Context(), billing.ProductRef{ID: chi.URLParam(r, "id"), Name: req.Name})
	if err != nil {
		h.writeBillingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": p.ID, "name": p.Name})
}

// EnsurePlan provisions a plan. The amount is in major units.
func (h *BillingHandler) EnsurePlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string  `json:"name"`
		Amount    float64 `json:"amount"`
		Interval  string  `json:"interval"`
		ProductID string  `json:"product_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.provisioner.EnsurePlan(r.Context(), billing.PlanSpec{
		ID:        chi.URLParam(r, "id"),
		Name:      req.Name,
		Amount:    req.Amount,
		Interval:  billing.Interval(req.Interval),
		ProductID: req.ProductID,
	})
	if err != nil {
		h.writeBillingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, planResponse(p))
}

// DeletePlan removes a plan.
func (h *BillingHandler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	if err := h.provisioner.DeletePlan(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeBillingError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// -----------------------------------------------------------------------------
// Customers
// -----------------------------------------------------------------------------

// EnsureCustomer stores the local record and provisions its remote customer.
func (h *BillingHandler) EnsureCustomer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		CouponID string `json:"coupon_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	localID := chi.URLParam(r, "localID")

	if err := h.customers.Upsert(ctx, ports.CustomerRecord{LocalID: localID, Email: req.Email}); err != nil {
		h.writeBillingError(w, r, err)
		return
	}
	rec, err := h.customers.Get(ctx, localID)
	if err != nil {
		h.writeBillingError(w, r, err)
		return
	}

	remoteID, err := h.provisioner.EnsureCustomer(ctx, rec.Ref(), req.CouponID)
	if err != nil {
		h.writeBillingError(w, r, err)
		return
	}
	if err := h.customers.SetRemoteID(ctx, localID, remoteID); err != nil {
		h.writeBillingError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CustomerResponse{
		LocalID:        localID,
		Email:          rec.Email,
		CustomerID:     remoteID,
		SubscriptionID: rec.SubscriptionID,
	})
}

// UpdateCard sets a card token as the customer's default payment method.
func (h *BillingHandler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	rec, ok := h.record(w, r)
	if !ok {
		return
	}

	if err := h.provisioner.UpdateCard(r.Context(), rec.Ref(), req.Token); err != nil {
		h.writeBillingError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateSource replaces the customer's default payment method with a SEPA source.
func (h *BillingHandler) UpdateSource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IBAN      string `json:"iban"`
		OwnerName string `json:"owner_name"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	rec, ok := h.record(w, r)
	if !ok {
		return
	}

	src, err := h.provisioner.UpdateSource(r.Context(), rec.Ref(), req.IBAN, req.OwnerName)
	if err != nil {
		h.writeBillingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": src.ID, "kind": string(src.Kind)})
}

// CreateSource mints a detached SEPA source.
func (h *BillingHandler) CreateSource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IBAN      string `json:"iban"`
		OwnerName string `json:"owner_name"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	src, err := h.provisioner.CreatePaymentSourceByIBAN(r.Context(), req.IBAN, req.OwnerName)
	if err != nil {
		h.writeBillingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": src.ID, "kind": string(src.Kind)})
}

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

// UpsertSubscription creates the customer's subscription, or moves the
// existing one to the requested plan.
func (h *BillingHandler) UpsertSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlanID   string `json:"plan_id"`
		Quantity *int64 `json:"quantity"`
		CouponID string `json:"coupon_id"`
		TrialEnd int64  `json:"trial_end"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	rec, ok := h.provisioned(w, r)
	if !ok {
		return
	}

	quantity := int64(1)
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	ctx := r.Context()
	sub, err := h.subscriptions.Upsert(ctx, billing.SubscriptionRequest{
		CustomerID:     rec.RemoteID,
		PlanID:         req.PlanID,
		Quantity:       quantity,
		CouponID:       req.CouponID,
		TrialEndEpoch:  req.TrialEnd,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}, rec.SubscriptionID)
	if err != nil {
		h.writeBillingError(w, r, err)
		return
	}

	status := http.StatusOK
	if sub.ID != rec.SubscriptionID {
		status = http.StatusCreated
		if err := h.customers.SetSubscriptionID(ctx, rec.LocalID, sub.ID); err != nil {
			h.logger.Error().Err(err).
				Str("local_id", rec.LocalID).
				Str("subscription_id", sub.ID).
				Msg("failed to record subscription id")
		}
	}
	writeJSON(w, status, subscriptionResponse(sub))
}

// CancelSubscription cancels the customer's current subscription.
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.provisioned(w, r)
	if !ok {
		return
	}
	if rec.SubscriptionID == "" {
		writeError(w, http.StatusNotFound, "not_found", "customer has no subscription")
		return
	}

	ctx := r.Context()
	sub, err := h.subscriptions.Cancel(ctx, rec.SubscriptionID)
	if err != nil {
		h.writeBillingError(w, r, err)
		return
	}
	if err := h.customers.SetSubscriptionID(ctx, rec.LocalID, ""); err != nil {
		h.logger.Error().Err(err).Str("local_id", rec.LocalID).Msg("failed to clear subscription id")
	}
	writeJSON(w, http.StatusOK, subscriptionResponse(sub))
}

// -----------------------------------------------------------------------------
// Charges
// -----------------------------------------------------------------------------

// CreateCharge charges the customer. The amount is in minor units. An
// Idempotency-Key header is passed through to the processor.
func (h *BillingHandler) CreateCharge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount              int64  `json:"amount"`
		SourceID            string `json:"source_id"`
		Description         string `json:"description"`
		StatementDescriptor string `json:"statement_descriptor"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	rec, ok := h.provisioned(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	key := r.Header.Get("Idempotency-Key")

	var (
		ch  billing.ChargeRef
		err error
	)
	if req.SourceID != "" {
		ch, err = h.charges.ChargeBySource(ctx, rec.RemoteID, req.SourceID, req.Amount, req.Description, req.StatementDescriptor, key)
	} else {
		ch, err = h.charges.ChargeByCustomer(ctx, rec.RemoteID, req.Amount, req.Description, req.StatementDescriptor, key)
	}
	if err != nil {
		h.writeBillingError(w, r, err)
		return
	}

	now := h.clock.Now()
	if h.chargeLog != nil {
		if err := h.chargeLog.Record(ctx, ports.ChargeRecord{LocalID: rec.LocalID, Charge: ch, Currency: h.currency, CreatedAt: now}); err != nil {
			h.logger.Error().Err(err).Str("charge_id", ch.ID).Msg("failed to log charge")
		}
	}
	writeJSON(w, http.StatusCreated, chargeResponse(ch, h.currency, now))
}

// ListCharges returns the customer's logged charges, newest first.
func (h *BillingHandler) ListCharges(w http.ResponseWriter, r *http.Request) {
	if h.chargeLog == nil {
		writeError(w, http.StatusNotImplemented, "not_implemented", "charge log is not configured")
		return
	}
	localID := chi.URLParam(r, "localID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.chargeLog.ListByCustomer(r.Context(), localID, limit)
	if err != nil {
		h.writeBillingError(w, r, err)
		return
	}

	out := make([]ChargeResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, chargeResponse(rec.Charge, rec.Currency, rec.CreatedAt))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": out})
}

// -----------------------------------------------------------------------------
// Coupons
// -----------------------------------------------------------------------------

// CreateCoupon creates a coupon.
func (h *BillingHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID               string            `json:"id"`
		Name             string            `json:"name"`
		PercentOff       float64           `json:"percent_off"`
		AmountOff        int64             `json:"amount_off"`
		Currency         string            `json:"currency"`
		Duration         string            `json:"duration"`
		DurationInMonths int64             `json:"duration_in_months"`
		MaxRedemptions   int64             `json:"max_redemptions"`
		RedeemBy         int64             `json:"redeem_by"`
		Metadata         map[string]string `json:"metadata"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.coupons.Create(r.Context(), billing.CouponSpec{
		ID:               req.ID,
		Name:             req.Name,
		PercentOff:       req.PercentOff,
		AmountOff:        req.AmountOff,
		Currency:         req.Currency,
		Duration:         req.Duration,
		DurationInMonths: req.DurationInMonths,
		MaxRedemptions:   req.MaxRedemptions,
		RedeemBy:         req.RedeemBy,
		Metadata:         req.Metadata,
		IdempotencyKey:   r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.writeBillingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": c.ID, "metadata": c.Metadata})
}

// UpdateRedeemBy sets the coupon's redeem_by metadata.
func (h *BillingHandler) UpdateRedeemBy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RedeemBy int64 `json:"redeem_by"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.coupons.UpdateRedeemBy(r.Context(), chi.URLParam(r, "id"), req.RedeemBy)
	if err != nil {
		h.writeBillingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": c.ID, "metadata": c.Metadata})
}

// -----------------------------------------------------------------------------
// Ledger
// -----------------------------------------------------------------------------

// ListBalance lists charge transactions since ?since=dd/mm/yyyy.
func (h *BillingHandler) ListBalance(w http.ResponseWriter, r *http.Request) {
	seq, err := h.ledger.ListBalanceSince(r.Context(), r.URL.Query().Get("since"))
	if err != nil {
		h.writeBillingError(w, r, err)
		return
	}
	entries, err := app.Collect(seq)
	if err != nil {
		h.writeBillingError(w, r, err)
		return
	}

	out := make([]LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, LedgerEntryResponse{ID: e.ID, Created: e.CreatedEpoch, Type: e.Type, Amount: e.AmountMinorUnits, Currency: e.Currency})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": out})
}

// ListPayouts lists charge transactions between ?from= and ?to= (dd/mm/yyyy).
func (h *BillingHandler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	seq, err := h.ledger.ListPayoutsBetween(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeBillingError(w, r, err)
		return
	}
	entries, err := app.Collect(seq)
	if err != nil {
		h.writeBillingError(w, r, err)
		return
	}

	out := make([]LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, LedgerEntryResponse{ID: e.ID, Created: e.CreatedEpoch, Type: e.Type, Amount: e.AmountMinorUnits, Currency: e.Currency})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": out})
}

// -----------------------------------------------------------------------------
// Checkout
// -----------------------------------------------------------------------------

// CreateCheckoutSession starts a hosted checkout for a plan. A known local
// customer is checked out under its remote id, anyone else by e-mail.
func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlanID     string `json:"plan_id"`
		LocalID    string `json:"local_id"`
		Email      string `json:"email"`
		SuccessURL string `json:"success_url"`
		CancelURL  string `json:"cancel_url"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	creq := billing.CheckoutRequest{
		CustomerEmail: req.Email,
		PlanID:        req.PlanID,
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
	}
	if req.LocalID != "" {
		rec, err := h.customers.Get(r.Context(), req.LocalID)
		if err != nil {
			h.writeBillingError(w, r, err)
			return
		}
		creq.CustomerID = rec.RemoteID
		if creq.CustomerEmail == "" {
			creq.CustomerEmail = rec.Email
		}
	}

	sess, err := h.checkout.CreateSession(r.Context(), creq)
	if err != nil {
		h.writeBillingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": sess.ID, "url": sess.URL})
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (h *BillingHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON: "+err.Error())
		return false
	}
	return true
}

func (h *BillingHandler) record(w http.ResponseWriter, r *http.Request) (ports.CustomerRecord, bool) {
	rec, err := h.customers.Get(r.Context(), chi.URLParam(r, "localID"))
	if err != nil {
		h.writeBillingError(w, r, err)
		return ports.CustomerRecord{}, false
	}
	return rec, true
}

// provisioned resolves a customer that already has a remote id.
func (h *BillingHandler) provisioned(w http.ResponseWriter, r *http.Request) (ports.CustomerRecord, bool) {
	rec, ok := h.record(w, r)
	if !ok {
		return rec, false
	}
	if !rec.Ref().Provisioned() {
		writeError(w, http.StatusConflict, "not_provisioned", "customer has no processor account yet")
		return rec, false
	}
	return rec, true
}

// StatusFor maps a billing error kind onto an HTTP status.
func StatusFor(kind billing.ErrorKind) int {
	switch kind {
	case billing.KindNotFound:
		return http.StatusNotFound
	case billing.KindConflict:
		return http.StatusConflict
	case billing.KindValidation:
		return http.StatusBadRequest
	case billing.KindDeclined:
		return http.StatusPaymentRequired
	case billing.KindTransient:
		return http.StatusServiceUnavailable
	case billing.KindAuthFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *BillingHandler) writeBillingError(w http.ResponseWriter, r *http.Request, err error) {
	kind := billing.KindOf(err)
	status := StatusFor(kind)

	code := string(kind)
	var be *billing.Error
	if errors.As(err, &be) && be.Code != "" {
		code = be.Code
	}
	if kind == "" {
		code = "internal_error"
	}

	ev := h.logger.Warn()
	if status >= 500 {
		ev = h.logger.Error()
	}
	ev.Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("billing request failed")

	message := err.Error()
	if kind == billing.KindAuthFailure || kind == "" {
		message = http.StatusText(status)
	}
	writeError(w, status, code, message)
}
