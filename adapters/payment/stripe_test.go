package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/artpar/paycore/domain/billing"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
)

type recordedCall struct {
	op   string
	kind billing.ErrorKind
}

type fakeObserver struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (o *fakeObserver) ObserveCall(op string, kind billing.ErrorKind, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, recordedCall{op: op, kind: kind})
}

// newTestStripe points a processor at an httptest server.
func newTestStripe(t *testing.T, handler http.HandlerFunc) (*StripeProcessor, *fakeObserver) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	obs := &fakeObserver{}
	p := NewStripeProcessor(StripeConfig{
		SecretKey: "sk_test_123",
		Currency:  "eur",
		URL:       srv.URL,
	}, zerolog.Nop(), obs)
	return p, obs
}

func writeStripeError(w http.ResponseWriter, status int, typ, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Request-Id", "req_test")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"type":%q,"code":%q,"message":%q,"decline_code":"insufficient_funds"}}`, typ, code, msg)
}

func TestStripeProcessor_Name(t *testing.T) {
	p := &StripeProcessor{}
	if name := p.Name(); name != "stripe" {
		t.Errorf("Name() = %s, want stripe", name)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want billing.ErrorKind
	}{
		{"resource missing", &stripe.Error{HTTPStatusCode: 404, Type: stripe.ErrorTypeInvalidRequest, Code: stripe.ErrorCodeResourceMissing}, billing.KindNotFound},
		{"bare 404", &stripe.Error{HTTPStatusCode: 404}, billing.KindNotFound},
		{"already exists", &stripe.Error{HTTPStatusCode: 400, Type: stripe.ErrorTypeInvalidRequest, Code: stripe.ErrorCodeResourceAlreadyExists}, billing.KindConflict},
		{"idempotency", &stripe.Error{HTTPStatusCode: 400, Type: stripe.ErrorTypeIdempotency}, billing.KindConflict},
		{"409", &stripe.Error{HTTPStatusCode: 409}, billing.KindConflict},
		{"card error", &stripe.Error{HTTPStatusCode: 402, Type: stripe.ErrorTypeCard, Code: stripe.ErrorCodeCardDeclined}, billing.KindDeclined},
		{"bare 402", &stripe.Error{HTTPStatusCode: 402}, billing.KindDeclined},
		{"unauthorized", &stripe.Error{HTTPStatusCode: 401, Type: stripe.ErrorTypeInvalidRequest}, billing.KindAuthFailure},
		{"forbidden", &stripe.Error{HTTPStatusCode: 403}, billing.KindAuthFailure},
		{"rate limited", &stripe.Error{HTTPStatusCode: 429, Code: stripe.ErrorCodeRateLimit}, billing.KindTransient},
		{"server error", &stripe.Error{HTTPStatusCode: 500, Type: stripe.ErrorTypeAPI}, billing.KindTransient},
		{"api error type", &stripe.Error{HTTPStatusCode: 400, Type: stripe.ErrorTypeAPI}, billing.KindTransient},
		{"invalid request", &stripe.Error{HTTPStatusCode: 400, Type: stripe.ErrorTypeInvalidRequest, Code: stripe.ErrorCodeParameterInvalidInteger}, billing.KindValidation},
		{"network", errors.New("dial tcp: connection refused"), billing.KindTransient},
		{"context", context.DeadlineExceeded, billing.KindTransient},
		{"already classified", billing.NewError(billing.KindDeclined, "x", "y"), billing.KindDeclined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("op", tt.err)
			if kind := billing.KindOf(got); kind != tt.want {
				t.Errorf("kind = %q, want %q", kind, tt.want)
			}
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	if err := Classify("op", nil); err != nil {
		t.Errorf("Classify(nil) = %v, want nil", err)
	}
}

func TestClassify_PreservesDetails(t *testing.T) {
	se := &stripe.Error{
		HTTPStatusCode: 402,
		Type:           stripe.ErrorTypeCard,
		Code:           stripe.ErrorCodeCardDeclined,
		DeclineCode:    stripe.DeclineCodeInsufficientFunds,
		RequestID:      "req_1",
		Msg:            "Your card has insufficient funds.",
	}

	err := Classify("create_charge", se)

	var be *billing.Error
	if !errors.As(err, &be) {
		t.Fatalf("expected *billing.Error, got %T", err)
	}
	if be.DeclineCode != "insufficient_funds" {
		t.Errorf("DeclineCode = %s", be.DeclineCode)
	}
	if be.RequestID != "req_1" || be.HTTPStatus != 402 || be.Op != "create_charge" {
		t.Errorf("unexpected details: %+v", be)
	}
	if !errors.Is(err, se) {
		t.Error("original stripe error should stay in the chain")
	}
}

func TestStripe_GetProductNotFound(t *testing.T) {
	p, obs := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/products/pro" {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeStripeError(w, 404, "invalid_request_error", "resource_missing", "No such product: 'pro'")
	})

	_, err := p.GetProduct(context.Background(), "pro")
	if !errors.Is(err, billing.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if len(obs.calls) != 1 || obs.calls[0].op != "get_product" || obs.calls[0].kind != billing.KindNotFound {
		t.Errorf("observer calls = %+v", obs.calls)
	}
}

func TestStripe_GetProduct(t *testing.T) {
	p, obs := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"pro","object":"product","name":"Pro","active":true}`)
	})

	prod, err := p.GetProduct(context.Background(), "pro")
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if prod.ID != "pro" || prod.Name != "Pro" {
		t.Errorf("product = %+v", prod)
	}
	if len(obs.calls) != 1 || obs.calls[0].kind != "" {
		t.Errorf("observer calls = %+v", obs.calls)
	}
}

func TestStripe_GetProductDeleted(t *testing.T) {
	p, _ := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"pro","object":"product","deleted":true}`)
	})

	_, err := p.GetProduct(context.Background(), "pro")
	if !errors.Is(err, billing.ErrNotFound) {
		t.Fatalf("expected NotFound for deleted product, got %v", err)
	}
}

func TestStripe_CreateChargeDeclined(t *testing.T) {
	var gotKey, gotDescriptor, gotCurrency string
	p, _ := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		gotKey = r.Header.Get("Idempotency-Key")
		gotDescriptor = r.PostForm.Get("statement_descriptor")
		gotCurrency = r.PostForm.Get("currency")
		writeStripeError(w, 402, "card_error", "card_declined", "Your card was declined.")
	})

	_, err := p.CreateCharge(context.Background(), billing.ChargeRequest{
		CustomerID:          "cus_1",
		AmountMinorUnits:    500,
		Currency:            "eur",
		StatementDescriptor: "ACME",
		IdempotencyKey:      "order-1",
	})
	if billing.KindOf(err) != billing.KindDeclined {
		t.Fatalf("expected Declined, got %v", err)
	}
	var be *billing.Error
	if errors.As(err, &be) && be.DeclineCode != "insufficient_funds" {
		t.Errorf("DeclineCode = %q", be.DeclineCode)
	}
	if gotKey != "order-1" {
		t.Errorf("Idempotency-Key = %q", gotKey)
	}
	if gotDescriptor != "ACME" || gotCurrency != "eur" {
		t.Errorf("descriptor = %q, currency = %q", gotDescriptor, gotCurrency)
	}
}

func TestStripe_AuthFailure(t *testing.T) {
	p, _ := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		writeStripeError(w, 401, "invalid_request_error", "", "Invalid API Key provided")
	})

	_, err := p.GetPlan(context.Background(), "p")
	if billing.KindOf(err) != billing.KindAuthFailure {
		t.Fatalf("expected AuthFailure, got %v", err)
	}
}

func TestStripe_ServerErrorIsNotRetried(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	p, _ := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		writeStripeError(w, 500, "api_error", "", "Something went wrong")
	})

	_, err := p.GetCustomer(context.Background(), "cus_1")
	if !billing.Retryable(err) {
		t.Fatalf("expected Transient, got %v", err)
	}
	if hits != 1 {
		t.Errorf("server hits = %d, want 1", hits)
	}
}

func TestStripe_ListBalanceTransactions(t *testing.T) {
	p, obs := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("created[gt]") != "1709251200" {
			t.Errorf("created[gt] = %q", q.Get("created[gt]"))
		}
		if q.Get("limit") != "40" || q.Get("type") != "charge" {
			t.Errorf("limit = %q, type = %q", q.Get("limit"), q.Get("type"))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","url":"/v1/balance_transactions","has_more":true,"data":[
			{"id":"txn_1","object":"balance_transaction","amount":1500,"created":1709251300,"currency":"eur","type":"charge"},
			{"id":"txn_2","object":"balance_transaction","amount":900,"created":1709251250,"currency":"eur","type":"charge"}
		]}`)
	})

	seq := p.ListBalanceTransactions(context.Background(), billing.LedgerFilter{
		Type: "charge", CreatedGt: 1709251200, Limit: 40,
	})
	if len(obs.calls) != 0 {
		t.Fatal("listing must not call the API before ranging")
	}

	var got []billing.LedgerEntry
	for e, err := range seq {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, e)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2 (single page even with has_more)", len(got))
	}
	if got[0].ID != "txn_1" || got[0].AmountMinorUnits != 1500 || got[0].CreatedEpoch != 1709251300 {
		t.Errorf("entry = %+v", got[0])
	}
}

func TestStripe_ListBalanceTransactionsError(t *testing.T) {
	p, _ := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		writeStripeError(w, 429, "invalid_request_error", "rate_limit", "Too many requests")
	})

	var gotErr error
	for _, err := range p.ListBalanceTransactions(context.Background(), billing.LedgerFilter{Limit: 40}) {
		gotErr = err
	}
	if !errors.Is(gotErr, billing.ErrTransient) {
		t.Fatalf("expected Transient, got %v", gotErr)
	}
}

func TestStripe_RateLimiterHonoursContext(t *testing.T) {
	p := NewStripeProcessor(StripeConfig{SecretKey: "sk_test", RateLimit: 0.001, RateBurst: 1}, zerolog.Nop(), nil)
	// Drain the single token.
	p.limiter.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.GetProduct(ctx, "pro")
	if !billing.Retryable(err) {
		t.Fatalf("expected Transient from cancelled wait, got %v", err)
	}
}

func TestMapStripeStatus(t *testing.T) {
	tests := []struct {
		status   stripe.SubscriptionStatus
		expected billing.SubscriptionStatus
	}{
		{stripe.SubscriptionStatusActive, billing.SubscriptionStatusActive},
		{stripe.SubscriptionStatusPastDue, billing.SubscriptionStatusPastDue},
		{stripe.SubscriptionStatusCanceled, billing.SubscriptionStatusCancelled},
		{stripe.SubscriptionStatusIncompleteExpired, billing.SubscriptionStatusCancelled},
		{stripe.SubscriptionStatusUnpaid, billing.SubscriptionStatusUnpaid},
		{stripe.SubscriptionStatusTrialing, billing.SubscriptionStatusTrialing},
		{stripe.SubscriptionStatusIncomplete, billing.SubscriptionStatusIncomplete},
		{stripe.SubscriptionStatusPaused, billing.SubscriptionStatusPaused},
		{"unknown", billing.SubscriptionStatusActive},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := mapStripeStatus(tt.status); got != tt.expected {
				t.Errorf("mapStripeStatus(%s) = %s, want %s", tt.status, got, tt.expected)
			}
		})
	}
}
