// Package payment provides payment processor adapters.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/artpar/paycore/domain/billing"
	"github.com/artpar/paycore/ports"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"golang.org/x/time/rate"
)

// StripeConfig holds Stripe configuration.
type StripeConfig struct {
	SecretKey string
	Currency  string

	// MaxNetworkRetries is handed to the SDK. Zero disables SDK retries so that
	// nothing is resubmitted behind the caller's back.
	MaxNetworkRetries int64

	// RateLimit caps outgoing requests per second; zero means unlimited.
	RateLimit float64
	RateBurst int

	Timeout time.Duration

	// URL overrides the API endpoint (stripe-mock, tests).
	URL string
}

// StripeProcessor implements ports.Processor for Stripe.
// Each instance owns its client and credential; nothing is process-global.
type StripeProcessor struct {
	api      *client.API
	currency string
	limiter  *rate.Limiter
	observer ports.CallObserver
	logger   zerolog.Logger
}

// NewStripeProcessor creates a Stripe processor. observer may be nil.
func NewStripeProcessor(config StripeConfig, logger zerolog.Logger, observer ports.CallObserver) *StripeProcessor {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		LeveledLogger:     &stripeLogger{logger: logger.With().Str("component", "stripe-sdk").Logger()},
		MaxNetworkRetries: stripe.Int64(config.MaxNetworkRetries),
	}
	if config.URL != "" {
		backendConfig.URL = stripe.String(config.URL)
	}

	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return &StripeProcessor{
		api:      client.New(config.SecretKey, backends),
		currency: billing.NewMoney(config.Currency, 0).Currency,
		limiter:  limiter,
		observer: observer,
		logger:   logger,
	}
}

// Name returns the processor name.
func (p *StripeProcessor) Name() string {
	return "stripe"
}

// call runs one remote call: it waits for the rate limiter, classifies any
// failure and records the outcome. Every exported method goes through it.
func call[T any](ctx context.Context, p *StripeProcessor, op string, fn func() (T, error)) (T, error) {
	var zero T

	if err := p.wait(ctx, op); err != nil {
		return zero, err
	}

	start := time.Now()
	v, err := fn()
	err = Classify(op, err)
	p.record(op, err, time.Since(start))
	if err != nil {
		return zero, err
	}
	return v, nil
}

func (p *StripeProcessor) wait(ctx context.Context, op string) error {
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		cerr := billing.WrapError(billing.KindTransient, op, fmt.Errorf("rate limiter: %w", err))
		p.record(op, cerr, 0)
		return cerr
	}
	return nil
}

func (p *StripeProcessor) record(op string, err error, elapsed time.Duration) {
	kind := billing.KindOf(err)
	if p.observer != nil {
		p.observer.ObserveCall(op, kind, elapsed.Seconds())
	}

	if err == nil {
		p.logger.Debug().
			Str("op", op).
			Dur("duration", elapsed).
			Msg("processor call succeeded")
		return
	}

	ev := p.logger.Warn()
	if kind == billing.KindAuthFailure {
		ev = p.logger.Error()
	}
	var be *billing.Error
	if errors.As(err, &be) {
		ev = ev.Str("code", be.Code).Str("request_id", be.RequestID).Int("http_status", be.HTTPStatus)
	}
	ev.Err(err).
		Str("op", op).
		Str("kind", string(kind)).
		Dur("duration", elapsed).
		Msg("processor call failed")
}

// notFound is returned for resources the API still serves but marks deleted.
func notFound(op, what, id string) error {
	return &billing.Error{
		Kind: billing.KindNotFound,
		Op:   op,
		Code: string(stripe.ErrorCodeResourceMissing),
		Msg:  fmt.Sprintf("%s %s is deleted", what, id),
	}
}

// stripeLogger bridges the SDK's leveled logger onto zerolog.
type stripeLogger struct {
	logger zerolog.Logger
}

func (l *stripeLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(format, v...)
}

func (l *stripeLogger) Infof(format string, v ...interface{}) {
	l.logger.Debug().Msgf(format, v...)
}

func (l *stripeLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn().Msgf(format, v...)
}

func (l *stripeLogger) Errorf(format string, v ...interface{}) {
	// Failed requests are logged once, classified, by record.
	l.logger.Debug().Msgf(format, v...)
}

var _ ports.Processor = (*StripeProcessor)(nil)
