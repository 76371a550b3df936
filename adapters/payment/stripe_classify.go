package payment

import (
	"errors"
	"net/http"

	"github.com/artpar/paycore/domain/billing"
	"github.com/stripe/stripe-go/v76"
)

// Classify maps an error returned by the Stripe SDK onto a billing error kind.
// Errors that are already classified pass through unchanged; errors that never
// reached the API (network, timeouts, cancelled contexts) are Transient.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var be *billing.Error
	if errors.As(err, &be) {
		return err
	}

	var se *stripe.Error
	if !errors.As(err, &se) {
		return billing.WrapError(billing.KindTransient, op, err)
	}

	return &billing.Error{
		Kind:        classifyStripe(se),
		Op:          op,
		Msg:         se.Msg,
		Code:        string(se.Code),
		DeclineCode: string(se.DeclineCode),
		RequestID:   se.RequestID,
		HTTPStatus:  se.HTTPStatusCode,
		Err:         err,
	}
}

func classifyStripe(se *stripe.Error) billing.ErrorKind {
	status := se.HTTPStatusCode

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return billing.KindAuthFailure
	case status == http.StatusTooManyRequests, status >= 500, se.Type == stripe.ErrorTypeAPI:
		return billing.KindTransient
	case se.Type == stripe.ErrorTypeCard, status == http.StatusPaymentRequired:
		return billing.KindDeclined
	case se.Type == stripe.ErrorTypeIdempotency,
		se.Code == stripe.ErrorCodeResourceAlreadyExists,
		status == http.StatusConflict:
		return billing.KindConflict
	case se.Code == stripe.ErrorCodeResourceMissing, status == http.StatusNotFound:
		return billing.KindNotFound
	default:
		return billing.KindValidation
	}
}
