package payment

import (
	"fmt"
	"strings"

	"github.com/artpar/paycore/ports"
	"github.com/rs/zerolog"
)

// Processor modes.
const (
	ModeStripe = "stripe"
	ModeMemory = "memory"
)

// Options selects and configures a processor.
type Options struct {
	Mode   string
	Stripe StripeConfig

	// Observer receives per-call metrics. Optional.
	Observer ports.CallObserver

	// IDs and Clock are only used by the memory processor.
	IDs   ports.IDGenerator
	Clock ports.Clock
}

// NewProcessor creates a processor for opts.Mode.
func NewProcessor(opts Options, logger zerolog.Logger) (ports.Processor, error) {
	switch strings.ToLower(opts.Mode) {
	case ModeStripe:
		if opts.Stripe.SecretKey == "" {
			return nil, fmt.Errorf("stripe secret key is required")
		}
		return NewStripeProcessor(opts.Stripe, logger, opts.Observer), nil

	case ModeMemory, "test":
		if opts.IDs == nil || opts.Clock == nil {
			return nil, fmt.Errorf("memory processor needs an id generator and a clock")
		}
		logger.Warn().Msg("using in-memory payment processor; nothing is charged")
		return NewMemoryProcessor(opts.Stripe.Currency, opts.IDs, opts.Clock), nil

	default:
		return nil, fmt.Errorf("unknown processor mode: %q", opts.Mode)
	}
}
