package app_test

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/paycore/adapters/clock"
	"github.com/artpar/paycore/adapters/idgen"
	"github.com/artpar/paycore/adapters/payment"
	"github.com/artpar/paycore/domain/billing"
	"github.com/rs/zerolog"
)

var (
	testNow   = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	testMoney = billing.NewMoney("eur", 100)
)

func newProcessor() *payment.MemoryProcessor {
	return payment.NewMemoryProcessor("eur", idgen.NewSequential(""), clock.NewFake(testNow))
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// notFoundOnceProcessor reports a product or plan as missing on the first
// read, simulating a concurrent creator winning the race.
type notFoundOnceProcessor struct {
	*payment.MemoryProcessor
	productMisses int
	planMisses    int
}

func (p *notFoundOnceProcessor) GetProduct(ctx context.Context, id string) (billing.ProductRef, error) {
	if p.productMisses > 0 {
		p.productMisses--
		return billing.ProductRef{}, billing.NewError(billing.KindNotFound, "get_product", "No such product")
	}
	return p.MemoryProcessor.GetProduct(ctx, id)
}

func (p *notFoundOnceProcessor) GetPlan(ctx context.Context, id string) (billing.PlanRef, error) {
	if p.planMisses > 0 {
		p.planMisses--
		return billing.PlanRef{}, billing.NewError(billing.KindNotFound, "get_plan", "No such plan")
	}
	return p.MemoryProcessor.GetPlan(ctx, id)
}

var errBoom = errors.New("connection reset by peer")

// blockingCreateProcessor holds CreateCustomer until released, honouring
// the context it is handed like a real network call would.
type blockingCreateProcessor struct {
	*payment.MemoryProcessor
	entered chan struct{}
	release chan struct{}
}

func newBlockingCreateProcessor() *blockingCreateProcessor {
	return &blockingCreateProcessor{
		MemoryProcessor: newProcessor(),
		entered:         make(chan struct{}, 1),
		release:         make(chan struct{}),
	}
}

func (p *blockingCreateProcessor) CreateCustomer(ctx context.Context, params billing.CustomerParams) (billing.RemoteCustomer, error) {
	select {
	case p.entered <- struct{}{}:
	default:
	}
	select {
	case <-ctx.Done():
		return billing.RemoteCustomer{}, billing.WrapError(billing.KindTransient, "create_customer", ctx.Err())
	case <-p.release:
	}
	return p.MemoryProcessor.CreateCustomer(ctx, params)
}
