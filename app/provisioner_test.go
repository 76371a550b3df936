package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/artpar/paycore/app"
	"github.com/artpar/paycore/domain/billing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureProduct_CreatesOnce(t *testing.T) {
	proc := newProcessor()
	svc := app.NewProvisionerService(proc, testMoney, testLogger())
	ctx := context.Background()

	p1, err := svc.EnsureProduct(ctx, billing.ProductRef{ID: "pro", Name: "Pro"})
	require.NoError(t, err)
	p2, err := svc.EnsureProduct(ctx, billing.ProductRef{ID: "pro", Name: "Renamed"})
	require.NoError(t, err)

	assert.Equal(t, 1, proc.Calls("create_product"))
	assert.Equal(t, "Pro", p2.Name, "existing product must not be updated")
	assert.Equal(t, p1, p2)
}

func TestEnsureProduct_Validation(t *testing.T) {
	proc := newProcessor()
	svc := app.NewProvisionerService(proc, testMoney, testLogger())

	_, err := svc.EnsureProduct(context.Background(), billing.ProductRef{Name: "Pro"})
	assert.True(t, errors.Is(err, billing.ErrValidation))
	assert.Zero(t, proc.Calls("get_product"))
}

func TestEnsurePlan_CreatesOnceWithMinorUnits(t *testing.T) {
	proc := newProcessor()
	svc := app.NewProvisionerService(proc, testMoney, testLogger())
	ctx := context.Background()

	_, err := svc.EnsureProduct(ctx, billing.ProductRef{ID: "pro", Name: "Pro"})
	require.NoError(t, err)

	spec := billing.PlanSpec{ID: "pro-monthly", Name: "Pro monthly", Amount: 19.99, Interval: billing.IntervalMonth, ProductID: "pro"}
	p1, err := svc.EnsurePlan(ctx, spec)
	require.NoError(t, err)
	p2, err := svc.EnsurePlan(ctx, spec)
	require.NoError(t, err)

	assert.Equal(t, 1, proc.Calls("create_plan"))
	assert.Equal(t, int64(1999), p1.AmountMinorUnits)
	assert.Equal(t, "eur", p1.Currency)
	assert.Equal(t, p1, p2)
}

func TestEnsurePlan_ExistingPlanNotUpdated(t *testing.T) {
	proc := newProcessor()
	svc := app.NewProvisionerService(proc, testMoney, testLogger())
	ctx := context.Background()

	_, err := svc.EnsureProduct(ctx, billing.ProductRef{ID: "pro", Name: "Pro"})
	require.NoError(t, err)
	_, err = svc.EnsurePlan(ctx, billing.PlanSpec{ID: "p", Amount: 10, Interval: billing.IntervalMonth, ProductID: "pro"})
	require.NoError(t, err)

	got, err := svc.EnsurePlan(ctx, billing.PlanSpec{ID: "p", Amount: 12, Interval: billing.IntervalYear, ProductID: "pro"})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.AmountMinorUnits)
	assert.Equal(t, billing.IntervalMonth, got.Interval)
}

func TestEnsurePlan_ConflictRereads(t *testing.T) {
	mem := newProcessor()
	proc := &notFoundOnceProcessor{MemoryProcessor: mem}
	svc := app.NewProvisionerService(proc, testMoney, testLogger())
	ctx := context.Background()

	_, err := svc.EnsureProduct(ctx, billing.ProductRef{ID: "pro", Name: "Pro"})
	require.NoError(t, err)
	spec := billing.PlanSpec{ID: "p", Amount: 5, Interval: billing.IntervalWeek, ProductID: "pro"}
	_, err = svc.EnsurePlan(ctx, spec)
	require.NoError(t, err)

	// The next read misses, so the create conflicts and the plan is re-read.
	proc.planMisses = 1
	got, err := svc.EnsurePlan(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, "p", got.ID)
	assert.Equal(t, 2, mem.Calls("create_plan"))
}

func TestEnsurePlan_Errors(t *testing.T) {
	tests := []struct {
		name string
		spec billing.PlanSpec
		kind billing.ErrorKind
	}{
		{"missing id", billing.PlanSpec{Amount: 1, Interval: billing.IntervalMonth, ProductID: "pro"}, billing.KindValidation},
		{"missing product", billing.PlanSpec{ID: "p", Amount: 1, Interval: billing.IntervalMonth}, billing.KindValidation},
		{"bad interval", billing.PlanSpec{ID: "p", Amount: 1, Interval: "fortnight", ProductID: "pro"}, billing.KindValidation},
		{"negative amount", billing.PlanSpec{ID: "p", Amount: -1, Interval: billing.IntervalMonth, ProductID: "pro"}, billing.KindValidation},
		{"unknown product", billing.PlanSpec{ID: "p", Amount: 1, Interval: billing.IntervalMonth, ProductID: "ghost"}, billing.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := app.NewProvisionerService(newProcessor(), testMoney, testLogger())
			_, err := svc.EnsurePlan(context.Background(), tt.spec)
			require.Error(t, err)
			assert.Equal(t, tt.kind, billing.KindOf(err))
		})
	}
}

func TestEnsurePlan_TransientPropagates(t *testing.T) {
	proc := newProcessor()
	proc.FailNext("get_plan", errBoom)
	svc := app.NewProvisionerService(proc, testMoney, testLogger())

	_, err := svc.EnsurePlan(context.Background(), billing.PlanSpec{ID: "p", Amount: 1, Interval: billing.IntervalMonth, ProductID: "pro"})
	require.Error(t, err)
	assert.True(t, billing.Retryable(err))
	assert.Zero(t, proc.Calls("create_plan"))
}

func TestDeletePlan(t *testing.T) {
	proc := newProcessor()
	svc := app.NewProvisionerService(proc, testMoney, testLogger())
	ctx := context.Background()

	_, err := svc.EnsureCatalog(ctx,
		[]billing.ProductRef{{ID: "pro", Name: "Pro"}},
		[]billing.PlanSpec{{ID: "p", Amount: 1, Interval: billing.IntervalMonth, ProductID: "pro"}},
	)
	require.NoError(t, err)

	require.NoError(t, svc.DeletePlan(ctx, "p"))
	err = svc.DeletePlan(ctx, "p")
	assert.True(t, errors.Is(err, billing.ErrNotFound))
}

func TestEnsureCatalog(t *testing.T) {
	proc := newProcessor()
	svc := app.NewProvisionerService(proc, testMoney, testLogger())

	plans, err := svc.EnsureCatalog(context.Background(),
		[]billing.ProductRef{{ID: "basic", Name: "Basic"}, {ID: "pro", Name: "Pro"}},
		[]billing.PlanSpec{
			{ID: "basic-m", Amount: 5, Interval: billing.IntervalMonth, ProductID: "basic"},
			{ID: "pro-m", Amount: 15, Interval: billing.IntervalMonth, ProductID: "pro"},
			{ID: "pro-y", Amount: 150, Interval: billing.IntervalYear, ProductID: "pro"},
		},
	)
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.Equal(t, "basic-m", plans[0].ID)
	assert.Equal(t, int64(15000), plans[2].AmountMinorUnits)
	assert.Equal(t, 2, proc.Calls("create_product"))
	assert.Equal(t, 3, proc.Calls("create_plan"))
}

func TestEnsureCatalog_FirstErrorWins(t *testing.T) {
	svc := app.NewProvisionerService(newProcessor(), testMoney, testLogger())

	_, err := svc.EnsureCatalog(context.Background(),
		[]billing.ProductRef{{ID: "pro", Name: "Pro"}},
		[]billing.PlanSpec{{ID: "x", Amount: 1, Interval: billing.IntervalMonth, ProductID: "missing"}},
	)
	assert.True(t, errors.Is(err, billing.ErrNotFound))
}

func TestEnsureCustomer_CreatesWithLocalTag(t *testing.T) {
	proc := newProcessor()
	svc := app.NewProvisionerService(proc, testMoney, testLogger())
	ctx := context.Background()

	id, err := svc.EnsureCustomer(ctx, billing.CustomerRef{LocalID: "42", Email: "a@example.com"}, "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	c, err := proc.GetCustomer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "42", c.LocalID)
	assert.Equal(t, "a@example.com", c.Email)
}

func TestEnsureCustomer_ConcurrentCallsConverge(t *testing.T) {
	proc := newProcessor()
	svc := app.NewProvisionerService(proc, testMoney, testLogger())
	ref := billing.CustomerRef{LocalID: "42", Email: "a@example.com"}

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := svc.EnsureCustomer(context.Background(), ref, "")
			assert.NoError(t, err)
			ids[i] = id
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	// Calls that miss the in-flight window replay the idempotency key.
	c, err := proc.GetCustomer(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, "42", c.LocalID)
}

func TestEnsureCustomer_CancelledCallerDoesNotFailOthers(t *testing.T) {
	proc := newBlockingCreateProcessor()
	svc := app.NewProvisionerService(proc, testMoney, testLogger())
	ref := billing.CustomerRef{LocalID: "42", Email: "a@example.com"}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.EnsureCustomer(ctxA, ref, "")
		errA <- err
	}()
	<-proc.entered

	type result struct {
		id  string
		err error
	}
	resB := make(chan result, 1)
	go func() {
		id, err := svc.EnsureCustomer(context.Background(), ref, "")
		resB <- result{id, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	err := <-errA
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.True(t, errors.Is(err, billing.ErrTransient))

	close(proc.release)
	b := <-resB
	require.NoError(t, b.err)
	require.NotEmpty(t, b.id)

	c, err := proc.GetCustomer(context.Background(), b.id)
	require.NoError(t, err)
	assert.Equal(t, "42", c.LocalID)

	again, err := svc.EnsureCustomer(context.Background(), ref, "")
	require.NoError(t, err)
	assert.Equal(t, b.id, again)
}

func TestEnsureCustomer_SequentialReplayConverges(t *testing.T) {
	proc := newProcessor()
	svc := app.NewProvisionerService(proc, testMoney, testLogger())
	ref := billing.CustomerRef{LocalID: "7", Email: "b@example.com"}

	first, err := svc.EnsureCustomer(context.Background(), ref, "")
	require.NoError(t, err)
	second, err := svc.EnsureCustomer(context.Background(), ref, "")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEnsureCustomer_ConflictFallsBackToLookup(t *testing.T) {
	proc := newProcessor()
	svc := app.NewProvisionerService(proc, testMoney, testLogger())
	ctx := context.Background()
	ref := billing.CustomerRef{LocalID: "9", Email: "c@example.com"}

	first, err := svc.EnsureCustomer(ctx, ref, "")
	require.NoError(t, err)

	proc.FailNext("create_customer", &billing.Error{Kind: billing.KindConflict, Code: "idempotency_key_in_use"})
	second, err := svc.EnsureCustomer(ctx, ref, "")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, proc.Calls("find_customer"))
}

func TestEnsureCustomer_ExistingRemoteID(t *testing.T) {
	proc := newProcessor()
	svc := app.NewProvisionerService(proc, testMoney, testLogger())
	ctx := context.Background()

	id, err := svc.EnsureCustomer(ctx, billing.CustomerRef{LocalID: "1", Email: "d@example.com"}, "")
	require.NoError(t, err)

	got, err := svc.EnsureCustomer(ctx, billing.CustomerRef{LocalID: "1", Email: "d@example.com", RemoteID: id}, "")
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Equal(t, 1, proc.Calls("create_customer"))
}

func TestEnsureCustomer_DeletedRemoteIsNotReplaced(t *testing.T) {
	proc := newProcessor()
	svc := app.NewProvisionerService(proc, testMoney, testLogger())
	ctx := context.Background()

	id, err := svc.EnsureCustomer(ctx, billing.CustomerRef{LocalID: "1", Email: "d@example.com"}, "")
	require.NoError(t, err)
	proc.DeleteCustomer(id)

	_, err = svc.EnsureCustomer(ctx, billing.CustomerRef{LocalID: "1", Email: "d@example.com", RemoteID: id}, "")
	assert.True(t, errors.Is(err, billing.ErrNotFound))
	assert.Equal(t, 1, proc.Calls("create_customer"))
}

func TestEnsureCustomer_BoundRecordNeedsLocalID(t *testing.T) {
	proc := newProcessor()
	svc := app.NewProvisionerService(proc, testMoney, testLogger())

	_, err := svc.EnsureCustomer(context.Background(), billing.CustomerRef{RemoteID: "cus_1", Email: "d@example.com"}, "")
	assert.True(t, errors.Is(err, billing.ErrValidation))
	assert.Zero(t, proc.Calls("get_customer"))
}

func TestEnsureCustomer_InvalidEmail(t *testing.T) {
	proc := newProcessor()
	svc := app.NewProvisionerService(proc, testMoney, testLogger())

	_, err := svc.EnsureCustomer(context.Background(), billing.CustomerRef{LocalID: "1", Email: "nope"}, "")
	assert.True(t, errors.Is(err, billing.ErrValidation))
	assert.Zero(t, proc.Calls("create_customer"))
}

func TestEnsureCustomer_UnknownCoupon(t *testing.T) {
	svc := app.NewProvisionerService(newProcessor(), testMoney, testLogger())

	_, err := svc.EnsureCustomer(context.Background(), billing.CustomerRef{LocalID: "1", Email: "e@example.com"}, "GHOST")
	assert.True(t, errors.Is(err, billing.ErrNotFound))
}

func TestCustomerIdempotencyKey(t *testing.T) {
	assert.Equal(t, "customer-42", app.CustomerIdempotencyKey("42"))
}

func TestCreatePaymentSourceByIBAN(t *testing.T) {
	proc := newProcessor()
	svc := app.NewProvisionerService(proc, testMoney, testLogger())
	ctx := context.Background()

	s1, err := svc.CreatePaymentSourceByIBAN(ctx, "de89 3704 0044 0532 0130 00", "Jenny Rosen")
	require.NoError(t, err)
	s2, err := svc.CreatePaymentSourceByIBAN(ctx, "DE89370400440532013000", "Jenny Rosen")
	require.NoError(t, err)

	assert.Equal(t, billing.SourceKindSepaDebit, s1.Kind)
	assert.NotEqual(t, s1.ID, s2.ID, "each call mints a new source")
}

func TestCreatePaymentSourceByIBAN_Invalid(t *testing.T) {
	svc := app.NewProvisionerService(newProcessor(), testMoney, testLogger())
	ctx := context.Background()

	_, err := svc.CreatePaymentSourceByIBAN(ctx, "", "Jenny")
	assert.True(t, errors.Is(err, billing.ErrValidation))

	_, err = svc.CreatePaymentSourceByIBAN(ctx, "DE89", "Jenny")
	assert.True(t, errors.Is(err, billing.ErrValidation))
}

func TestUpdateCardAndSource(t *testing.T) {
	proc := newProcessor()
	svc := app.NewProvisionerService(proc, testMoney, testLogger())
	ctx := context.Background()

	id, err := svc.EnsureCustomer(ctx, billing.CustomerRef{LocalID: "5", Email: "f@example.com"}, "")
	require.NoError(t, err)
	ref := billing.CustomerRef{LocalID: "5", Email: "f@example.com", RemoteID: id}

	require.NoError(t, svc.UpdateCard(ctx, ref, "tok_visa"))
	c, err := proc.GetCustomer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "tok_visa", c.DefaultSource)

	src, err := svc.UpdateSource(ctx, ref, "DE89370400440532013000", "Jenny Rosen")
	require.NoError(t, err)
	c, err = proc.GetCustomer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, src.ID, c.DefaultSource)

	assert.True(t, errors.Is(svc.UpdateCard(ctx, ref, ""), billing.ErrValidation))
	assert.True(t, errors.Is(svc.UpdateCard(ctx, billing.CustomerRef{LocalID: "5"}, "tok"), billing.ErrValidation))
}
