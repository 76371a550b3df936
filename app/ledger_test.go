package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/artpar/paycore/app"
	"github.com/artpar/paycore/domain/billing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// march1 is 01/03/2024 00:00 UTC.
var march1 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Unix()

func TestListBalanceSince_StrictAndLimited(t *testing.T) {
	proc := newProcessor()
	proc.AddLedgerEntry(billing.LedgerEntry{ID: "at-start", CreatedEpoch: march1, Type: "charge", AmountMinorUnits: 1})
	proc.AddLedgerEntry(billing.LedgerEntry{ID: "before", CreatedEpoch: march1 - 60, Type: "charge", AmountMinorUnits: 1})
	proc.AddLedgerEntry(billing.LedgerEntry{ID: "payout", CreatedEpoch: march1 + 60, Type: "payout", AmountMinorUnits: -100})
	for i := range 50 {
		proc.AddLedgerEntry(billing.LedgerEntry{CreatedEpoch: march1 + int64(i+1)*3600, Type: "charge", AmountMinorUnits: 100})
	}
	svc := app.NewLedgerService(proc, time.UTC, testLogger())

	seq, err := svc.ListBalanceSince(context.Background(), "01/03/2024")
	require.NoError(t, err)
	entries, err := app.Collect(seq)
	require.NoError(t, err)

	assert.Len(t, entries, app.BalancePageLimit)
	for _, e := range entries {
		assert.Greater(t, e.CreatedEpoch, march1)
		assert.Equal(t, "charge", e.Type)
	}
}

func TestListBalanceSince_InvalidDate(t *testing.T) {
	proc := newProcessor()
	svc := app.NewLedgerService(proc, time.UTC, testLogger())

	for _, d := range []string{"2024-03-01", "31/02/2024", "", "13/13/2024"} {
		_, err := svc.ListBalanceSince(context.Background(), d)
		assert.True(t, errors.Is(err, billing.ErrValidation), d)
	}
	assert.Zero(t, proc.Calls("list_balance_transactions"))
}

func TestListBalanceSince_Lazy(t *testing.T) {
	proc := newProcessor()
	svc := app.NewLedgerService(proc, time.UTC, testLogger())

	_, err := svc.ListBalanceSince(context.Background(), "01/03/2024")
	require.NoError(t, err)
	assert.Zero(t, proc.Calls("list_balance_transactions"), "no call before ranging")
}

func TestListBalanceSince_NotRestartable(t *testing.T) {
	proc := newProcessor()
	proc.AddLedgerEntry(billing.LedgerEntry{CreatedEpoch: march1 + 10, Type: "charge"})
	svc := app.NewLedgerService(proc, time.UTC, testLogger())

	seq, err := svc.ListBalanceSince(context.Background(), "01/03/2024")
	require.NoError(t, err)

	first, err := app.Collect(seq)
	require.NoError(t, err)
	assert.Len(t, first, 1)

	_, err = app.Collect(seq)
	assert.True(t, errors.Is(err, billing.ErrValidation))
	assert.True(t, errors.Is(err, billing.ErrSequenceConsumed))
	assert.Equal(t, 1, proc.Calls("list_balance_transactions"))
}

func TestListBalanceSince_TransientSurfacesOnRange(t *testing.T) {
	proc := newProcessor()
	proc.FailNext("list_balance_transactions", errBoom)
	svc := app.NewLedgerService(proc, time.UTC, testLogger())

	seq, err := svc.ListBalanceSince(context.Background(), "01/03/2024")
	require.NoError(t, err)
	_, err = app.Collect(seq)
	assert.True(t, errors.Is(err, billing.ErrTransient))
}

func TestListPayoutsBetween_InclusiveWindow(t *testing.T) {
	march31 := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC).Unix()

	proc := newProcessor()
	proc.AddLedgerEntry(billing.LedgerEntry{ID: "start", CreatedEpoch: march1, Type: "charge"})
	proc.AddLedgerEntry(billing.LedgerEntry{ID: "end", CreatedEpoch: march31, Type: "charge"})
	proc.AddLedgerEntry(billing.LedgerEntry{ID: "mid", CreatedEpoch: march1 + 86400, Type: "charge"})
	proc.AddLedgerEntry(billing.LedgerEntry{ID: "late", CreatedEpoch: march31 + 1, Type: "charge"})
	proc.AddLedgerEntry(billing.LedgerEntry{ID: "early", CreatedEpoch: march1 - 1, Type: "charge"})
	svc := app.NewLedgerService(proc, time.UTC, testLogger())

	seq, err := svc.ListPayoutsBetween(context.Background(), "01/03/2024", "31/03/2024")
	require.NoError(t, err)
	entries, err := app.Collect(seq)
	require.NoError(t, err)

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{"start", "mid", "end"}, ids)
}

func TestListPayoutsBetween_Limit(t *testing.T) {
	proc := newProcessor()
	for i := range 450 {
		proc.AddLedgerEntry(billing.LedgerEntry{CreatedEpoch: march1 + int64(i), Type: "charge"})
	}
	svc := app.NewLedgerService(proc, time.UTC, testLogger())

	seq, err := svc.ListPayoutsBetween(context.Background(), "01/03/2024", "02/03/2024")
	require.NoError(t, err)
	entries, err := app.Collect(seq)
	require.NoError(t, err)
	assert.Len(t, entries, app.PayoutPageLimit)
}

func TestListPayoutsBetween_StartAfterEnd(t *testing.T) {
	proc := newProcessor()
	svc := app.NewLedgerService(proc, time.UTC, testLogger())

	_, err := svc.ListPayoutsBetween(context.Background(), "02/03/2024", "01/03/2024")
	assert.True(t, errors.Is(err, billing.ErrValidation))
	assert.Zero(t, proc.Calls("list_balance_transactions"))
}

func TestLedgerService_Location(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// 01/03/2024 00:00 in Berlin is 29/02/2024 23:00 UTC.
	proc := newProcessor()
	proc.AddLedgerEntry(billing.LedgerEntry{ID: "late-feb-utc", CreatedEpoch: march1 - 1800, Type: "charge"})
	svc := app.NewLedgerService(proc, berlin, testLogger())

	seq, err := svc.ListBalanceSince(context.Background(), "01/03/2024")
	require.NoError(t, err)
	entries, err := app.Collect(seq)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "late-feb-utc", entries[0].ID)
}
