package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/artpar/paycore/app"
	"github.com/artpar/paycore/domain/billing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCouponCreateAndRedeemBy(t *testing.T) {
	proc := newProcessor()
	svc := app.NewCouponService(proc, testMoney, testLogger())
	ctx := context.Background()

	c, err := svc.Create(ctx, billing.CouponSpec{
		ID:         "SPRING",
		PercentOff: 20,
		Duration:   "once",
		Metadata:   map[string]string{"campaign": "spring"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SPRING", c.ID)

	updated, err := svc.UpdateRedeemBy(ctx, "SPRING", 1735689600)
	require.NoError(t, err)
	assert.Equal(t, "1735689600", updated.Metadata[billing.MetadataRedeemBy])
	assert.Equal(t, "spring", updated.Metadata["campaign"], "other metadata is kept")
}

func TestCouponCreate_Invalid(t *testing.T) {
	svc := app.NewCouponService(newProcessor(), testMoney, testLogger())

	_, err := svc.Create(context.Background(), billing.CouponSpec{ID: "BAD", Duration: "once"})
	assert.True(t, errors.Is(err, billing.ErrValidation))
}

func TestCouponUpdateRedeemBy_Missing(t *testing.T) {
	proc := newProcessor()
	svc := app.NewCouponService(proc, testMoney, testLogger())

	_, err := svc.UpdateRedeemBy(context.Background(), "GHOST", 1735689600)
	assert.True(t, errors.Is(err, billing.ErrNotFound))
	assert.Zero(t, proc.Calls("update_coupon"))
}

func TestCouponUpdateRedeemBy_Validation(t *testing.T) {
	proc := newProcessor()
	svc := app.NewCouponService(proc, testMoney, testLogger())

	_, err := svc.UpdateRedeemBy(context.Background(), "", 1)
	assert.True(t, errors.Is(err, billing.ErrValidation))
	_, err = svc.UpdateRedeemBy(context.Background(), "X", 0)
	assert.True(t, errors.Is(err, billing.ErrValidation))
	assert.Zero(t, proc.Calls("get_coupon"))
}
