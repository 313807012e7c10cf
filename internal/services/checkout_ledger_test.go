package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pix_checkout_echo/internal/checkout"
	"pix_checkout_echo/internal/models"
)

func TestCheckoutLedger(t *testing.T) {
	ledger := NewCheckoutLedger(newTestDB(t))
	ctx := context.Background()

	for _, ref := range []string{"pay_1", "pay_2"} {
		require.NoError(t, ledger.RecordPayment(ctx, checkout.LedgerEntry{
			CheckoutID:  "chk-" + ref,
			PaymentRef:  ref,
			CustomerRef: "cus_1",
			PlanID:      "P1",
			Amount:      1990,
			Method:      checkout.MethodPIX,
			Status:      checkout.StatusPending,
		}))
	}
	require.NoError(t, ledger.MarkCompensation(ctx, "pay_2", checkout.CompensationCancelPending))

	pending := models.CheckoutCompensationCancelPending
	rows, err := ledger.List(ctx, LedgerFilter{Compensation: &pending})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "pay_2", rows[0].PaymentRef)
	assert.Equal(t, int64(1990), rows[0].AmountMinor)

	all, err := ledger.List(ctx, LedgerFilter{CustomerRef: "cus_1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "pay_2", all[0].PaymentRef, "newest first")

	row, err := ledger.FindByPaymentRef(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, models.CheckoutCompensationNone, row.Compensation)
}

func TestCheckoutLedger_UnknownPayment(t *testing.T) {
	ledger := NewCheckoutLedger(newTestDB(t))

	err := ledger.MarkCompensation(context.Background(), "pay_x", checkout.CompensationCancelled)
	assert.ErrorIs(t, err, ErrLedgerEntryNotFound)

	_, err = ledger.FindByPaymentRef(context.Background(), "pay_x")
	assert.ErrorIs(t, err, ErrLedgerEntryNotFound)
}
