package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPrices = fakePrices{
	"P1": {PlanID: "P1", Name: "Basic", Amount: 1990},
	"P2": {PlanID: "P2", Name: "Monthly", Amount: 4990, NextDue: time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)},
	"P0": {PlanID: "P0", Name: "Free", Amount: 0},
}

func newTestInitiator(gw Gateway) *PaymentInitiator {
	p := NewPaymentInitiator(gw, testPrices, testRetry, time.UTC, nil)
	p.now = func() time.Time { return time.Date(2026, 10, 16, 15, 30, 0, 0, time.UTC) }
	return p
}

func TestCreatePayment_PixIsPendingAndDueToday(t *testing.T) {
	gw := newFakeGateway()

	intent, err := newTestInitiator(gw).CreatePayment(context.Background(), "cus_1", "P1", MethodPIX)

	require.NoError(t, err)
	assert.NotEmpty(t, intent.RemoteRef)
	assert.Equal(t, StatusPending, intent.Status)
	assert.Equal(t, int64(1990), intent.Amount)
	require.Len(t, gw.lastPaymentRequests, 1)
	req := gw.lastPaymentRequests[0]
	assert.Equal(t, "cus_1", req.CustomerRef)
	assert.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), req.DueDate)
	assert.NotEmpty(t, req.ExternalReference)
}

func TestCreatePayment_BoletoDueDate(t *testing.T) {
	gw := newFakeGateway()
	initiator := newTestInitiator(gw)

	_, err := initiator.CreatePayment(context.Background(), "cus_1", "P2", MethodBoleto)
	require.NoError(t, err)
	_, err = initiator.CreatePayment(context.Background(), "cus_1", "P1", MethodBoleto)
	require.NoError(t, err)

	require.Len(t, gw.lastPaymentRequests, 2)
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), gw.lastPaymentRequests[0].DueDate)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), gw.lastPaymentRequests[1].DueDate)
}

func TestCreatePayment_UnknownPlanIsValidationError(t *testing.T) {
	gw := newFakeGateway()

	_, err := newTestInitiator(gw).CreatePayment(context.Background(), "cus_1", "NOPE", MethodPIX)

	assert.ErrorIs(t, err, ErrPlanNotFound)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Zero(t, gw.createPaymentCalls)
}

func TestCreatePayment_NonPositivePrice(t *testing.T) {
	gw := newFakeGateway()

	_, err := newTestInitiator(gw).CreatePayment(context.Background(), "cus_1", "P0", MethodPIX)

	assert.Equal(t, KindValidation, KindOf(err))
	assert.Zero(t, gw.createPaymentCalls)
}

func TestCreatePayment_RetriesOnceWithSameExternalReference(t *testing.T) {
	gw := newFakeGateway()
	gw.paymentErrs = []error{errNetwork}

	intent, err := newTestInitiator(gw).CreatePayment(context.Background(), "cus_1", "P1", MethodPIX)

	require.NoError(t, err)
	assert.NotEmpty(t, intent.RemoteRef)
	require.Len(t, gw.lastPaymentRequests, 2)
	assert.Equal(t, gw.lastPaymentRequests[0].ExternalReference, gw.lastPaymentRequests[1].ExternalReference)
}

func TestCreatePayment_SurfacesPersistentTransientFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.paymentErrs = []error{errNetwork, errNetwork}

	_, err := newTestInitiator(gw).CreatePayment(context.Background(), "cus_1", "P1", MethodPIX)

	assert.Equal(t, KindTransient, KindOf(err))
	assert.Equal(t, 2, gw.createPaymentCalls)
}

func TestCreatePayment_GatewayRejectionIsNotRetried(t *testing.T) {
	gw := newFakeGateway()
	gw.paymentErrs = []error{NewError(KindRejection, "create payment", errors.New("invalid value"))}

	_, err := newTestInitiator(gw).CreatePayment(context.Background(), "cus_1", "P1", MethodPIX)

	assert.Equal(t, KindRejection, KindOf(err))
	assert.Equal(t, 1, gw.createPaymentCalls)
}

func TestCreatePayment_NoRetryAfterContextCancelled(t *testing.T) {
	gw := newFakeGateway()
	gw.paymentErrs = []error{errNetwork}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestInitiator(gw).CreatePayment(ctx, "cus_1", "P1", MethodPIX)

	assert.Error(t, err)
	assert.Equal(t, 1, gw.createPaymentCalls)
}

func TestCreatePayment_AdoptsPaymentCreatedBeforeTimeout(t *testing.T) {
	gw := newFakeGateway()
	gw.lostReplies = []error{errNetwork}

	intent, err := newTestInitiator(gw).CreatePayment(context.Background(), "cus_1", "P1", MethodPIX)

	require.NoError(t, err)
	require.Len(t, gw.payments, 1)
	stored, ok := gw.payments[intent.RemoteRef]
	require.True(t, ok, "returned ref %q is not the stored payment", intent.RemoteRef)
	assert.Equal(t, gw.lastPaymentRequests[0].ExternalReference, stored.ExternalReference)
	assert.Equal(t, 1, gw.createPaymentCalls)
	assert.Equal(t, 1, gw.findPaymentCalls)
}

func TestCreatePayment_AdoptsCommittedPaymentWhenRetryIsCut(t *testing.T) {
	gw := newFakeGateway()
	gw.lostReplies = []error{errNetwork}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	intent, err := newTestInitiator(gw).CreatePayment(ctx, "cus_1", "P1", MethodPIX)

	require.NoError(t, err)
	require.Len(t, gw.payments, 1)
	assert.Contains(t, gw.payments, intent.RemoteRef)
	assert.Equal(t, 1, gw.createPaymentCalls)
}

func TestCreatePayment_LookupFailureOnRetryStaysTransient(t *testing.T) {
	gw := newFakeGateway()
	gw.paymentErrs = []error{errNetwork}
	gw.findPaymentErrs = []error{errNetwork, errNetwork}

	_, err := newTestInitiator(gw).CreatePayment(context.Background(), "cus_1", "P1", MethodPIX)

	assert.Equal(t, KindTransient, KindOf(err))
	assert.Equal(t, 1, gw.createPaymentCalls)
	assert.Empty(t, gw.payments)
}
