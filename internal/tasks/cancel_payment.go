package tasks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"pix_checkout_echo/internal/checkout"
	"pix_checkout_echo/internal/models"
)

// CancelPaymentTaskName identifies the compensation task.
const CancelPaymentTaskName = "cancel_payment"

// CancelPaymentArgs are the arguments of a cancel_payment task.
type CancelPaymentArgs struct {
	PaymentRef string `json:"payment_ref"`
	Reason     string `json:"reason,omitempty"`
}

// CancellationLedger is the ledger view the cancellation task needs.
type CancellationLedger interface {
	checkout.Ledger
	FindByPaymentRef(ctx context.Context, paymentRef string) (*models.CheckoutSession, error)
}

// CancelPaymentTaskDef cancels a payment that a failed checkout left behind
// and marks it cancelled in the ledger.
type CancelPaymentTaskDef struct {
	gateway checkout.Gateway
	ledger  CancellationLedger
}

func NewCancelPaymentTask(gateway checkout.Gateway, ledger CancellationLedger) *CancelPaymentTaskDef {
	return &CancelPaymentTaskDef{gateway: gateway, ledger: ledger}
}

func (t *CancelPaymentTaskDef) TaskID() string {
	return CancelPaymentTaskName
}

func (t *CancelPaymentTaskDef) HandleExecution(ctx context.Context, task models.ScheduledTask) (map[string]interface{}, error) {
	paymentRef, err := stringArg(task.Arguments, "payment_ref")
	if err != nil {
		return nil, err
	}

	if t.ledger != nil {
		// A duplicate task for a payment already marked cancelled is a no-op.
		row, err := t.ledger.FindByPaymentRef(ctx, paymentRef)
		if err == nil && row.Compensation == models.CheckoutCompensationCancelled {
			return map[string]interface{}{"status": "skipped", "payment_ref": paymentRef}, nil
		}
	}

	if err := t.gateway.CancelPayment(ctx, paymentRef); err != nil {
		return nil, fmt.Errorf("cancel payment %s: %w", paymentRef, err)
	}

	result := map[string]interface{}{"status": "success", "payment_ref": paymentRef}
	if t.ledger != nil {
		// The payment is already cancelled remotely; a ledger miss must not
		// trigger another cancellation.
		if err := t.ledger.MarkCompensation(ctx, paymentRef, checkout.CompensationCancelled); err != nil {
			zap.L().Warn("ledger update after cancellation failed",
				zap.String("payment_ref", paymentRef), zap.Error(err))
			result["ledger_error"] = err.Error()
		}
	}
	return result, nil
}

// isPermanent reports whether retrying err cannot help.
func isPermanent(err error) bool {
	var taskErr *checkout.Error
	if errors.As(err, &taskErr) {
		return taskErr.Kind == checkout.KindValidation || taskErr.Kind == checkout.KindRejection
	}
	return false
}
