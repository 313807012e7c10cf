package checkout

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure for the caller and for retry decisions.
type Kind string

const (
	KindValidation Kind = "ValidationError"
	KindTransient  Kind = "RemoteTransientError"
	KindRejection  Kind = "RemoteRejectionError"
	KindState      Kind = "StateError"
	KindInternal   Kind = "InternalError"
)

var (
	ErrRemoteNotFound = errors.New("remote resource not found")
	ErrRemoteConflict = errors.New("remote resource already exists")
	ErrPlanNotFound   = errors.New("plan not found")
	ErrAccountExists  = errors.New("account already exists")

	// ErrPaymentNotFound and ErrWrongState let QR callers tell a missing
	// payment apart from one that cannot carry a QR code.
	ErrPaymentNotFound = errors.New("payment not found")
	ErrWrongState      = errors.New("payment is not a pending PIX payment")
)

// Error is a classified failure raised by a checkout component or by a
// collaborator adapter.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and the operation that failed.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func validationf(op, format string, args ...interface{}) *Error {
	return NewError(KindValidation, op, fmt.Errorf(format, args...))
}

// KindOf returns the kind carried by err. Deadlines count as transient
// network failures; anything unclassified is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Kind
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	return KindInternal
}

// IsRetryable reports whether err may succeed on a second attempt.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// Stage names a step of the checkout state machine.
type Stage string

const (
	StageStart            Stage = "START"
	StageHashSecret       Stage = "HASH_SECRET"
	StageResolveCustomer  Stage = "RESOLVE_CUSTOMER"
	StageCreatePayment    Stage = "CREATE_PAYMENT"
	StageProvisionAccount Stage = "PROVISION_ACCOUNT"
	StageFetchQR          Stage = "FETCH_QR"
)

// Compensation records what happened to a payment that was created before
// a later stage failed.
type Compensation string

const (
	CompensationNone          Compensation = ""
	CompensationCancelled     Compensation = "cancelled"
	CompensationCancelPending Compensation = "cancel_pending"
)

// StageError is the single structured failure returned by the orchestrator.
// CustomerRef and PaymentRef echo whatever was created before the failure so
// a caller can resubmit without duplicating remote records.
type StageError struct {
	Stage        Stage
	Kind         Kind
	Message      string
	CustomerRef  string
	PaymentRef   string
	Compensation Compensation
	Err          error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed (%s): %s", e.Stage, e.Kind, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
