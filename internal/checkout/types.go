package checkout

import (
	"context"
	"strings"
	"time"
)

// Method is the payment rail requested for a checkout.
type Method string

const (
	MethodPIX    Method = "PIX"
	MethodBoleto Method = "BOLETO"
)

// ParseMethod normalizes a requested method; empty means PIX.
func ParseMethod(raw string) (Method, error) {
	switch Method(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", MethodPIX:
		return MethodPIX, nil
	case MethodBoleto:
		return MethodBoleto, nil
	default:
		return "", validationf("parse method", "unsupported payment method %q", raw)
	}
}

// PaymentStatus is the lifecycle state of a payment intent. Only the gateway
// moves an intent out of PENDING.
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "PENDING"
	StatusConfirmed PaymentStatus = "CONFIRMED"
	StatusFailed    PaymentStatus = "FAILED"
	StatusExpired   PaymentStatus = "EXPIRED"
)

// Identity is what the caller knows about the paying customer.
type Identity struct {
	BillingDocument string
	Email           string
	Name            string
}

// Customer is a gateway-owned customer record.
type Customer struct {
	RemoteRef       string
	BillingDocument string
	Email           string
	Name            string
}

// CreateCustomerResult is either a newly created customer or a report that
// the gateway already holds one for the same document.
type CreateCustomerResult struct {
	Created       *Customer
	AlreadyExists bool
}

// PaymentRequest is sent to the gateway to open a payment intent.
// Amount is in minor units.
type PaymentRequest struct {
	CustomerRef       string
	Amount            int64
	Method            Method
	DueDate           time.Time
	ExternalReference string
	Description       string
}

// PaymentIntent is referenced locally only through RemoteRef.
type PaymentIntent struct {
	RemoteRef         string
	CustomerRef       string
	Amount            int64
	Method            Method
	Status            PaymentStatus
	CreatedAt         time.Time
	DueDate           time.Time
	InvoiceURL        string
	ExternalReference string
}

// PixQrCode is always fetched live and never stored.
type PixQrCode struct {
	Payload      string
	EncodedImage string
	ExpiresAt    time.Time
}

// HashedSecret is a one-way credential hash.
type HashedSecret string

// PlanPrice is the answer of the price lookup collaborator.
type PlanPrice struct {
	PlanID  string
	Name    string
	Amount  int64
	NextDue time.Time
}

// Account is handed to the credential store when a checkout provisions a
// new user.
type Account struct {
	BillingDocument string
	Email           string
	Name            string
	CustomerRef     string
	Secret          HashedSecret
}

// LedgerEntry records a payment created by a checkout.
type LedgerEntry struct {
	CheckoutID  string
	PaymentRef  string
	CustomerRef string
	PlanID      string
	Amount      int64
	Method      Method
	Status      PaymentStatus
}

// Request is an inbound checkout.
type Request struct {
	PlanID              string
	BillingDocument     string
	Email               string
	Name                string
	NewAccountSecret    string
	ExistingCustomerRef string
	Method              string
}

// Result is returned once the state machine reaches DONE.
type Result struct {
	CheckoutID string
	Customer   Customer
	Payment    PaymentIntent
	QrCode     *PixQrCode
}

// Gateway is the outbound payment gateway contract.
type Gateway interface {
	// FindCustomerByDocument returns nil, nil when no customer matches.
	FindCustomerByDocument(ctx context.Context, document string) (*Customer, error)
	GetCustomer(ctx context.Context, ref string) (*Customer, error)
	CreateCustomer(ctx context.Context, identity Identity) (CreateCustomerResult, error)
	CreatePayment(ctx context.Context, req PaymentRequest) (PaymentIntent, error)
	// FindPaymentByExternalReference returns nil, nil when no live payment
	// carries externalReference.
	FindPaymentByExternalReference(ctx context.Context, externalReference string) (*PaymentIntent, error)
	GetPayment(ctx context.Context, ref string) (PaymentIntent, error)
	GetPixQrCode(ctx context.Context, ref string) (PixQrCode, error)
	CancelPayment(ctx context.Context, ref string) error
}

// PriceLookup maps a plan identifier to its price. Unknown plans return
// an error wrapping ErrPlanNotFound.
type PriceLookup interface {
	LookupPlan(ctx context.Context, planID string) (PlanPrice, error)
}

type Hasher interface {
	Hash(secret string) (HashedSecret, error)
}

// AccountStore persists provisioned accounts. It never returns plaintext.
type AccountStore interface {
	Exists(ctx context.Context, billingDocument, email string) (bool, error)
	Create(ctx context.Context, account Account) error
}

// Ledger keeps an audit trail of created payments for reconciliation.
type Ledger interface {
	RecordPayment(ctx context.Context, entry LedgerEntry) error
	MarkCompensation(ctx context.Context, paymentRef string, state Compensation) error
}

// CompensationScheduler retries a payment cancellation out of band.
type CompensationScheduler interface {
	ScheduleCancel(ctx context.Context, paymentRef, reason string) error
}

// StageObserver receives per-stage outcomes. Kind is empty on success.
type StageObserver interface {
	ObserveStage(stage Stage, kind Kind, elapsed time.Duration)
	ObserveCompensation(outcome Compensation)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(Stage, Kind, time.Duration) {}
func (nopObserver) ObserveCompensation(Compensation)        {}
