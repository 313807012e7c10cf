package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const compensationTimeout = 15 * time.Second

// Dependencies are the collaborators of the orchestrator. Accounts, Ledger,
// Scheduler and Observer are optional.
type Dependencies struct {
	Gateway   Gateway
	Prices    PriceLookup
	Hasher    Hasher
	Accounts  AccountStore
	Ledger    Ledger
	Scheduler CompensationScheduler
	Observer  StageObserver
	Retry     RetryPolicy
	Location  *time.Location
	Logger    *zap.Logger
}

// Orchestrator runs one checkout as a strictly sequential chain:
// HASH_SECRET (optional), RESOLVE_CUSTOMER, CREATE_PAYMENT,
// PROVISION_ACCOUNT (optional), FETCH_QR (PIX only).
type Orchestrator struct {
	gateway   Gateway
	hasher    Hasher
	accounts  AccountStore
	ledger    Ledger
	scheduler CompensationScheduler
	observer  StageObserver
	resolver  *CustomerResolver
	initiator *PaymentInitiator
	qr        *QrCodeFetcher
	newID     func() string
	log       *zap.Logger
}

func NewOrchestrator(deps Dependencies) *Orchestrator {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	observer := deps.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Orchestrator{
		gateway:   deps.Gateway,
		hasher:    deps.Hasher,
		accounts:  deps.Accounts,
		ledger:    deps.Ledger,
		scheduler: deps.Scheduler,
		observer:  observer,
		resolver:  NewCustomerResolver(deps.Gateway, deps.Retry, log),
		initiator: NewPaymentInitiator(deps.Gateway, deps.Prices, deps.Retry, deps.Location, log),
		qr:        NewQrCodeFetcher(deps.Gateway),
		newID:     uuid.NewString,
		log:       log,
	}
}

// QrCodes exposes the fetcher for live QR refetches outside a checkout.
func (o *Orchestrator) QrCodes() *QrCodeFetcher {
	return o.qr
}

// Checkout runs the state machine. Any failure is a *StageError; once a
// payment exists its reference is carried by every later error.
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (*Result, error) {
	checkoutID := o.newID()
	log := o.log.With(zap.String("checkout_id", checkoutID), zap.String("plan_id", req.PlanID))

	progress := &StageError{}
	fail := func(stage Stage, started time.Time, err error) error {
		stageErr := o.stageError(stage, err, progress)
		o.observer.ObserveStage(stage, stageErr.Kind, time.Since(started))
		log.Warn("checkout failed",
			zap.String("stage", string(stage)),
			zap.String("kind", string(stageErr.Kind)),
			zap.String("customer_ref", stageErr.CustomerRef),
			zap.String("payment_ref", stageErr.PaymentRef),
			zap.String("compensation", string(stageErr.Compensation)),
			zap.Error(err),
		)
		return stageErr
	}
	done := func(stage Stage, started time.Time) {
		o.observer.ObserveStage(stage, "", time.Since(started))
	}

	started := time.Now()
	method, err := ParseMethod(req.Method)
	if err != nil {
		return nil, fail(StageStart, started, err)
	}
	done(StageStart, started)

	identity := Identity{
		BillingDocument: req.BillingDocument,
		Email:           req.Email,
		Name:            req.Name,
	}
	byRef := strings.TrimSpace(req.ExistingCustomerRef) != ""

	var secret HashedSecret
	provision := req.NewAccountSecret != ""
	if provision {
		// A bad identity belongs to customer resolution even when it is
		// caught before the secret is hashed.
		if !byRef {
			started = time.Now()
			if _, err := ValidateIdentity(identity); err != nil {
				return nil, fail(StageResolveCustomer, started, err)
			}
		}
		started = time.Now()
		secret, err = o.hashSecret(ctx, req)
		if err != nil {
			return nil, fail(StageHashSecret, started, err)
		}
		done(StageHashSecret, started)
	}

	started = time.Now()
	var customer Customer
	if byRef {
		customer, err = o.resolver.ResolveExisting(ctx, req.ExistingCustomerRef)
	} else {
		customer, err = o.resolver.ResolveCustomer(ctx, identity)
	}
	if err != nil {
		return nil, fail(StageResolveCustomer, started, err)
	}
	progress.CustomerRef = customer.RemoteRef
	done(StageResolveCustomer, started)

	started = time.Now()
	payment, err := o.initiator.CreatePayment(ctx, customer.RemoteRef, req.PlanID, method)
	if err != nil {
		return nil, fail(StageCreatePayment, started, err)
	}
	progress.PaymentRef = payment.RemoteRef
	o.recordPayment(ctx, log, checkoutID, req.PlanID, payment)
	done(StageCreatePayment, started)

	if provision {
		started = time.Now()
		if err := o.provisionAccount(ctx, req, customer, secret); err != nil {
			progress.Compensation = o.compensate(ctx, log, payment.RemoteRef, err)
			return nil, fail(StageProvisionAccount, started, err)
		}
		done(StageProvisionAccount, started)
	}

	result := &Result{CheckoutID: checkoutID, Customer: customer, Payment: payment}
	if method == MethodPIX {
		started = time.Now()
		qr, err := o.qr.GetPixQrCode(ctx, payment.RemoteRef)
		if err != nil {
			return nil, fail(StageFetchQR, started, err)
		}
		result.QrCode = &qr
		done(StageFetchQR, started)
	}

	log.Info("checkout completed",
		zap.String("customer_ref", customer.RemoteRef),
		zap.String("payment_ref", payment.RemoteRef),
		zap.String("method", string(method)),
	)
	return result, nil
}

func (o *Orchestrator) hashSecret(ctx context.Context, req Request) (HashedSecret, error) {
	const op = "hash secret"
	if o.hasher == nil || o.accounts == nil {
		return "", NewError(KindInternal, op, errors.New("account provisioning is not configured"))
	}
	doc := NormalizeDocument(req.BillingDocument)
	if doc == "" || strings.TrimSpace(req.Email) == "" {
		return "", validationf(op, "billing document and email are required to create an account")
	}
	exists, err := o.accounts.Exists(ctx, doc, strings.TrimSpace(req.Email))
	if err != nil {
		return "", NewError(KindInternal, op, err)
	}
	if exists {
		return "", NewError(KindValidation, op, ErrAccountExists)
	}
	secret, err := o.hasher.Hash(req.NewAccountSecret)
	if err != nil {
		if KindOf(err) == KindValidation {
			return "", err
		}
		return "", NewError(KindInternal, op, err)
	}
	return secret, nil
}

// provisionAccount stores the account under the document the gateway holds
// for the customer, falling back to the one in the request.
func (o *Orchestrator) provisionAccount(ctx context.Context, req Request, customer Customer, secret HashedSecret) error {
	doc := NormalizeDocument(customer.BillingDocument)
	if doc == "" {
		doc = NormalizeDocument(req.BillingDocument)
	}
	err := o.accounts.Create(ctx, Account{
		BillingDocument: doc,
		Email:           strings.TrimSpace(req.Email),
		Name:            strings.TrimSpace(req.Name),
		CustomerRef:     customer.RemoteRef,
		Secret:          secret,
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAccountExists) {
		return NewError(KindValidation, "provision account", err)
	}
	return NewError(KindInternal, "provision account", err)
}

// compensate cancels a payment whose checkout can no longer complete. It
// runs detached from the caller's cancellation; when the gateway cannot be
// reached the cancellation is handed to the scheduler.
func (o *Orchestrator) compensate(ctx context.Context, log *zap.Logger, paymentRef string, cause error) Compensation {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	outcome := CompensationCancelled
	if err := o.gateway.CancelPayment(cctx, paymentRef); err != nil {
		log.Error("payment cancellation failed, scheduling retry",
			zap.String("payment_ref", paymentRef), zap.Error(err))
		outcome = CompensationCancelPending
		if o.scheduler != nil {
			if err := o.scheduler.ScheduleCancel(cctx, paymentRef, cause.Error()); err != nil {
				log.Error("failed to schedule payment cancellation",
					zap.String("payment_ref", paymentRef), zap.Error(err))
			}
		}
	}
	if o.ledger != nil {
		if err := o.ledger.MarkCompensation(cctx, paymentRef, outcome); err != nil {
			log.Error("failed to mark compensation", zap.String("payment_ref", paymentRef), zap.Error(err))
		}
	}
	o.observer.ObserveCompensation(outcome)
	return outcome
}

func (o *Orchestrator) recordPayment(ctx context.Context, log *zap.Logger, checkoutID, planID string, payment PaymentIntent) {
	if o.ledger == nil {
		return
	}
	err := o.ledger.RecordPayment(context.WithoutCancel(ctx), LedgerEntry{
		CheckoutID:  checkoutID,
		PaymentRef:  payment.RemoteRef,
		CustomerRef: payment.CustomerRef,
		PlanID:      planID,
		Amount:      payment.Amount,
		Method:      payment.Method,
		Status:      payment.Status,
	})
	if err != nil {
		// The caller still receives the reference; only the audit row is lost.
		log.Error("failed to record payment in ledger", zap.String("payment_ref", payment.RemoteRef), zap.Error(err))
	}
}

func (o *Orchestrator) stageError(stage Stage, err error, progress *StageError) *StageError {
	kind := KindOf(err)
	message := err.Error()
	if kind == KindInternal {
		message = "internal error"
	}
	return &StageError{
		Stage:        stage,
		Kind:         kind,
		Message:      message,
		CustomerRef:  progress.CustomerRef,
		PaymentRef:   progress.PaymentRef,
		Compensation: progress.Compensation,
		Err:          err,
	}
}
