package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const boletoDefaultDueDays = 3

// PaymentInitiator opens a payment intent for a resolved customer.
type PaymentInitiator struct {
	gateway  Gateway
	prices   PriceLookup
	retry    RetryPolicy
	location *time.Location
	now      func() time.Time
	log      *zap.Logger
}

func NewPaymentInitiator(gateway Gateway, prices PriceLookup, retry RetryPolicy, location *time.Location, log *zap.Logger) *PaymentInitiator {
	if location == nil {
		location = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentInitiator{
		gateway:  gateway,
		prices:   prices,
		retry:    retry,
		location: location,
		now:      time.Now,
		log:      log,
	}
}

// CreatePayment prices the plan and creates a PENDING intent on the
// gateway. Settlement happens asynchronously and is never awaited here.
func (p *PaymentInitiator) CreatePayment(ctx context.Context, customerRef, planID string, method Method) (PaymentIntent, error) {
	const op = "create payment"
	if strings.TrimSpace(customerRef) == "" {
		return PaymentIntent{}, validationf(op, "customer reference is required")
	}
	if strings.TrimSpace(planID) == "" {
		return PaymentIntent{}, validationf(op, "plan id is required")
	}
	if method != MethodPIX && method != MethodBoleto {
		return PaymentIntent{}, validationf(op, "unsupported payment method %q", method)
	}

	plan, err := p.prices.LookupPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return PaymentIntent{}, NewError(KindValidation, op, fmt.Errorf("unknown plan %q: %w", planID, ErrPlanNotFound))
		}
		if KindOf(err) == KindInternal {
			return PaymentIntent{}, NewError(KindInternal, op, fmt.Errorf("price lookup: %w", err))
		}
		return PaymentIntent{}, err
	}
	if plan.Amount <= 0 {
		return PaymentIntent{}, validationf(op, "plan %q has no positive price", planID)
	}

	req := PaymentRequest{
		CustomerRef:       customerRef,
		Amount:            plan.Amount,
		Method:            method,
		DueDate:           p.dueDate(method, plan),
		ExternalReference: uuid.NewString(),
		Description:       "Plan " + plan.Name,
	}

	// A transient failure may arrive after the gateway already stored the
	// payment, so every retry first looks for the external reference.
	attempt := 0
	intent, err := withRetry(ctx, p.retry, func(ctx context.Context) (PaymentIntent, error) {
		attempt++
		if attempt > 1 {
			if found, err := p.findExisting(ctx, req.ExternalReference); err != nil || found != nil {
				if found != nil {
					return *found, nil
				}
				return PaymentIntent{}, err
			}
		}
		return p.gateway.CreatePayment(ctx, req)
	})
	if err != nil && IsRetryable(err) {
		if found, findErr := p.findExisting(context.WithoutCancel(ctx), req.ExternalReference); findErr == nil && found != nil {
			intent, err = *found, nil
		}
	}
	if err != nil {
		return PaymentIntent{}, err
	}
	if intent.RemoteRef == "" {
		return PaymentIntent{}, NewError(KindRejection, op, errors.New("gateway returned a payment without reference"))
	}
	if intent.Amount == 0 {
		intent.Amount = plan.Amount
	}
	if intent.Method == "" {
		intent.Method = method
	}
	if intent.CustomerRef == "" {
		intent.CustomerRef = customerRef
	}
	if intent.Status == "" {
		intent.Status = StatusPending
	}

	p.log.Info("payment created",
		zap.String("payment_ref", intent.RemoteRef),
		zap.String("customer_ref", customerRef),
		zap.String("plan_id", planID),
		zap.Int64("amount", intent.Amount),
		zap.String("method", string(method)),
	)
	return intent, nil
}

func (p *PaymentInitiator) findExisting(ctx context.Context, externalReference string) (*PaymentIntent, error) {
	found, err := p.gateway.FindPaymentByExternalReference(ctx, externalReference)
	if err != nil || found == nil || found.RemoteRef == "" {
		return nil, err
	}
	p.log.Info("adopting payment created by an earlier attempt",
		zap.String("payment_ref", found.RemoteRef),
		zap.String("external_reference", externalReference),
	)
	return found, nil
}

// dueDate is today for PIX. BOLETO uses the plan's next billing occurrence
// when it lies ahead, otherwise a short grace period.
func (p *PaymentInitiator) dueDate(method Method, plan PlanPrice) time.Time {
	now := p.now().In(p.location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, p.location)
	if method == MethodPIX {
		return today
	}
	if !plan.NextDue.IsZero() {
		next := plan.NextDue.In(p.location)
		nextDay := time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, p.location)
		if nextDay.After(today) {
			return nextDay
		}
	}
	return today.AddDate(0, 0, boletoDefaultDueDays)
}
