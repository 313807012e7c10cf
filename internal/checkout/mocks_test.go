package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// fakeGateway is an in-memory gateway that enforces one customer per
// document, like the real one.
type fakeGateway struct {
	mu sync.Mutex

	customers map[string]Customer // by document
	payments  map[string]PaymentIntent
	qrCodes   map[string]PixQrCode

	// missLookups makes the first N document lookups report no customer.
	missLookups int

	findErrs    []error
	createErrs  []error
	paymentErrs []error
	// lostReplies stores the payment and then fails the call, as a
	// timeout after the gateway committed would.
	lostReplies     []error
	findPaymentErrs []error
	qrErr       error
	cancelErr   error

	findCalls          int
	getCustomerCalls   int
	createCalls        int
	createPaymentCalls int
	findPaymentCalls   int
	getPaymentCalls    int
	qrCalls            int
	cancelCalls        int

	lastPaymentRequests []PaymentRequest
	cancelled           []string
	seq                 int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		customers: make(map[string]Customer),
		payments:  make(map[string]PaymentIntent),
		qrCodes:   make(map[string]PixQrCode),
	}
}

func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (g *fakeGateway) FindCustomerByDocument(_ context.Context, document string) (*Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.findCalls++
	if err := popErr(&g.findErrs); err != nil {
		return nil, err
	}
	if g.missLookups > 0 {
		g.missLookups--
		return nil, nil
	}
	c, ok := g.customers[document]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (g *fakeGateway) GetCustomer(_ context.Context, ref string) (*Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getCustomerCalls++
	for _, c := range g.customers {
		if c.RemoteRef == ref {
			c := c
			return &c, nil
		}
	}
	return nil, NewError(KindRejection, "get customer", ErrRemoteNotFound)
}

func (g *fakeGateway) CreateCustomer(_ context.Context, identity Identity) (CreateCustomerResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if err := popErr(&g.createErrs); err != nil {
		return CreateCustomerResult{}, err
	}
	if _, ok := g.customers[identity.BillingDocument]; ok {
		return CreateCustomerResult{AlreadyExists: true}, nil
	}
	g.seq++
	c := Customer{
		RemoteRef:       fmt.Sprintf("cus_%06d", g.seq),
		BillingDocument: identity.BillingDocument,
		Email:           identity.Email,
		Name:            identity.Name,
	}
	g.customers[identity.BillingDocument] = c
	return CreateCustomerResult{Created: &c}, nil
}

func (g *fakeGateway) CreatePayment(_ context.Context, req PaymentRequest) (PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createPaymentCalls++
	g.lastPaymentRequests = append(g.lastPaymentRequests, req)
	if err := popErr(&g.paymentErrs); err != nil {
		return PaymentIntent{}, err
	}
	g.seq++
	p := PaymentIntent{
		RemoteRef:         fmt.Sprintf("pay_%06d", g.seq),
		CustomerRef:       req.CustomerRef,
		Amount:            req.Amount,
		Method:            req.Method,
		Status:            StatusPending,
		CreatedAt:         time.Now(),
		DueDate:           req.DueDate,
		ExternalReference: req.ExternalReference,
	}
	g.payments[p.RemoteRef] = p
	if req.Method == MethodPIX {
		g.qrCodes[p.RemoteRef] = PixQrCode{
			Payload:      "00020101021226820014br.gov.bcb.pix" + p.RemoteRef,
			EncodedImage: "iVBORw0KGgo=",
			ExpiresAt:    time.Now().Add(24 * time.Hour),
		}
	}
	if err := popErr(&g.lostReplies); err != nil {
		return PaymentIntent{}, err
	}
	return p, nil
}

func (g *fakeGateway) FindPaymentByExternalReference(_ context.Context, externalReference string) (*PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.findPaymentCalls++
	if err := popErr(&g.findPaymentErrs); err != nil {
		return nil, err
	}
	for _, p := range g.payments {
		if p.ExternalReference == externalReference {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (g *fakeGateway) GetPayment(_ context.Context, ref string) (PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getPaymentCalls++
	p, ok := g.payments[ref]
	if !ok {
		return PaymentIntent{}, NewError(KindRejection, "get payment", ErrRemoteNotFound)
	}
	return p, nil
}

func (g *fakeGateway) GetPixQrCode(_ context.Context, ref string) (PixQrCode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.qrCalls++
	if g.qrErr != nil {
		return PixQrCode{}, g.qrErr
	}
	qr, ok := g.qrCodes[ref]
	if !ok {
		return PixQrCode{}, NewError(KindRejection, "get qr code", ErrRemoteNotFound)
	}
	return qr, nil
}

func (g *fakeGateway) CancelPayment(_ context.Context, ref string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelCalls++
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancelled = append(g.cancelled, ref)
	delete(g.payments, ref)
	return nil
}

func (g *fakeGateway) remoteCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.findCalls + g.getCustomerCalls + g.createCalls + g.createPaymentCalls + g.findPaymentCalls + g.getPaymentCalls + g.qrCalls + g.cancelCalls
}

type fakePrices map[string]PlanPrice

func (f fakePrices) LookupPlan(_ context.Context, planID string) (PlanPrice, error) {
	p, ok := f[planID]
	if !ok {
		return PlanPrice{}, fmt.Errorf("lookup %s: %w", planID, ErrPlanNotFound)
	}
	return p, nil
}

type fakeHasher struct {
	err   error
	calls int
}

func (h *fakeHasher) Hash(secret string) (HashedSecret, error) {
	h.calls++
	if h.err != nil {
		return "", h.err
	}
	return HashedSecret("hashed:" + fmt.Sprint(len(secret))), nil
}

type fakeAccounts struct {
	existing  bool
	createErr error
	created   []Account
}

func (a *fakeAccounts) Exists(context.Context, string, string) (bool, error) {
	return a.existing, nil
}

func (a *fakeAccounts) Create(_ context.Context, account Account) error {
	if a.createErr != nil {
		return a.createErr
	}
	a.created = append(a.created, account)
	return nil
}

type fakeLedger struct {
	entries      []LedgerEntry
	compensation map[string]Compensation
}

func (l *fakeLedger) RecordPayment(_ context.Context, entry LedgerEntry) error {
	l.entries = append(l.entries, entry)
	return nil
}

func (l *fakeLedger) MarkCompensation(_ context.Context, paymentRef string, state Compensation) error {
	if l.compensation == nil {
		l.compensation = make(map[string]Compensation)
	}
	l.compensation[paymentRef] = state
	return nil
}

type fakeScheduler struct {
	scheduled []string
}

func (s *fakeScheduler) ScheduleCancel(_ context.Context, paymentRef, _ string) error {
	s.scheduled = append(s.scheduled, paymentRef)
	return nil
}

var errNetwork = NewError(KindTransient, "gateway", errors.New("connection reset by peer"))

var testRetry = RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
