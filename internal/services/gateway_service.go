package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"pix_checkout_echo/internal/checkout"
)

const (
	defaultGatewayTimeout = 10 * time.Second
	maxGatewayBody        = 1 << 20

	gatewayDateLayout     = "2006-01-02"
	gatewayDateTimeLayout = "2006-01-02 15:04:05"
)

// GatewayConfig configures the PIX gateway client.
type GatewayConfig struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	Location *time.Location
}

// GatewayService talks to the payment gateway's v3 REST API. Every call is
// bounded by Timeout and passes through a circuit breaker; failures come back
// as *checkout.Error so callers can decide on retries.
type GatewayService struct {
	baseURL  string
	apiKey   string
	timeout  time.Duration
	location *time.Location
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[[]byte]
}

func NewGatewayService(cfg GatewayConfig) *GatewayService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	location := cfg.Location
	if location == nil {
		location = GatewayLocation()
	}
	return &GatewayService{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		timeout:  timeout,
		location: location,
		client:   &http.Client{Timeout: timeout + time.Second},
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "payment-gateway",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// Only outages trip the breaker; a rejected request is a healthy gateway.
			IsSuccessful: func(err error) bool {
				if err == nil || errors.Is(err, context.Canceled) {
					return true
				}
				return checkout.KindOf(err) != checkout.KindTransient
			},
		}),
	}
}

// GatewayLocation is the gateway's business timezone. Due dates and QR
// expirations are expressed in it.
func GatewayLocation() *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		return time.FixedZone("BRT", -3*60*60)
	}
	return loc
}

type customerPayload struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	CpfCnpj string `json:"cpfCnpj"`
	Deleted bool   `json:"deleted,omitempty"`
}

type customerList struct {
	Data       []customerPayload `json:"data"`
	TotalCount int               `json:"totalCount"`
}

type paymentPayload struct {
	ID                string      `json:"id,omitempty"`
	Customer          string      `json:"customer"`
	BillingType       string      `json:"billingType"`
	Value             json.Number `json:"value"`
	DueDate           string      `json:"dueDate"`
	Status            string      `json:"status,omitempty"`
	DateCreated       string      `json:"dateCreated,omitempty"`
	InvoiceURL        string      `json:"invoiceUrl,omitempty"`
	ExternalReference string      `json:"externalReference,omitempty"`
	Description       string      `json:"description,omitempty"`
	Deleted           bool        `json:"deleted,omitempty"`
}

type paymentList struct {
	Data       []paymentPayload `json:"data"`
	TotalCount int              `json:"totalCount"`
}

type pixQrCodePayload struct {
	EncodedImage   string `json:"encodedImage"`
	Payload        string `json:"payload"`
	ExpirationDate string `json:"expirationDate"`
}

type gatewayErrorBody struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

func (s *GatewayService) FindCustomerByDocument(ctx context.Context, document string) (*checkout.Customer, error) {
	const op = "gateway find customer"
	query := url.Values{"cpfCnpj": {document}}
	var list customerList
	if err := s.makeRequest(ctx, op, http.MethodGet, "/customers?"+query.Encode(), nil, &list); err != nil {
		return nil, err
	}
	for _, c := range list.Data {
		if c.Deleted || c.CpfCnpj != document {
			continue
		}
		customer := toCustomer(c)
		return &customer, nil
	}
	return nil, nil
}

func (s *GatewayService) GetCustomer(ctx context.Context, ref string) (*checkout.Customer, error) {
	const op = "gateway get customer"
	var c customerPayload
	if err := s.makeRequest(ctx, op, http.MethodGet, "/customers/"+url.PathEscape(ref), nil, &c); err != nil {
		return nil, err
	}
	if c.Deleted {
		return nil, checkout.NewError(checkout.KindRejection, op, fmt.Errorf("%w: customer %s is deleted", checkout.ErrRemoteNotFound, ref))
	}
	customer := toCustomer(c)
	return &customer, nil
}

// CreateCustomer maps the gateway's 409 to AlreadyExists instead of an error.
func (s *GatewayService) CreateCustomer(ctx context.Context, identity checkout.Identity) (checkout.CreateCustomerResult, error) {
	const op = "gateway create customer"
	payload := customerPayload{
		Name:    identity.Name,
		Email:   identity.Email,
		CpfCnpj: identity.BillingDocument,
	}
	var created customerPayload
	err := s.makeRequest(ctx, op, http.MethodPost, "/customers", payload, &created)
	if errors.Is(err, checkout.ErrRemoteConflict) {
		return checkout.CreateCustomerResult{AlreadyExists: true}, nil
	}
	if err != nil {
		return checkout.CreateCustomerResult{}, err
	}
	if created.ID == "" {
		return checkout.CreateCustomerResult{}, checkout.NewError(checkout.KindRejection, op, errors.New("gateway returned a customer without id"))
	}
	customer := toCustomer(created)
	return checkout.CreateCustomerResult{Created: &customer}, nil
}

func (s *GatewayService) CreatePayment(ctx context.Context, req checkout.PaymentRequest) (checkout.PaymentIntent, error) {
	const op = "gateway create payment"
	payload := paymentPayload{
		Customer:          req.CustomerRef,
		BillingType:       string(req.Method),
		Value:             wireAmount(req.Amount),
		DueDate:           req.DueDate.In(s.location).Format(gatewayDateLayout),
		ExternalReference: req.ExternalReference,
		Description:       req.Description,
	}
	var created paymentPayload
	if err := s.makeRequest(ctx, op, http.MethodPost, "/payments", payload, &created); err != nil {
		return checkout.PaymentIntent{}, err
	}
	return s.toIntent(op, created)
}

func (s *GatewayService) FindPaymentByExternalReference(ctx context.Context, externalReference string) (*checkout.PaymentIntent, error) {
	const op = "gateway find payment"
	query := url.Values{"externalReference": {externalReference}}
	var list paymentList
	if err := s.makeRequest(ctx, op, http.MethodGet, "/payments?"+query.Encode(), nil, &list); err != nil {
		return nil, err
	}
	for _, p := range list.Data {
		if p.Deleted || p.ExternalReference != externalReference {
			continue
		}
		intent, err := s.toIntent(op, p)
		if err != nil {
			return nil, err
		}
		return &intent, nil
	}
	return nil, nil
}

func (s *GatewayService) GetPayment(ctx context.Context, ref string) (checkout.PaymentIntent, error) {
	const op = "gateway get payment"
	var p paymentPayload
	if err := s.makeRequest(ctx, op, http.MethodGet, "/payments/"+url.PathEscape(ref), nil, &p); err != nil {
		return checkout.PaymentIntent{}, err
	}
	if p.Deleted {
		return checkout.PaymentIntent{}, checkout.NewError(checkout.KindRejection, op, fmt.Errorf("%w: payment %s is deleted", checkout.ErrRemoteNotFound, ref))
	}
	return s.toIntent(op, p)
}

func (s *GatewayService) GetPixQrCode(ctx context.Context, ref string) (checkout.PixQrCode, error) {
	const op = "gateway get pix qr code"
	var qr pixQrCodePayload
	if err := s.makeRequest(ctx, op, http.MethodGet, "/payments/"+url.PathEscape(ref)+"/pixQrCode", nil, &qr); err != nil {
		return checkout.PixQrCode{}, err
	}
	expiresAt, err := s.parseTime(qr.ExpirationDate)
	if err != nil {
		return checkout.PixQrCode{}, checkout.NewError(checkout.KindRejection, op, fmt.Errorf("malformed expirationDate: %w", err))
	}
	return checkout.PixQrCode{
		Payload:      qr.Payload,
		EncodedImage: qr.EncodedImage,
		ExpiresAt:    expiresAt,
	}, nil
}

// CancelPayment deletes a pending payment. A payment that is already gone
// counts as cancelled.
func (s *GatewayService) CancelPayment(ctx context.Context, ref string) error {
	const op = "gateway cancel payment"
	err := s.makeRequest(ctx, op, http.MethodDelete, "/payments/"+url.PathEscape(ref), nil, nil)
	if errors.Is(err, checkout.ErrRemoteNotFound) {
		return nil
	}
	return err
}

func (s *GatewayService) makeRequest(ctx context.Context, op, method, endpoint string, payload, dest interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := s.breaker.Execute(func() ([]byte, error) {
		return s.do(ctx, op, method, endpoint, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return checkout.NewError(checkout.KindTransient, op, fmt.Errorf("gateway unavailable: %w", err))
		}
		return err
	}
	if dest == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return checkout.NewError(checkout.KindRejection, op, fmt.Errorf("malformed gateway response: %w", err))
	}
	return nil
}

func (s *GatewayService) do(ctx context.Context, op, method, endpoint string, payload interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, checkout.NewError(checkout.KindInternal, op, fmt.Errorf("failed to marshal payload: %w", err))
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, bodyReader)
	if err != nil {
		return nil, checkout.NewError(checkout.KindInternal, op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("access_token", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, checkout.NewError(checkout.KindTransient, op, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayBody))
	if err != nil {
		return nil, checkout.NewError(checkout.KindTransient, op, fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode >= 400 {
		return nil, classifyResponse(op, resp.StatusCode, body)
	}
	return body, nil
}

// classifyResponse maps gateway status codes onto the checkout taxonomy:
// 429 and 5xx are transient, 404 and 409 keep their sentinels, the rest of
// 4xx is an explicit rejection.
func classifyResponse(op string, status int, body []byte) error {
	detail := describeGatewayError(body)
	switch {
	case status == http.StatusNotFound:
		return checkout.NewError(checkout.KindRejection, op, fmt.Errorf("%w: %s", checkout.ErrRemoteNotFound, detail))
	case status == http.StatusConflict:
		return checkout.NewError(checkout.KindRejection, op, fmt.Errorf("%w: %s", checkout.ErrRemoteConflict, detail))
	case status == http.StatusTooManyRequests || status >= 500:
		return checkout.NewError(checkout.KindTransient, op, fmt.Errorf("gateway responded %d: %s", status, detail))
	default:
		return checkout.NewError(checkout.KindRejection, op, fmt.Errorf("gateway responded %d: %s", status, detail))
	}
}

func describeGatewayError(body []byte) string {
	var parsed gatewayErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Errors) > 0 {
		parts := make([]string, 0, len(parsed.Errors))
		for _, e := range parsed.Errors {
			parts = append(parts, strings.TrimSpace(e.Code+" "+e.Description))
		}
		return strings.Join(parts, "; ")
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	if text == "" {
		return "empty response"
	}
	return text
}

func toCustomer(c customerPayload) checkout.Customer {
	return checkout.Customer{
		RemoteRef:       c.ID,
		BillingDocument: c.CpfCnpj,
		Email:           c.Email,
		Name:            c.Name,
	}
}

func (s *GatewayService) toIntent(op string, p paymentPayload) (checkout.PaymentIntent, error) {
	amount, err := parseWireAmount(p.Value)
	if err != nil {
		return checkout.PaymentIntent{}, checkout.NewError(checkout.KindRejection, op, err)
	}
	intent := checkout.PaymentIntent{
		RemoteRef:         p.ID,
		CustomerRef:       p.Customer,
		Amount:            amount,
		Method:            checkout.Method(strings.ToUpper(p.BillingType)),
		Status:            mapPaymentStatus(p.Status),
		InvoiceURL:        p.InvoiceURL,
		ExternalReference: p.ExternalReference,
	}
	if p.DateCreated != "" {
		if intent.CreatedAt, err = s.parseTime(p.DateCreated); err != nil {
			return checkout.PaymentIntent{}, checkout.NewError(checkout.KindRejection, op, fmt.Errorf("malformed dateCreated: %w", err))
		}
	}
	if p.DueDate != "" {
		if intent.DueDate, err = s.parseTime(p.DueDate); err != nil {
			return checkout.PaymentIntent{}, checkout.NewError(checkout.KindRejection, op, fmt.Errorf("malformed dueDate: %w", err))
		}
	}
	return intent, nil
}

func (s *GatewayService) parseTime(raw string) (time.Time, error) {
	if t, err := time.ParseInLocation(gatewayDateTimeLayout, raw, s.location); err == nil {
		return t, nil
	}
	return time.ParseInLocation(gatewayDateLayout, raw, s.location)
}

func mapPaymentStatus(status string) checkout.PaymentStatus {
	switch strings.ToUpper(status) {
	case "PENDING", "AWAITING_RISK_ANALYSIS", "":
		return checkout.StatusPending
	case "RECEIVED", "CONFIRMED", "RECEIVED_IN_CASH":
		return checkout.StatusConfirmed
	case "OVERDUE":
		return checkout.StatusExpired
	default:
		return checkout.StatusFailed
	}
}
