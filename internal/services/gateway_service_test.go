package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pix_checkout_echo/internal/checkout"
)

// fakeGatewayServer mimics the subset of the gateway API the client uses.
type fakeGatewayServer struct {
	mu           sync.Mutex
	customers    map[string]customerPayload
	lastPayment  map[string]interface{}
	payments     []map[string]interface{}
	createStatus int
	paymentCode  int
	apiKeys      []string
}

func newFakeGatewayServer(t *testing.T) (*fakeGatewayServer, *GatewayService) {
	t.Helper()
	f := &fakeGatewayServer{customers: make(map[string]customerPayload)}
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/customers", f.handleCustomers)
	mux.HandleFunc("/v3/customers/cus_1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, customerPayload{ID: "cus_1", Name: "A", CpfCnpj: "12345678900"})
	})
	mux.HandleFunc("/v3/payments", f.handlePayments)
	mux.HandleFunc("/v3/payments/pay_1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "id": "pay_1"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id": "pay_1", "customer": "cus_1", "billingType": "PIX", "value": 19.9,
			"status": "RECEIVED", "dueDate": "2026-10-16", "dateCreated": "2026-10-16",
		})
	})
	mux.HandleFunc("/v3/payments/pay_1/pixQrCode", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, pixQrCodePayload{
			EncodedImage:   "iVBORw0KGgo=",
			Payload:        "00020101021226820014br.gov.bcb.pix",
			ExpirationDate: "2026-10-17 23:59:59",
		})
	})
	mux.HandleFunc("/v3/payments/pay_gone", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"errors": []map[string]string{{"code": "not_found", "description": "payment not found"}},
		})
	})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.apiKeys = append(f.apiKeys, r.Header.Get("access_token"))
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	client := NewGatewayService(GatewayConfig{
		BaseURL:  server.URL + "/v3/",
		APIKey:   "test-key",
		Timeout:  2 * time.Second,
		Location: time.UTC,
	})
	return f, client
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeGatewayServer) handleCustomers(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodGet:
		doc := r.URL.Query().Get("cpfCnpj")
		list := customerList{}
		if c, ok := f.customers[doc]; ok {
			list.Data = append(list.Data, c)
			list.TotalCount = 1
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		if f.createStatus != 0 {
			writeJSON(w, f.createStatus, map[string]interface{}{
				"errors": []map[string]string{{"code": "invalid_customer", "description": "conflict or failure"}},
			})
			return
		}
		var c customerPayload
		_ = json.NewDecoder(r.Body).Decode(&c)
		c.ID = "cus_new"
		f.customers[c.CpfCnpj] = c
		writeJSON(w, http.StatusOK, c)
	}
}

func (f *fakeGatewayServer) handlePayments(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Method == http.MethodGet {
		ref := r.URL.Query().Get("externalReference")
		list := paymentList{Data: []paymentPayload{}}
		for _, p := range f.payments {
			if p["externalReference"] != ref {
				continue
			}
			deleted, _ := p["deleted"].(bool)
			list.Data = append(list.Data, paymentPayload{
				ID:                p["id"].(string),
				Customer:          "cus_1",
				BillingType:       "PIX",
				Value:             json.Number("19.90"),
				Status:            "PENDING",
				DateCreated:       "2026-10-16",
				ExternalReference: ref,
				Deleted:           deleted,
			})
		}
		list.TotalCount = len(list.Data)
		writeJSON(w, http.StatusOK, list)
		return
	}
	if f.paymentCode != 0 {
		w.WriteHeader(f.paymentCode)
		_, _ = io.WriteString(w, "upstream failure")
		return
	}
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.lastPayment = body
	body["id"] = "pay_new"
	body["status"] = "PENDING"
	body["dateCreated"] = "2026-10-16"
	body["invoiceUrl"] = "https://gateway.example/i/pay_new"
	f.payments = append(f.payments, body)
	writeJSON(w, http.StatusOK, body)
}

func TestGateway_CustomerLookupAndCreate(t *testing.T) {
	f, client := newFakeGatewayServer(t)
	ctx := context.Background()

	missing, err := client.FindCustomerByDocument(ctx, "12345678900")
	require.NoError(t, err)
	assert.Nil(t, missing)

	result, err := client.CreateCustomer(ctx, checkout.Identity{BillingDocument: "12345678900", Email: "a@b.com", Name: "A"})
	require.NoError(t, err)
	require.NotNil(t, result.Created)
	assert.Equal(t, "cus_new", result.Created.RemoteRef)

	found, err := client.FindCustomerByDocument(ctx, "12345678900")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "cus_new", found.RemoteRef)
	assert.Contains(t, f.apiKeys, "test-key")
}

func TestGateway_CreateCustomerConflictIsAlreadyExists(t *testing.T) {
	f, client := newFakeGatewayServer(t)
	f.createStatus = http.StatusConflict

	result, err := client.CreateCustomer(context.Background(), checkout.Identity{BillingDocument: "12345678900", Name: "A"})

	require.NoError(t, err)
	assert.True(t, result.AlreadyExists)
	assert.Nil(t, result.Created)
}

func TestGateway_StatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   checkout.Kind
	}{
		{name: "bad request", status: http.StatusBadRequest, want: checkout.KindRejection},
		{name: "unauthorized", status: http.StatusUnauthorized, want: checkout.KindRejection},
		{name: "rate limited", status: http.StatusTooManyRequests, want: checkout.KindTransient},
		{name: "server error", status: http.StatusBadGateway, want: checkout.KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, client := newFakeGatewayServer(t)
			f.createStatus = tt.status

			_, err := client.CreateCustomer(context.Background(), checkout.Identity{BillingDocument: "12345678900", Name: "A"})

			require.Error(t, err)
			assert.Equal(t, tt.want, checkout.KindOf(err))
			assert.Contains(t, err.Error(), "invalid_customer")
		})
	}
}

func TestGateway_CreatePaymentSendsDecimalValue(t *testing.T) {
	f, client := newFakeGatewayServer(t)

	intent, err := client.CreatePayment(context.Background(), checkout.PaymentRequest{
		CustomerRef:       "cus_1",
		Amount:            1990,
		Method:            checkout.MethodPIX,
		DueDate:           time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
		ExternalReference: "ext-1",
		Description:       "Plan Basic",
	})

	require.NoError(t, err)
	assert.Equal(t, 19.9, f.lastPayment["value"])
	assert.Equal(t, "2026-10-16", f.lastPayment["dueDate"])
	assert.Equal(t, "PIX", f.lastPayment["billingType"])
	assert.Equal(t, "pay_new", intent.RemoteRef)
	assert.Equal(t, int64(1990), intent.Amount)
	assert.Equal(t, checkout.StatusPending, intent.Status)
	assert.Equal(t, checkout.MethodPIX, intent.Method)
	assert.Equal(t, "https://gateway.example/i/pay_new", intent.InvoiceURL)
}

func TestGateway_CreatePaymentServerErrorIsTransient(t *testing.T) {
	f, client := newFakeGatewayServer(t)
	f.paymentCode = http.StatusServiceUnavailable

	_, err := client.CreatePayment(context.Background(), checkout.PaymentRequest{CustomerRef: "cus_1", Amount: 100, Method: checkout.MethodPIX})

	assert.Equal(t, checkout.KindTransient, checkout.KindOf(err))
	assert.Contains(t, err.Error(), "upstream failure")
}

func TestGateway_PaymentStatusAndQrCode(t *testing.T) {
	_, client := newFakeGatewayServer(t)
	ctx := context.Background()

	payment, err := client.GetPayment(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, checkout.StatusConfirmed, payment.Status)

	qr, err := client.GetPixQrCode(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, "00020101021226820014br.gov.bcb.pix", qr.Payload)
	assert.Equal(t, time.Date(2026, 10, 17, 23, 59, 59, 0, time.UTC), qr.ExpiresAt)

	_, err = client.GetPayment(ctx, "pay_gone")
	assert.ErrorIs(t, err, checkout.ErrRemoteNotFound)
	assert.Contains(t, err.Error(), "payment not found")
}

func TestGateway_CancelPaymentIsIdempotent(t *testing.T) {
	_, client := newFakeGatewayServer(t)

	assert.NoError(t, client.CancelPayment(context.Background(), "pay_1"))
	assert.NoError(t, client.CancelPayment(context.Background(), "pay_gone"))
}

func TestGateway_UnreachableIsTransient(t *testing.T) {
	client := NewGatewayService(GatewayConfig{BaseURL: "http://127.0.0.1:1", Timeout: 500 * time.Millisecond})

	_, err := client.FindCustomerByDocument(context.Background(), "12345678900")

	assert.Equal(t, checkout.KindTransient, checkout.KindOf(err))
}

func TestMapPaymentStatus(t *testing.T) {
	tests := map[string]checkout.PaymentStatus{
		"PENDING":            checkout.StatusPending,
		"RECEIVED":           checkout.StatusConfirmed,
		"CONFIRMED":          checkout.StatusConfirmed,
		"OVERDUE":            checkout.StatusExpired,
		"REFUNDED":           checkout.StatusFailed,
		"CHARGEBACK_DISPUTE": checkout.StatusFailed,
	}
	for in, want := range tests {
		assert.Equal(t, want, mapPaymentStatus(in), in)
	}
}

func TestGateway_FindPaymentByExternalReference(t *testing.T) {
	f, client := newFakeGatewayServer(t)
	ctx := context.Background()
	f.payments = append(f.payments, map[string]interface{}{"id": "pay_old", "externalReference": "ext-1", "deleted": true})

	missing, err := client.FindPaymentByExternalReference(ctx, "ext-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = client.CreatePayment(ctx, checkout.PaymentRequest{
		CustomerRef:       "cus_1",
		Amount:            1990,
		Method:            checkout.MethodPIX,
		DueDate:           time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
		ExternalReference: "ext-1",
	})
	require.NoError(t, err)

	found, err := client.FindPaymentByExternalReference(ctx, "ext-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "pay_new", found.RemoteRef)
	assert.Equal(t, int64(1990), found.Amount)
	assert.Equal(t, "ext-1", found.ExternalReference)
}
