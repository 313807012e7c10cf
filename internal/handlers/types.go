package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	"pix_checkout_echo/internal/checkout"
	"pix_checkout_echo/internal/models"
)

// flexibleID accepts an identifier sent either as a JSON string or number.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number")
	}
	*f = flexibleID(n.String())
	return nil
}

// PlanUpdateBody is the JSON body of PATCH /admin/plans/:code.
type PlanUpdateBody struct {
	Name       *string `json:"name,omitempty"`
	PriceMinor *int64  `json:"priceMinor,omitempty"`
	IsActive   *bool   `json:"isActive,omitempty"`
}

// CheckoutRequestBody is the JSON body of POST /checkout.
type CheckoutRequestBody struct {
	PlanID              flexibleID `json:"planId"`
	BillingDocument     string     `json:"billingDocument"`
	Email               string     `json:"email"`
	Name                string     `json:"name"`
	NewAccountSecret    string     `json:"newAccountSecret,omitempty"`
	ExistingCustomerRef string     `json:"existingCustomerRef,omitempty"`
	Method              string     `json:"method,omitempty"`
}

func (b CheckoutRequestBody) toRequest() checkout.Request {
	return checkout.Request{
		PlanID:              string(b.PlanID),
		BillingDocument:     b.BillingDocument,
		Email:               b.Email,
		Name:                b.Name,
		NewAccountSecret:    b.NewAccountSecret,
		ExistingCustomerRef: b.ExistingCustomerRef,
		Method:              b.Method,
	}
}

// CheckoutResponse is returned once a checkout reaches DONE. Amount is in
// centavos.
type CheckoutResponse struct {
	Status        string     `json:"status"`
	CheckoutID    string     `json:"checkoutId"`
	CustomerRef   string     `json:"customerRef"`
	PaymentRef    string     `json:"paymentRef"`
	PaymentStatus string     `json:"paymentStatus"`
	Amount        int64      `json:"amount"`
	Method        string     `json:"method"`
	DueDate       string     `json:"dueDate,omitempty"`
	InvoiceURL    string     `json:"invoiceUrl,omitempty"`
	QrPayload     string     `json:"qrPayload,omitempty"`
	QrImage       string     `json:"qrImage,omitempty"`
	QrExpiresAt   *time.Time `json:"qrExpiresAt,omitempty"`
}

func newCheckoutResponse(result *checkout.Result) CheckoutResponse {
	resp := CheckoutResponse{
		Status:        "ok",
		CheckoutID:    result.CheckoutID,
		CustomerRef:   result.Customer.RemoteRef,
		PaymentRef:    result.Payment.RemoteRef,
		PaymentStatus: string(result.Payment.Status),
		Amount:        result.Payment.Amount,
		Method:        string(result.Payment.Method),
		InvoiceURL:    result.Payment.InvoiceURL,
	}
	if !result.Payment.DueDate.IsZero() {
		resp.DueDate = result.Payment.DueDate.Format("2006-01-02")
	}
	if result.QrCode != nil {
		expires := result.QrCode.ExpiresAt
		resp.QrPayload = result.QrCode.Payload
		resp.QrImage = result.QrCode.EncodedImage
		resp.QrExpiresAt = &expires
	}
	return resp
}

// QrCodeResponse is returned by the QR refetch endpoint.
type QrCodeResponse struct {
	Status      string    `json:"status"`
	PaymentRef  string    `json:"paymentRef"`
	QrPayload   string    `json:"qrPayload"`
	QrImage     string    `json:"qrImage"`
	QrExpiresAt time.Time `json:"qrExpiresAt"`
}

// LedgerEntryResponse is one row of the admin checkout listing.
type LedgerEntryResponse struct {
	CheckoutID   string    `json:"checkoutId"`
	PaymentRef   string    `json:"paymentRef"`
	CustomerRef  string    `json:"customerRef"`
	PlanID       string    `json:"planId"`
	Amount       int64     `json:"amount"`
	Method       string    `json:"method"`
	Status       string    `json:"status"`
	Compensation string    `json:"compensation,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func newLedgerEntryResponse(row models.CheckoutSession) LedgerEntryResponse {
	return LedgerEntryResponse{
		CheckoutID:   row.CheckoutID,
		PaymentRef:   row.PaymentRef,
		CustomerRef:  row.CustomerRef,
		PlanID:       row.PlanCode,
		Amount:       row.AmountMinor,
		Method:       row.Method,
		Status:       row.Status,
		Compensation: string(row.Compensation),
		CreatedAt:    row.CreatedAt,
	}
}

func getStringFromContext(c echo.Context, key string) string {
	val, ok := c.Get(key).(string)
	if !ok {
		return ""
	}
	return val
}
