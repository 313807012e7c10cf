package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"pix_checkout_echo/internal/checkout"
)

// Checkouter runs the checkout state machine.
type Checkouter interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

// QrCodeSource fetches a live PIX QR code for a payment.
type QrCodeSource interface {
	GetPixQrCode(ctx context.Context, paymentRef string) (checkout.PixQrCode, error)
}

type CheckoutHandler struct {
	checkouts Checkouter
	qrCodes   QrCodeSource
	log       *zap.Logger
}

func NewCheckoutHandler(checkouts Checkouter, qrCodes QrCodeSource, log *zap.Logger) *CheckoutHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CheckoutHandler{checkouts: checkouts, qrCodes: qrCodes, log: log}
}

// CreateCheckout handles POST /checkout.
func (h *CheckoutHandler) CreateCheckout(c echo.Context) error {
	var body CheckoutRequestBody
	if err := c.Bind(&body); err != nil {
		message := "malformed request body"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			if msg, ok := he.Message.(string); ok && msg != "" {
				message = msg
			}
		}
		return &checkout.StageError{
			Stage:   checkout.StageStart,
			Kind:    checkout.KindValidation,
			Message: message,
			Err:     err,
		}
	}

	result, err := h.checkouts.Checkout(c.Request().Context(), body.toRequest())
	if err != nil {
		return err
	}

	h.log.Info("checkout completed",
		zap.String("checkout_id", result.CheckoutID),
		zap.String("payment_ref", result.Payment.RemoteRef),
		zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
	)
	return c.JSON(http.StatusCreated, newCheckoutResponse(result))
}

// GetQrCode handles GET /checkout/:paymentRef/qrcode. QR payloads expire
// independently of the payment, so clients refetch here instead of
// re-running the checkout.
func (h *CheckoutHandler) GetQrCode(c echo.Context) error {
	paymentRef := strings.TrimSpace(c.Param("paymentRef"))

	qr, err := h.qrCodes.GetPixQrCode(c.Request().Context(), paymentRef)
	if err != nil {
		kind := checkout.KindOf(err)
		message := err.Error()
		if kind == checkout.KindInternal {
			message = "internal error"
		}
		return &checkout.StageError{
			Stage:      checkout.StageFetchQR,
			Kind:       kind,
			Message:    message,
			PaymentRef: paymentRef,
			Err:        err,
		}
	}

	return c.JSON(http.StatusOK, QrCodeResponse{
		Status:      "ok",
		PaymentRef:  paymentRef,
		QrPayload:   qr.Payload,
		QrImage:     qr.EncodedImage,
		QrExpiresAt: qr.ExpiresAt,
	})
}
