package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// QrCodeFetcher retrieves the PIX QR payload of a pending payment. Payloads
// expire independently of the payment, so nothing is cached.
type QrCodeFetcher struct {
	gateway Gateway
	now     func() time.Time
}

func NewQrCodeFetcher(gateway Gateway) *QrCodeFetcher {
	return &QrCodeFetcher{gateway: gateway, now: time.Now}
}

func (f *QrCodeFetcher) GetPixQrCode(ctx context.Context, paymentRef string) (PixQrCode, error) {
	const op = "get pix qr code"
	paymentRef = strings.TrimSpace(paymentRef)
	if paymentRef == "" {
		return PixQrCode{}, validationf(op, "payment reference is required")
	}

	payment, err := f.gateway.GetPayment(ctx, paymentRef)
	if err != nil {
		if errors.Is(err, ErrRemoteNotFound) {
			return PixQrCode{}, NewError(KindRejection, op, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentRef))
		}
		return PixQrCode{}, err
	}
	if payment.Method != MethodPIX || payment.Status != StatusPending {
		return PixQrCode{}, NewError(KindState, op,
			fmt.Errorf("%w: method=%s status=%s", ErrWrongState, payment.Method, payment.Status))
	}

	qr, err := f.gateway.GetPixQrCode(ctx, paymentRef)
	if err != nil {
		if errors.Is(err, ErrRemoteNotFound) {
			return PixQrCode{}, NewError(KindRejection, op, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentRef))
		}
		return PixQrCode{}, err
	}
	if strings.TrimSpace(qr.Payload) == "" {
		return PixQrCode{}, NewError(KindState, op, fmt.Errorf("%w: gateway returned an empty QR payload", ErrWrongState))
	}
	if !qr.ExpiresAt.After(f.now()) {
		return PixQrCode{}, NewError(KindState, op, fmt.Errorf("%w: QR code expired at %s", ErrWrongState, qr.ExpiresAt.Format(time.RFC3339)))
	}
	return qr, nil
}
