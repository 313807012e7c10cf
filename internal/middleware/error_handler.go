package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"pix_checkout_echo/internal/checkout"
)

// ErrorResponse is the single JSON shape of every failed request.
type ErrorResponse struct {
	Status       string `json:"status"`
	Stage        string `json:"stage,omitempty"`
	Kind         string `json:"kind"`
	Message      string `json:"message"`
	CustomerRef  string `json:"customerRef,omitempty"`
	PaymentRef   string `json:"paymentRef,omitempty"`
	Compensation string `json:"compensation,omitempty"`
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, checkout.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, checkout.ErrPaymentNotFound):
		return http.StatusNotFound
	}
	switch checkout.KindOf(err) {
	case checkout.KindValidation:
		return http.StatusBadRequest
	case checkout.KindState:
		return http.StatusConflict
	case checkout.KindTransient:
		return http.StatusGatewayTimeout
	case checkout.KindRejection:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// JSONErrorHandler renders every error as an ErrorResponse. Stack traces and
// internal error text never reach the client.
func JSONErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, body := buildErrorResponse(err)

		fields := []zap.Field{
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.String("kind", body.Kind),
			zap.Error(err),
		}
		if body.Stage != "" {
			fields = append(fields, zap.String("stage", body.Stage))
		}
		if body.PaymentRef != "" {
			fields = append(fields, zap.String("payment_ref", body.PaymentRef))
		}
		if code >= http.StatusInternalServerError {
			log.Error("request failed", fields...)
		} else {
			log.Info("request rejected", fields...)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, body)
		}
		if writeErr != nil {
			log.Error("failed to write error response", zap.Error(writeErr))
		}
	}
}

func buildErrorResponse(err error) (int, ErrorResponse) {
	var stageErr *checkout.StageError
	if errors.As(err, &stageErr) {
		return StatusFor(stageErr), ErrorResponse{
			Status:       "error",
			Stage:        string(stageErr.Stage),
			Kind:         string(stageErr.Kind),
			Message:      stageErr.Message,
			CustomerRef:  stageErr.CustomerRef,
			PaymentRef:   stageErr.PaymentRef,
			Compensation: string(stageErr.Compensation),
		}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		kind := checkout.KindValidation
		if he.Code >= http.StatusInternalServerError {
			kind = checkout.KindInternal
		}
		message := http.StatusText(he.Code)
		if msg, ok := he.Message.(string); ok && msg != "" {
			message = msg
		}
		return he.Code, ErrorResponse{Status: "error", Kind: string(kind), Message: message}
	}

	kind := checkout.KindOf(err)
	message := err.Error()
	if kind == checkout.KindInternal {
		message = "internal error"
	}
	return StatusFor(err), ErrorResponse{Status: "error", Kind: string(kind), Message: message}
}
