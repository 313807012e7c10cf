package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"pix_checkout_echo/internal/checkout"
	"pix_checkout_echo/internal/models"
	"pix_checkout_echo/internal/services"
)

// LedgerLister lists checkout ledger rows.
type LedgerLister interface {
	List(ctx context.Context, filter services.LedgerFilter) ([]models.CheckoutSession, error)
}

// PlanUpdater changes plan rows and keeps the price cache coherent.
type PlanUpdater interface {
	UpdatePlan(ctx context.Context, code string, update services.PlanUpdate) (models.Plan, error)
}

type AdminHandler struct {
	ledger LedgerLister
	plans  PlanUpdater
}

func NewAdminHandler(ledger LedgerLister, plans PlanUpdater) *AdminHandler {
	return &AdminHandler{ledger: ledger, plans: plans}
}

// ListCheckouts handles GET /admin/checkouts.
func (h *AdminHandler) ListCheckouts(c echo.Context) error {
	filter := services.LedgerFilter{CustomerRef: c.QueryParam("customerRef")}

	switch raw := c.QueryParam("compensation"); raw {
	case "":
	case "none":
		none := models.CheckoutCompensationNone
		filter.Compensation = &none
	case string(models.CheckoutCompensationCancelled), string(models.CheckoutCompensationCancelPending):
		state := models.CheckoutCompensation(raw)
		filter.Compensation = &state
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "compensation must be one of none, cancelled, cancel_pending")
	}

	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		filter.Limit = limit
	}

	rows, err := h.ledger.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}

	entries := make([]LedgerEntryResponse, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, newLedgerEntryResponse(row))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"checkouts": entries,
		"viewer":    getStringFromContext(c, "userUID"),
	})
}

// UpdatePlan handles PATCH /admin/plans/:code.
func (h *AdminHandler) UpdatePlan(c echo.Context) error {
	var body PlanUpdateBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	plan, err := h.plans.UpdatePlan(c.Request().Context(), strings.TrimSpace(c.Param("code")), services.PlanUpdate{
		Name:       body.Name,
		PriceMinor: body.PriceMinor,
		IsActive:   body.IsActive,
	})
	switch {
	case errors.Is(err, checkout.ErrPlanNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "plan not found")
	case checkout.KindOf(err) == checkout.KindValidation:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"plan":   plan,
		"viewer": getStringFromContext(c, "userUID"),
	})
}
