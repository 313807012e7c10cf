package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"pix_checkout_echo/internal/checkout"
	"pix_checkout_echo/internal/models"
)

// ErrLedgerEntryNotFound is returned when no ledger row matches a payment.
var ErrLedgerEntryNotFound = errors.New("ledger entry not found")

// CheckoutLedger records every payment created by a checkout.
type CheckoutLedger struct {
	db *gorm.DB
}

func NewCheckoutLedger(db *gorm.DB) *CheckoutLedger {
	return &CheckoutLedger{db: db}
}

func (l *CheckoutLedger) RecordPayment(ctx context.Context, entry checkout.LedgerEntry) error {
	row := models.CheckoutSession{
		CheckoutID:  entry.CheckoutID,
		PaymentRef:  entry.PaymentRef,
		CustomerRef: entry.CustomerRef,
		PlanCode:    entry.PlanID,
		AmountMinor: entry.Amount,
		Method:      string(entry.Method),
		Status:      string(entry.Status),
	}
	if err := l.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("record payment %s: %w", entry.PaymentRef, err)
	}
	return nil
}

// MarkCompensation moves the ledger row of paymentRef to state.
func (l *CheckoutLedger) MarkCompensation(ctx context.Context, paymentRef string, state checkout.Compensation) error {
	result := l.db.WithContext(ctx).Model(&models.CheckoutSession{}).
		Where("payment_ref = ?", paymentRef).
		Update("compensation", models.CheckoutCompensation(state))
	if result.Error != nil {
		return fmt.Errorf("mark compensation %s: %w", paymentRef, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("payment %s: %w", paymentRef, ErrLedgerEntryNotFound)
	}
	return nil
}

// LedgerFilter narrows a ledger listing. Zero values match everything.
type LedgerFilter struct {
	Compensation *models.CheckoutCompensation
	CustomerRef  string
	Limit        int
}

// List returns ledger rows, newest first.
func (l *CheckoutLedger) List(ctx context.Context, filter LedgerFilter) ([]models.CheckoutSession, error) {
	query := l.db.WithContext(ctx).Model(&models.CheckoutSession{}).Order("id DESC")
	if filter.Compensation != nil {
		query = query.Where("compensation = ?", *filter.Compensation)
	}
	if filter.CustomerRef != "" {
		query = query.Where("customer_ref = ?", filter.CustomerRef)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var rows []models.CheckoutSession
	if err := query.Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (l *CheckoutLedger) FindByPaymentRef(ctx context.Context, paymentRef string) (*models.CheckoutSession, error) {
	var row models.CheckoutSession
	err := l.db.WithContext(ctx).Where("payment_ref = ?", paymentRef).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLedgerEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
