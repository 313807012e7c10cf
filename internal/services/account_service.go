package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"pix_checkout_echo/internal/checkout"
	"pix_checkout_echo/internal/models"
)

// AccountService persists accounts provisioned during checkout.
type AccountService struct {
	db *gorm.DB
}

func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{db: db}
}

// Exists reports whether an account already uses the document or the email.
func (s *AccountService) Exists(ctx context.Context, billingDocument, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("billing_document = ? OR email = ?", billingDocument, email).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count accounts: %w", err)
	}
	return count > 0, nil
}

// Create inserts the account. A uniqueness violation maps to
// checkout.ErrAccountExists.
func (s *AccountService) Create(ctx context.Context, account checkout.Account) error {
	row := models.Account{
		BillingDocument: account.BillingDocument,
		Email:           strings.ToLower(strings.TrimSpace(account.Email)),
		Name:            account.Name,
		CustomerRef:     account.CustomerRef,
		PasswordHash:    string(account.Secret),
	}
	if row.PasswordHash == "" {
		return errors.New("account requires a password hash")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Account{}).
			Where("billing_document = ? OR email = ?", row.BillingDocument, row.Email).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return checkout.ErrAccountExists
		}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return checkout.ErrAccountExists
			}
			return fmt.Errorf("insert account: %w", err)
		}
		return nil
	})
}
