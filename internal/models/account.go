package models

import (
	"time"

	"gorm.io/gorm"
)

// Account is a user provisioned during checkout. PasswordHash holds a bcrypt
// hash, never plaintext.
type Account struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	BillingDocument string `gorm:"type:varchar(14);uniqueIndex" json:"billing_document"`
	Email           string `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	Name            string `gorm:"type:varchar(255)" json:"name"`
	CustomerRef     string `gorm:"type:varchar(64);index" json:"customer_ref"`
	PasswordHash    string `gorm:"type:varchar(255)" json:"-"`
}
