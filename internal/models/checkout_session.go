package models

import (
	"time"
)

// CheckoutCompensation mirrors the compensation state of a created payment.
type CheckoutCompensation string

const (
	CheckoutCompensationNone          CheckoutCompensation = ""
	CheckoutCompensationCancelled     CheckoutCompensation = "cancelled"
	CheckoutCompensationCancelPending CheckoutCompensation = "cancel_pending"
)

// CheckoutSession is one ledger row per payment created at the gateway. The
// checkout flow only appends to it; it is read by the admin listing and the
// compensation worker.
type CheckoutSession struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CheckoutID   string               `gorm:"type:varchar(36);index" json:"checkout_id"`
	PaymentRef   string               `gorm:"type:varchar(64);uniqueIndex" json:"payment_ref"`
	CustomerRef  string               `gorm:"type:varchar(64);index" json:"customer_ref"`
	PlanCode     string               `gorm:"type:varchar(64)" json:"plan_code"`
	AmountMinor  int64                `json:"amount_minor"`
	Method       string               `gorm:"type:varchar(20)" json:"method"`
	Status       string               `gorm:"type:varchar(20)" json:"status"`
	Compensation CheckoutCompensation `gorm:"type:varchar(20);index" json:"compensation"`
}
