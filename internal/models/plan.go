package models

import (
	"time"

	"github.com/teambition/rrule-go"
	"gorm.io/gorm"
)

// Plan is a purchasable plan. Prices are stored in centavos.
type Plan struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Code              string    `gorm:"type:varchar(64);uniqueIndex" json:"code"`
	Name              string    `gorm:"type:varchar(255)" json:"name"`
	PriceMinor        int64     `gorm:"not null" json:"price_minor"`
	PlanStartDate     time.Time `json:"plan_start_date"`
	RecurringInterval *string   `gorm:"type:text" json:"recurring_interval"` // RFC 5545 RRULE string
	IsActive          bool      `gorm:"default:true" json:"is_active"`
}

// NextDue returns the first billing cycle occurrence on or after now, or the
// zero time when the plan has no usable cycle.
func (p Plan) NextDue(now time.Time) time.Time {
	if p.RecurringInterval == nil || *p.RecurringInterval == "" {
		return time.Time{}
	}
	rule, err := rrule.StrToRRule(*p.RecurringInterval)
	if err != nil {
		return time.Time{}
	}
	rule.DTStart(p.PlanStartDate)
	return rule.After(now, true)
}
