package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"pix_checkout_echo/internal/checkout"
	"pix_checkout_echo/internal/models"
)

// DefaultPriceCacheTTL bounds how long a price change takes to reach
// checkouts.
const DefaultPriceCacheTTL = 5 * time.Minute

// cachedPlan is the cached projection of a plan row. The due date is derived
// per lookup so a cached entry never carries a stale cycle.
type cachedPlan struct {
	Code              string    `json:"code"`
	Name              string    `json:"name"`
	PriceMinor        int64     `json:"price_minor"`
	PlanStartDate     time.Time `json:"plan_start_date"`
	RecurringInterval *string   `json:"recurring_interval,omitempty"`
}

// PriceService answers plan price lookups from the plans table, with a Redis
// cache in front.
type PriceService struct {
	db    *gorm.DB
	cache *RedisCache
	ttl   time.Duration
	sfg   singleflight.Group
	now   func() time.Time
}

// NewPriceService builds a price lookup. cache may be nil.
func NewPriceService(db *gorm.DB, cache *RedisCache, ttl time.Duration) *PriceService {
	if ttl <= 0 {
		ttl = DefaultPriceCacheTTL
	}
	return &PriceService{db: db, cache: cache, ttl: ttl, now: time.Now}
}

func priceCacheKey(planID string) string {
	return "plan_price:" + planID
}

func (s *PriceService) LookupPlan(ctx context.Context, planID string) (checkout.PlanPrice, error) {
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return checkout.PlanPrice{}, fmt.Errorf("empty plan id: %w", checkout.ErrPlanNotFound)
	}

	// Concurrent misses for the same plan share one database read.
	v, err, _ := s.sfg.Do(planID, func() (interface{}, error) {
		return GetOrSet(s.cache, ctx, priceCacheKey(planID), s.ttl, func() (cachedPlan, error) {
			return s.loadPlan(ctx, planID)
		})
	})
	if err != nil {
		return checkout.PlanPrice{}, err
	}

	plan := v.(cachedPlan)
	row := models.Plan{PlanStartDate: plan.PlanStartDate, RecurringInterval: plan.RecurringInterval}
	return checkout.PlanPrice{
		PlanID:  plan.Code,
		Name:    plan.Name,
		Amount:  plan.PriceMinor,
		NextDue: row.NextDue(s.now()),
	}, nil
}

func (s *PriceService) loadPlan(ctx context.Context, planID string) (cachedPlan, error) {
	var plan models.Plan
	err := s.db.WithContext(ctx).
		Where("code = ? AND is_active = ?", planID, true).
		First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cachedPlan{}, fmt.Errorf("plan %q: %w", planID, checkout.ErrPlanNotFound)
	}
	if err != nil {
		zap.L().Error("plan lookup failed", zap.String("plan_id", planID), zap.Error(err))
		return cachedPlan{}, checkout.NewError(checkout.KindInternal, "lookup plan", err)
	}
	return cachedPlan{
		Code:              plan.Code,
		Name:              plan.Name,
		PriceMinor:        plan.PriceMinor,
		PlanStartDate:     plan.PlanStartDate,
		RecurringInterval: plan.RecurringInterval,
	}, nil
}

// InvalidatePlan drops the cached price of planID.
func (s *PriceService) InvalidatePlan(ctx context.Context, planID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, priceCacheKey(planID))
}

// PlanUpdate carries the plan fields an operator may change. Nil fields are
// left as they are.
type PlanUpdate struct {
	Name       *string
	PriceMinor *int64
	IsActive   *bool
}

// UpdatePlan applies update to the plan identified by code and drops its
// cached price so the next checkout sees the change.
func (s *PriceService) UpdatePlan(ctx context.Context, code string, update PlanUpdate) (models.Plan, error) {
	const op = "update plan"
	code = strings.TrimSpace(code)
	changes := map[string]interface{}{}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return models.Plan{}, checkout.NewError(checkout.KindValidation, op, errors.New("name must not be empty"))
		}
		changes["name"] = name
	}
	if update.PriceMinor != nil {
		if *update.PriceMinor <= 0 {
			return models.Plan{}, checkout.NewError(checkout.KindValidation, op, errors.New("price must be positive"))
		}
		changes["price_minor"] = *update.PriceMinor
	}
	if update.IsActive != nil {
		changes["is_active"] = *update.IsActive
	}

	var plan models.Plan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code = ?", code).First(&plan).Error; err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		if err := tx.Model(&plan).Updates(changes).Error; err != nil {
			return err
		}
		return tx.First(&plan, plan.ID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Plan{}, fmt.Errorf("plan %q: %w", code, checkout.ErrPlanNotFound)
	}
	if err != nil {
		return models.Plan{}, checkout.NewError(checkout.KindInternal, op, err)
	}

	if err := s.InvalidatePlan(ctx, code); err != nil {
		// The entry still expires after the cache TTL.
		zap.L().Warn("plan cache invalidation failed", zap.String("plan_id", code), zap.Error(err))
	}
	return plan, nil
}
