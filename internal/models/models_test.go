package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestPlanNextDue(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	monthly := Plan{PlanStartDate: start, RecurringInterval: strPtr("FREQ=MONTHLY;BYMONTHDAY=1")}
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), monthly.NextDue(now))

	assert.True(t, Plan{PlanStartDate: start}.NextDue(now).IsZero())
	assert.True(t, Plan{PlanStartDate: start, RecurringInterval: strPtr("not a rule")}.NextDue(now).IsZero())
}

func TestScheduledTaskNextRecurrence(t *testing.T) {
	due := time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC)
	now := due.Add(time.Minute)

	daily := ScheduledTask{Due: due, TaskType: ScheduledTaskTypeRecurring, RecurringInterval: strPtr("FREQ=DAILY")}
	next, ok := daily.NextRecurrence(now)
	assert.True(t, ok)
	assert.Equal(t, due.AddDate(0, 0, 1), next)

	_, ok = ScheduledTask{Due: due, TaskType: ScheduledTaskTypeOneTime}.NextRecurrence(now)
	assert.False(t, ok)
}
