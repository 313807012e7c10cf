package tasks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"pix_checkout_echo/internal/models"
)

// DefaultCancelDelay is how long a failed compensation waits before the
// worker retries it.
const DefaultCancelDelay = time.Minute

// Scheduler enqueues tasks for the worker.
type Scheduler struct {
	db          *gorm.DB
	cancelDelay time.Duration
	maxAttempt  int
	now         func() time.Time
}

func NewScheduler(db *gorm.DB, cancelDelay time.Duration, maxAttempt int) *Scheduler {
	if cancelDelay <= 0 {
		cancelDelay = DefaultCancelDelay
	}
	return &Scheduler{db: db, cancelDelay: cancelDelay, maxAttempt: maxAttempt, now: time.Now}
}

// Enqueue stores task as due work.
func (s *Scheduler) Enqueue(ctx context.Context, task *models.ScheduledTask) error {
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("enqueue %s: %w", task.TaskName, err)
	}
	zap.L().Info("task scheduled",
		zap.Uint("task_id", task.ID),
		zap.String("task", task.TaskName),
		zap.Time("due", task.Due),
	)
	return nil
}

// ScheduleCancel enqueues a cancel_payment task for paymentRef.
func (s *Scheduler) ScheduleCancel(ctx context.Context, paymentRef, reason string) error {
	task, err := BuildScheduledTask(
		CancelPaymentTaskName,
		CancelPaymentArgs{PaymentRef: paymentRef, Reason: reason},
		s.now().Add(s.cancelDelay),
		nil,
		models.ScheduledTaskTypeOneTime,
		s.maxAttempt,
	)
	if err != nil {
		return err
	}
	return s.Enqueue(ctx, task)
}
