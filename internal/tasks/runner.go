package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"pix_checkout_echo/internal/models"
)

const (
	runStatusSuccess         = "success"
	runStatusFailure         = "failure"
	runStatusHandlerNotFound = "handler_not_found"
)

// RunObserver counts task executions.
type RunObserver interface {
	ObserveTaskRun(task, status string)
}

// Runner executes due scheduled tasks.
type Runner struct {
	db       *gorm.DB
	registry *Registry
	observer RunObserver
	log      *zap.Logger
	backoff  time.Duration
	timeout  time.Duration
	batch    int
	now      func() time.Time
}

// NewRunner builds a runner. observer may be nil.
func NewRunner(db *gorm.DB, registry *Registry, observer RunObserver, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		db:       db,
		registry: registry,
		observer: observer,
		log:      log,
		backoff:  time.Minute,
		timeout:  30 * time.Second,
		batch:    100,
		now:      time.Now,
	}
}

// ProcessDue runs every active task whose due time has passed and returns
// how many were run.
func (r *Runner) ProcessDue(ctx context.Context) (int, error) {
	var pending []models.ScheduledTask
	err := r.db.WithContext(ctx).
		Where("status = ? AND due <= ?", models.ScheduledTaskStatusActive, r.now()).
		Order("due ASC").
		Limit(r.batch).
		Find(&pending).Error
	if err != nil {
		return 0, fmt.Errorf("fetch pending tasks: %w", err)
	}

	ran := 0
	for _, task := range pending {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}
		if err := r.executeTask(ctx, task); err != nil {
			r.log.Error("task bookkeeping failed", zap.Uint("task_id", task.ID), zap.Error(err))
			continue
		}
		ran++
	}
	return ran, nil
}

func (r *Runner) executeTask(ctx context.Context, task models.ScheduledTask) error {
	log := r.log.With(zap.Uint("task_id", task.ID), zap.String("task", task.TaskName))
	attempt := task.Attempts + 1
	startTime := r.now()

	handler, found := r.registry.Get(task.TaskName)
	if !found {
		log.Error("task handler not found")
		r.observe(task.TaskName, runStatusHandlerNotFound)
		return r.finish(ctx, task, models.ScheduledTaskHistory{
			ScheduledTaskID: task.ID,
			TaskName:        task.TaskName,
			RunAt:           startTime,
			Status:          runStatusHandlerNotFound,
			AttemptNumber:   attempt,
			Arguments:       task.Arguments,
			Error:           "handler not found",
		}, map[string]interface{}{
			"status":     models.ScheduledTaskStatusFailure,
			"last_run":   startTime,
			"attempts":   attempt,
			"last_error": "handler not found",
		})
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	result, err := handler(runCtx, task)
	cancel()
	elapsed := r.now().Sub(startTime)

	history := models.ScheduledTaskHistory{
		ScheduledTaskID: task.ID,
		TaskName:        task.TaskName,
		RunAt:           startTime,
		RuntimeMillis:   elapsed.Milliseconds(),
		AttemptNumber:   attempt,
		Arguments:       task.Arguments,
		Result:          result,
	}
	updates := map[string]interface{}{"last_run": startTime}

	if err != nil {
		history.Status = runStatusFailure
		history.Error = err.Error()
		updates["attempts"] = attempt
		updates["last_error"] = err.Error()
		if attempt >= task.MaxAttempt || isPermanent(err) {
			updates["status"] = models.ScheduledTaskStatusFailure
			log.Error("task failed permanently", zap.Int("attempt", attempt), zap.Error(err))
		} else {
			updates["due"] = startTime.Add(r.backoff * time.Duration(attempt))
			log.Warn("task failed, will retry", zap.Int("attempt", attempt), zap.Error(err))
		}
		r.observe(task.TaskName, runStatusFailure)
		return r.finish(ctx, task, history, updates)
	}

	history.Status = runStatusSuccess
	updates["attempts"] = 0
	updates["last_error"] = ""
	updates["status"] = models.ScheduledTaskStatusDone
	if next, ok := task.NextRecurrence(startTime); ok {
		updates["status"] = models.ScheduledTaskStatusActive
		updates["due"] = next
	}
	log.Info("task completed", zap.Duration("elapsed", elapsed))
	r.observe(task.TaskName, runStatusSuccess)
	return r.finish(ctx, task, history, updates)
}

func (r *Runner) finish(ctx context.Context, task models.ScheduledTask, history models.ScheduledTaskHistory, updates map[string]interface{}) error {
	// Bookkeeping outlives a cancelled worker context so a completed run is
	// never repeated.
	ctx = context.WithoutCancel(ctx)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&history).Error; err != nil {
			return err
		}
		result := tx.Model(&models.ScheduledTask{}).Where("id = ?", task.ID).Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errors.New("scheduled task vanished")
		}
		return nil
	})
}

func (r *Runner) observe(task, status string) {
	if r.observer != nil {
		r.observer.ObserveTaskRun(task, status)
	}
}
