package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"pix_checkout_echo/internal/config"
	"pix_checkout_echo/internal/models"
	"pix_checkout_echo/internal/services"
	"pix_checkout_echo/internal/tasks"
)

// schedule_task enqueues a task by hand, e.g. a payment cancellation that an
// operator decided on after reviewing /admin/checkouts.
func main() {
	taskName := flag.String("task_name", tasks.CancelPaymentTaskName, "Name of the task")
	argsStr := flag.String("arguments", "", "JSON arguments for the task (mandatory)")
	dueStr := flag.String("due", "", "Due date, RFC3339 or '2006-01-02 15:04' in America/Sao_Paulo (default: now)")
	taskType := flag.String("tasktype", string(models.ScheduledTaskTypeOneTime), "Task type: onetime or recurring")
	recurring := flag.String("recurring", "", "RRULE for recurring tasks")
	maxAttempt := flag.Int("max_attempt", tasks.DefaultMaxAttempt, "Max attempts")
	flag.Parse()

	if *argsStr == "" {
		fmt.Println(`Usage: schedule_task -arguments '{"payment_ref":"pay_123"}' [options]`)
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := services.NewLogger(services.LoggerConfig{Service: "schedule-task", Environment: cfg.AppEnv, Level: cfg.LogLevel, Format: "console"})
	if err != nil {
		panic(err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(*argsStr), &args); err != nil {
		log.Fatal("invalid JSON arguments", zap.Error(err))
	}

	due, err := parseDue(*dueStr, time.Now())
	if err != nil {
		log.Fatal("invalid due date", zap.Error(err))
	}

	var recurringPtr *string
	if *recurring != "" {
		recurringPtr = recurring
	}

	task, err := tasks.BuildScheduledTask(*taskName, args, due, recurringPtr, models.ScheduledTaskType(*taskType), *maxAttempt)
	if err != nil {
		log.Fatal("invalid task", zap.Error(err))
	}

	db, err := services.InitDB(cfg.DatabaseURL, cfg.GormLogLevel())
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	scheduler := tasks.NewScheduler(db, 0, *maxAttempt)
	if err := scheduler.Enqueue(context.Background(), task); err != nil {
		log.Fatal("failed to create task", zap.Error(err))
	}

	fmt.Printf("Created task %d (%s) due %s\n", task.ID, task.TaskName, task.Due.Format(time.RFC3339))
}

func parseDue(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return now, nil
	}
	if due, err := time.Parse(time.RFC3339, raw); err == nil {
		return due, nil
	}
	return time.ParseInLocation("2006-01-02 15:04", raw, services.GatewayLocation())
}
