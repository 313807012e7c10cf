package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"pix_checkout_echo/internal/models"
)

// DefaultMaxAttempt bounds how many times a failing task is retried.
const DefaultMaxAttempt = 5

// BuildScheduledTask converts typed args into a ScheduledTask row.
func BuildScheduledTask(taskName string, args interface{}, due time.Time, recurringInterval *string, taskType models.ScheduledTaskType, maxAttempt int) (*models.ScheduledTask, error) {
	argsBytes, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal args: %w", err)
	}

	var mapArgs map[string]interface{}
	if err := json.Unmarshal(argsBytes, &mapArgs); err != nil {
		return nil, fmt.Errorf("args must encode to a JSON object: %w", err)
	}

	if taskType == "" {
		taskType = models.ScheduledTaskTypeOneTime
	}
	if taskType == models.ScheduledTaskTypeRecurring && (recurringInterval == nil || *recurringInterval == "") {
		return nil, fmt.Errorf("recurring task %s needs a recurring interval", taskName)
	}
	if maxAttempt <= 0 {
		maxAttempt = DefaultMaxAttempt
	}

	return &models.ScheduledTask{
		TaskName:          taskName,
		Arguments:         mapArgs,
		Due:               due,
		RecurringInterval: recurringInterval,
		Status:            models.ScheduledTaskStatusActive,
		TaskType:          taskType,
		MaxAttempt:        maxAttempt,
	}, nil
}

func stringArg(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s not provided or invalid", key)
	}
	return v, nil
}
