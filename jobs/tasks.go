package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditPrune drops audit rows past retention.
	TaskAuditPrune = "audit:prune"
	// TaskSessionsPrune drops expired login session records.
	TaskSessionsPrune = "sessions:prune"
	// TaskIdempotencyPrune drops old idempotency keys.
	TaskIdempotencyPrune = "idempotency:prune"
)

// PrunePayload configures one retention run. Zero hours means the job
// default.
type PrunePayload struct {
	RetentionHours int `json:"retention_hours"`
}

// Retention converts the payload into a duration.
func (p PrunePayload) Retention() time.Duration {
	return time.Duration(p.RetentionHours) * time.Hour
}

// NewPruneTask constructs a retention task of taskType.
func NewPruneTask(taskType string, retention time.Duration) (*asynq.Task, error) {
	switch taskType {
	case TaskAuditPrune, TaskSessionsPrune, TaskIdempotencyPrune:
	default:
		return nil, errors.New("jobs: unknown prune task " + taskType)
	}
	if retention < 0 {
		return nil, errors.New("jobs: retention must not be negative")
	}
	data, err := json.Marshal(PrunePayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}
