package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/storefront/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// PruneFunc deletes rows older than retention and reports how many went.
type PruneFunc func(ctx context.Context, retention time.Duration) (int64, error)

// PruneJob runs one retention policy.
type PruneJob struct {
	Task      string
	Prune     PruneFunc
	Retention time.Duration
	Timeout   time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewPruneJob wires a retention handler for task.
func NewPruneJob(task string, prune PruneFunc, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *PruneJob {
	return &PruneJob{Task: task, Prune: prune, Retention: retention, Timeout: 2 * time.Minute, Logger: logger, Metrics: metrics}
}

// Handle processes one prune task.
func (j *PruneJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Prune == nil {
		return errors.New("prune: handler not configured")
	}
	var payload PrunePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	retention := payload.Retention()
	if retention <= 0 {
		retention = j.Retention
	}

	tracker := j.metrics().Track(j.Task)
	logger := j.logger().With(slog.String("job", j.Task), slog.Duration("retention", retention))

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	start := time.Now()
	rows, err := j.Prune(ctx, retention)
	if err != nil {
		logger.Error("prune failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().AddPruned(j.Task, rows)
	logger.Info("prune completed", slog.Int64("rows", rows), slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *PruneJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PruneJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
