package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/storefront/internal/jobs"
)

type pruneCall struct {
	retention time.Duration
	deadline  bool
}

func newTestJob(t *testing.T, rows int64, err error) (*PruneJob, *[]pruneCall, *prometheus.Registry) {
	t.Helper()
	calls := &[]pruneCall{}
	reg := prometheus.NewRegistry()
	prune := func(ctx context.Context, retention time.Duration) (int64, error) {
		_, ok := ctx.Deadline()
		*calls = append(*calls, pruneCall{retention: retention, deadline: ok})
		return rows, err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPruneJob(TaskAuditPrune, prune, 90*24*time.Hour, logger, jobmetrics.NewMetrics(reg)), calls, reg
}

func TestPruneJobUsesPayloadRetention(t *testing.T) {
	job, calls, reg := newTestJob(t, 7, nil)
	task, err := NewPruneTask(TaskAuditPrune, 48*time.Hour)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, *calls, 1)
	assert.Equal(t, 48*time.Hour, (*calls)[0].retention)
	assert.True(t, (*calls)[0].deadline)

	assert.Equal(t, float64(7), counterValue(t, reg, "storefront_jobs_pruned_rows_total", "job", TaskAuditPrune))
	assert.Equal(t, float64(1), counterValue(t, reg, "storefront_jobs_total", "status", "success"))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == label && l.GetValue() == value {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}

func TestPruneJobFallsBackToDefaultRetention(t *testing.T) {
	job, calls, _ := newTestJob(t, 0, nil)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskAuditPrune, nil)))
	task, err := NewPruneTask(TaskAuditPrune, 0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, *calls, 2)
	for _, c := range *calls {
		assert.Equal(t, 90*24*time.Hour, c.retention)
	}
}

func TestPruneJobRejectsMalformedPayload(t *testing.T) {
	job, calls, _ := newTestJob(t, 0, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskAuditPrune, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, *calls)
}

func TestPruneJobReportsFailure(t *testing.T) {
	boom := errors.New("db down")
	job, _, reg := newTestJob(t, 0, boom)
	err := job.Handle(context.Background(), asynq.NewTask(TaskAuditPrune, nil))
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, float64(1), counterValue(t, reg, "storefront_jobs_total", "status", "failure"))
}

func TestNewPruneTaskValidates(t *testing.T) {
	_, err := NewPruneTask("email:send", time.Hour)
	assert.Error(t, err)
	_, err = NewPruneTask(TaskSessionsPrune, -time.Hour)
	assert.Error(t, err)

	task, err := NewPruneTask(TaskSessionsPrune, 36*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, TaskSessionsPrune, task.Type())
	var payload PrunePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, 36, payload.RetentionHours)
}

func TestHealthWithoutInspector(t *testing.T) {
	router := chi.NewRouter()
	router.Route("/jobs", NewHandler(nil, slog.Default()).MountRoutes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body QueueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, QueueDefault, body.Queue)
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	assert.Error(t, err)
}
