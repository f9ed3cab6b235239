package perf

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/odyssey-erp/storefront/internal/jobs"
	"github.com/odyssey-erp/storefront/jobs"
)

func TestPruneJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fail := false
	sessions := jobs.NewPruneJob(jobs.TaskSessionsPrune, func(ctx context.Context, retention time.Duration) (int64, error) {
		time.Sleep(2 * time.Millisecond)
		if fail {
			return 0, errors.New("statement timeout")
		}
		return 25, nil
	}, 24*time.Hour, logger, metrics)

	task, err := jobs.NewPruneTask(jobs.TaskSessionsPrune, 0)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	for i := 0; i < 40; i++ {
		if err := sessions.Handle(context.Background(), task); err != nil {
			t.Fatalf("unexpected prune error: %v", err)
		}
	}
	fail = true
	for i := 0; i < 2; i++ {
		if err := sessions.Handle(context.Background(), task); err == nil {
			t.Fatal("expected error to propagate")
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	labels := map[string]string{"job": jobs.TaskSessionsPrune}
	success := metricValue(t, families, "storefront_jobs_total", map[string]string{"job": jobs.TaskSessionsPrune, "status": "success"})
	failure := metricValue(t, families, "storefront_jobs_total", map[string]string{"job": jobs.TaskSessionsPrune, "status": "failure"})
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("prune success ratio too low: %f", ratio)
	}
	if rows := metricValue(t, families, "storefront_jobs_pruned_rows_total", labels); rows != 1000 {
		t.Fatalf("expected 1000 pruned rows, got %f", rows)
	}
	if mean := histogramMean(t, families, "storefront_job_duration_seconds", labels); mean > 0.5 {
		t.Fatalf("prune duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) && fam.GetType() == dto.MetricType_COUNTER {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for key, want := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = lp.GetValue() == want
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
