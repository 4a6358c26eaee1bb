package jobmetrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestTrackerStatuses(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	for i := 0; i < 5; i++ {
		if err := metrics.Track("approval:notify").End(nil); err != nil {
			t.Fatalf("unexpected error ending tracker: %v", err)
		}
	}
	if err := metrics.Track("approval:notify").End(errors.New("timeout")); err == nil {
		t.Fatal("expected error to propagate")
	}
	skip := fmt.Errorf("decode: %w", asynq.SkipRetry)
	if err := metrics.Track("approval:notify").End(skip); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected skip retry to propagate, got %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	labels := func(status string) map[string]string {
		return map[string]string{"job": "approval:notify", "status": status}
	}
	if got := metricValue(t, families, "odyssey_jobs_total", labels("success")); got != 5 {
		t.Fatalf("expected 5 successes, got %v", got)
	}
	if got := metricValue(t, families, "odyssey_jobs_total", labels("failure")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
	if got := metricValue(t, families, "odyssey_jobs_skipped_total", map[string]string{"job": "approval:notify"}); got != 1 {
		t.Fatalf("expected 1 skipped, got %v", got)
	}
	if got := sampleCount(t, families, "odyssey_job_duration_seconds", "approval:notify"); got != 7 {
		t.Fatalf("expected 7 duration samples, got %d", got)
	}
}

func TestWrapUsesTaskType(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	handler := metrics.Wrap(func(context.Context, *asynq.Task) error { return nil })

	if err := handler(context.Background(), asynq.NewTask("idempotency:cleanup", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	got := metricValue(t, families, "odyssey_jobs_total", map[string]string{"job": "idempotency:cleanup", "status": "success"})
	if got != 1 {
		t.Fatalf("expected 1 run, got %v", got)
	}
}

func TestNilMetricsTrackerPassesThrough(t *testing.T) {
	var metrics *Metrics
	want := errors.New("boom")
	if err := metrics.Track("x").End(want); !errors.Is(err, want) {
		t.Fatalf("expected error passthrough, got %v", err)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func sampleCount(t *testing.T, families []*dto.MetricFamily, name, job string) uint64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, map[string]string{"job": job}) {
				return metric.GetHistogram().GetSampleCount()
			}
		}
	}
	t.Fatalf("histogram %s for %s not found", name, job)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range metric.GetLabel() {
		val, ok := labels[lp.GetName()]
		if !ok {
			continue
		}
		if lp.GetValue() != val {
			return false
		}
		matched++
	}
	return matched == len(labels)
}
