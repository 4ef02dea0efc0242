package perf

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-catering/internal/balances"
	jobmetrics "github.com/odyssey-erp/odyssey-catering/internal/jobs"
	"github.com/odyssey-erp/odyssey-catering/jobs"
)

type flakyReconciler struct {
	calls  int
	failAt map[int]bool
}

func (f *flakyReconciler) next() error {
	f.calls++
	if f.failAt[f.calls] {
		return errors.New("lock timeout")
	}
	return nil
}

func (f *flakyReconciler) Check(context.Context) ([]balances.Drift, error) {
	return nil, f.next()
}

func (f *flakyReconciler) Repair(context.Context) ([]balances.Drift, error) {
	if err := f.next(); err != nil {
		return nil, err
	}
	return []balances.Drift{
		{Kind: balances.KindOrder, ID: 1, Field: "received_amount", Stored: decimal.Zero, Computed: decimal.NewFromInt(10)},
		{Kind: balances.KindSupplier, ID: 2, Field: "total_paid", Stored: decimal.Zero, Computed: decimal.NewFromInt(5)},
	}, nil
}

func TestReconcileJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	reconciler := &flakyReconciler{failAt: map[int]bool{7: true, 19: true}}
	job := jobs.NewReconcileJob(reconciler, nil, metrics)

	checkTask, err := jobs.NewReconcileTask(jobs.ReconcilePayload{})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	repairTask, err := jobs.NewReconcileTask(jobs.ReconcilePayload{Repair: true})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	failures := 0
	for i := 0; i < 40; i++ {
		task := checkTask
		if i%4 == 0 {
			task = repairTask
		}
		if err := job.Handle(context.Background(), asynq.NewTask(task.Type(), task.Payload())); err != nil {
			failures++
		}
	}
	if failures != 2 {
		t.Fatalf("expected 2 failed runs, got %d", failures)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "odyssey_jobs_total", map[string]string{"job": jobs.TaskBalancesReconcile, "status": "success"})
	failure := metricValue(t, families, "odyssey_jobs_total", map[string]string{"job": jobs.TaskBalancesReconcile, "status": "failure"})
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("reconcile success ratio too low: %f", ratio)
	}

	repairs := metricValue(t, families, "odyssey_balance_repairs_total", map[string]string{"kind": balances.KindOrder})
	if repairs == 0 {
		t.Fatal("no repairs recorded for orders")
	}

	if mean := histogramMean(t, families, "odyssey_job_duration_seconds", map[string]string{"job": jobs.TaskBalancesReconcile}); mean > 0.5 {
		t.Fatalf("reconcile duration above budget: %f", mean)
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
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
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
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
