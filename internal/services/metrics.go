package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pix_checkout_echo/internal/checkout"
)

// CheckoutMetrics exports checkout stage outcomes to Prometheus.
type CheckoutMetrics struct {
	stageTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	compensations *prometheus.CounterVec
	taskRuns      *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout collectors on registerer, which
// defaults to the global registry.
func NewCheckoutMetrics(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &CheckoutMetrics{
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pix_checkout",
			Name:      "stage_total",
			Help:      "Checkout stages completed, by stage and outcome.",
		}, []string{"stage", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pix_checkout",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each checkout stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"stage"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pix_checkout",
			Name:      "compensation_total",
			Help:      "Payment cancellations triggered by failed checkouts, by result.",
		}, []string{"result"}),
		taskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pix_checkout",
			Name:      "scheduled_task_runs_total",
			Help:      "Scheduled task executions, by task and status.",
		}, []string{"task", "status"}),
	}
	registerer.MustRegister(m.stageTotal, m.stageDuration, m.compensations, m.taskRuns)
	return m
}

// ObserveStage records one stage. An empty kind means the stage succeeded.
func (m *CheckoutMetrics) ObserveStage(stage checkout.Stage, kind checkout.Kind, elapsed time.Duration) {
	outcome := "ok"
	if kind != "" {
		outcome = string(kind)
	}
	m.stageTotal.WithLabelValues(string(stage), outcome).Inc()
	m.stageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

func (m *CheckoutMetrics) ObserveCompensation(outcome checkout.Compensation) {
	if outcome == checkout.CompensationNone {
		return
	}
	m.compensations.WithLabelValues(string(outcome)).Inc()
}

// ObserveTaskRun counts one worker task execution.
func (m *CheckoutMetrics) ObserveTaskRun(task, status string) {
	m.taskRuns.WithLabelValues(task, status).Inc()
}
