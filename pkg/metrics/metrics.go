package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue metrics
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentcoord_queue_depth",
			Help: "Number of tasks by queue bucket (ready, leased)",
		},
		[]string{"bucket"},
	)

	TaskClaimLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentcoord_task_claim_latency_seconds",
			Help:    "Time from task creation to claim in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	TasksCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentcoord_tasks_completed_total",
			Help: "Total number of tasks completed",
		},
	)

	TasksFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentcoord_tasks_failed_total",
			Help: "Total number of task failure transitions (retry or escalation)",
		},
	)

	TasksEscalatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentcoord_tasks_escalated_total",
			Help: "Total number of tasks that reached escalated status",
		},
	)

	// File lock metrics
	LockContentionTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentcoord_lock_contention_total",
			Help: "Total number of lock acquisition attempts that failed with LockBusy",
		},
	)

	LocksHeld = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentcoord_locks_held",
			Help: "Number of file locks currently live",
		},
	)

	// Agent registry metrics
	HungAgents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentcoord_hung_agents",
			Help: "Number of agents currently flagged hung",
		},
	)

	AgentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentcoord_agents_total",
			Help: "Total number of known agents by computed status",
		},
		[]string{"status"},
	)

	// Approval metrics
	ApprovalWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentcoord_approval_wait_duration_seconds",
			Help:    "Time a caller spent blocked in WaitForDecision in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	ApprovalsPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentcoord_approvals_pending",
			Help: "Number of approval requests still pending",
		},
	)

	// Auto-scaler metrics
	AutoscalerSpawnsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentcoord_autoscaler_spawns_total",
			Help: "Total number of workers spawned by the auto-scaler",
		},
	)

	AutoscalerTerminationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentcoord_autoscaler_terminations_total",
			Help: "Total number of workers terminated by the auto-scaler",
		},
	)

	AutoscalerDesiredWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentcoord_autoscaler_desired_workers",
			Help: "Auto-scaler's most recently computed desired worker count",
		},
	)

	// LLM budget metrics
	LLMSlotsInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentcoord_llm_slots_in_use",
			Help: "Current in-flight LLM calls against the concurrency cap",
		},
	)

	LLMBudgetExceededTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentcoord_llm_budget_exceeded_total",
			Help: "Total number of AcquireSlot calls refused by the daily budget cap",
		},
	)
)

func init() {
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(TaskClaimLatency)
	prometheus.MustRegister(TasksCompletedTotal)
	prometheus.MustRegister(TasksFailedTotal)
	prometheus.MustRegister(TasksEscalatedTotal)
	prometheus.MustRegister(LockContentionTotal)
	prometheus.MustRegister(LocksHeld)
	prometheus.MustRegister(HungAgents)
	prometheus.MustRegister(AgentsTotal)
	prometheus.MustRegister(ApprovalWaitDuration)
	prometheus.MustRegister(ApprovalsPending)
	prometheus.MustRegister(AutoscalerSpawnsTotal)
	prometheus.MustRegister(AutoscalerTerminationsTotal)
	prometheus.MustRegister(AutoscalerDesiredWorkers)
	prometheus.MustRegister(LLMSlotsInUse)
	prometheus.MustRegister(LLMBudgetExceededTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
