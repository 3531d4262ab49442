/*
Package metrics provides Prometheus metrics collection and exposition for
the coordination core.

The metrics package defines and registers every coordination metric using
the Prometheus client library, giving observability into queue depth,
lock contention, agent health, approval latency, auto-scaler behavior, and
LLM budget consumption. Metrics are exposed via an HTTP endpoint for
scraping by a Prometheus server.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  │  - Automatic Go runtime metrics             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Types                   │          │
	│  │                                              │          │
	│  │  Gauge: Instant values (queue depth)        │          │
	│  │  Counter: Monotonic increases (tasks done)  │          │
	│  │  Histogram: Distributions (claim latency)   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Queue: Depth, claim latency, outcomes      │          │
	│  │  Locks: Contention, held count              │          │
	│  │  Agents: Status breakdown, hung count       │          │
	│  │  Approvals: Wait duration, pending count    │          │
	│  │  Autoscaler: Spawns, terminations, desired  │          │
	│  │  LLM budget: Slots in use, exceeded count   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Prometheus Server                   │          │
	│  │  - Scrapes /metrics periodically            │          │
	│  │  - Stores time series data                  │          │
	│  │  - Provides PromQL query interface          │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

The counters and histograms are defined and registered here, but no
other package of this module updates them: pkg/queue, pkg/filelock,
pkg/approval, pkg/autoscaler and pkg/llmbudget do not call into
pkg/metrics, so those series stay at zero unless the embedding
process updates them. Gauge-shaped totals — queue depth, locks held,
pending approvals, agent status counts — are sampled periodically by
Collector, which polls narrow interfaces over pkg/queue, pkg/registry,
pkg/filelock, and pkg/approval on a ticker. This mirrors the teacher's
own Collector, repointed from cluster/Raft/service/task polling to the
coordination domain.

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered at package init
  - Automatic collection of Go runtime metrics
  - Thread-safe for concurrent updates

Gauge Metrics:
  - Instant value that can go up or down
  - Examples: queue depth, locks held, LLM slots in use
  - Operations: Set, Inc, Dec, Add, Sub

Counter Metrics:
  - Monotonically increasing value
  - Examples: tasks completed total, autoscaler spawns total
  - Operations: Inc, Add (cannot decrease)

Histogram Metrics:
  - Distribution of observed values
  - Buckets for latency percentiles (p50, p95, p99)
  - Examples: task claim latency, approval wait duration
  - Includes: sum, count, buckets

Timer Helper:
  - Convenience wrapper for timing operations
  - Start timer, observe duration to histogram
  - Supports label values for histogram vectors

Collector:
  - Ticker-driven background sampler (default interval 15s)
  - Polls QueueSource, RegistrySource, LockSource, ApprovalSource
  - Any source may be nil to skip that metric family
  - Swallows per-family errors rather than aborting the whole cycle,
    so one unhealthy component doesn't blank out the others' gauges

# Metrics Catalog

Queue Metrics:

agentcoord_queue_depth{bucket}:
  - Type: Gauge
  - Description: Number of tasks by queue bucket
  - Labels: bucket ("ready", "leased")
  - Example: agentcoord_queue_depth{bucket="ready"} 12

agentcoord_task_claim_latency_seconds:
  - Type: Histogram
  - Description: Time from task creation to claim
  - Buckets: Default Prometheus buckets

agentcoord_tasks_completed_total:
  - Type: Counter
  - Description: Total tasks completed

agentcoord_tasks_failed_total:
  - Type: Counter
  - Description: Total task failure transitions (retry or escalation)

agentcoord_tasks_escalated_total:
  - Type: Counter
  - Description: Total tasks that reached escalated status

File Lock Metrics:

agentcoord_lock_contention_total:
  - Type: Counter
  - Description: Total lock acquisition attempts that failed with LockBusy

agentcoord_locks_held:
  - Type: Gauge
  - Description: Number of file locks currently live

Agent Registry Metrics:

agentcoord_hung_agents:
  - Type: Gauge
  - Description: Number of agents currently flagged hung

agentcoord_agents_total{status}:
  - Type: Gauge
  - Description: Total known agents by computed status
  - Labels: status ("active", "idle", "hung", "terminated")

Approval Metrics:

agentcoord_approval_wait_duration_seconds:
  - Type: Histogram
  - Description: Time a caller spent blocked in WaitForDecision
  - Buckets: 1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600

agentcoord_approvals_pending:
  - Type: Gauge
  - Description: Number of approval requests still pending

Auto-scaler Metrics:

agentcoord_autoscaler_spawns_total:
  - Type: Counter
  - Description: Total workers spawned by the auto-scaler

agentcoord_autoscaler_terminations_total:
  - Type: Counter
  - Description: Total workers terminated by the auto-scaler

agentcoord_autoscaler_desired_workers:
  - Type: Gauge
  - Description: Auto-scaler's most recently computed desired worker count

LLM Budget Metrics:

agentcoord_llm_slots_in_use:
  - Type: Gauge
  - Description: Current in-flight LLM calls against the concurrency cap

agentcoord_llm_budget_exceeded_total:
  - Type: Counter
  - Description: Total AcquireSlot calls refused by the daily budget cap

# Health Checks

Package metrics also exposes a component health registry (health.go),
used for the process's /health, /ready, and /live HTTP endpoints.
Components call RegisterComponent by name as they observe their own
failures and recoveries; the first transition to unhealthy and the
recovery back are each logged once rather than on every call. A fixed
subset of component names is marked critical at construction time
(currently just the KV backend); GetReadiness only inspects that
subset; GetHealth reflects every registered component.

# Usage

Code that observes a state change updates the metrics directly (no
package of this module does so itself):

	timer := metrics.NewTimer()
	// ... claim a task ...
	timer.ObserveDuration(metrics.TaskClaimLatency)
	metrics.TasksCompletedTotal.Inc()

The collector is started once at process startup, wired to whichever
components that process owns:

	c := metrics.NewCollector(q, reg, locks, approvals, 15*time.Second)
	c.Start(ctx)
	defer c.Stop()

The HTTP handler is mounted on the metrics server:

	http.Handle("/metrics", metrics.Handler())
*/
package metrics
