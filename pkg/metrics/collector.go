package metrics

import (
	"context"
	"time"

	"github.com/agentcoord/core/pkg/types"
)

// QueueSource is the narrow slice of pkg/queue the collector polls.
type QueueSource interface {
	QueueDepth(ctx context.Context) (ready, leased int, err error)
}

// RegistrySource is the narrow slice of pkg/registry the collector polls.
type RegistrySource interface {
	List(ctx context.Context) ([]*types.Agent, error)
}

// LockSource is the narrow slice of pkg/filelock the collector polls.
// pkg/filelock.Manager satisfies this as-is; the collector counts the
// list itself rather than asking filelock for a cardinality method of
// its own.
type LockSource interface {
	ListLocks(ctx context.Context) ([]*types.FileLock, error)
}

// ApprovalSource is the narrow slice of pkg/approval the collector
// polls. pkg/approval.Manager satisfies this as-is.
type ApprovalSource interface {
	ListPending(ctx context.Context) ([]*types.ApprovalRequest, error)
}

// Collector periodically samples gauge-shaped state from the core's
// components into the package-level Prometheus metrics. Grounded on
// the teacher's Collector (ticker + stop channel, collect immediately
// on Start then every tick), repointed from cluster/Raft polling to
// queue/registry/lock/approval polling.
type Collector struct {
	queue     QueueSource
	registry  RegistrySource
	locks     LockSource
	approvals ApprovalSource
	interval  time.Duration
	stopCh    chan struct{}
}

// NewCollector creates a Collector over the given sources. Any source
// may be nil to skip that metric family.
func NewCollector(queue QueueSource, registry RegistrySource, locks LockSource, approvals ApprovalSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		queue:     queue,
		registry:  registry,
		locks:     locks,
		approvals: approvals,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start begins collecting metrics in the background.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect(ctx)

		for {
			select {
			case <-ticker.C:
				c.collect(ctx)
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect(ctx context.Context) {
	c.collectQueueMetrics(ctx)
	c.collectAgentMetrics(ctx)
	c.collectLockMetrics(ctx)
	c.collectApprovalMetrics(ctx)
}

func (c *Collector) collectQueueMetrics(ctx context.Context) {
	if c.queue == nil {
		return
	}
	ready, leased, err := c.queue.QueueDepth(ctx)
	if err != nil {
		return
	}
	QueueDepth.WithLabelValues("ready").Set(float64(ready))
	QueueDepth.WithLabelValues("leased").Set(float64(leased))
}

func (c *Collector) collectAgentMetrics(ctx context.Context) {
	if c.registry == nil {
		return
	}
	agents, err := c.registry.List(ctx)
	if err != nil {
		return
	}

	counts := make(map[string]int)
	for _, a := range agents {
		counts[string(a.Status)]++
	}
	for status, count := range counts {
		AgentsTotal.WithLabelValues(status).Set(float64(count))
	}
	HungAgents.Set(float64(counts["hung"]))
}

func (c *Collector) collectLockMetrics(ctx context.Context) {
	if c.locks == nil {
		return
	}
	locks, err := c.locks.ListLocks(ctx)
	if err != nil {
		return
	}
	LocksHeld.Set(float64(len(locks)))
}

func (c *Collector) collectApprovalMetrics(ctx context.Context) {
	if c.approvals == nil {
		return
	}
	pending, err := c.approvals.ListPending(ctx)
	if err != nil {
		return
	}
	ApprovalsPending.Set(float64(len(pending)))
}
