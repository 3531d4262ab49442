package autoscaler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agentcoord/core/pkg/spawner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	ready, leased int
	leasedAgents  map[string]bool
}

func (f *fakeQueue) QueueDepth(ctx context.Context) (int, int, error) {
	return f.ready, f.leased, nil
}

func (f *fakeQueue) HasLease(ctx context.Context, agentID string) (bool, error) {
	return f.leasedAgents[agentID], nil
}

type fakeWorkers struct {
	mu        sync.Mutex
	spawned   []string
	terminated []string
}

func (f *fakeWorkers) SpawnWorker(ctx context.Context, agentID string, req spawner.SpawnRequest) (*spawner.WorkerHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawned = append(f.spawned, agentID)
	return &spawner.WorkerHandle{ID: agentID}, nil
}

func (f *fakeWorkers) TerminateWorker(ctx context.Context, agentID string, graceSeconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, agentID)
	return nil
}

func TestCycle_ScalesUpToMeetDemand(t *testing.T) {
	q := &fakeQueue{ready: 12, leased: 3, leasedAgents: map[string]bool{}}
	w := &fakeWorkers{}
	s := New(q, w, Config{MinWorkers: 0, MaxWorkers: 10, TasksPerWorker: 5})

	require.NoError(t, s.cycle(context.Background()))

	// P = 15, D = ceil(15/5) = 3.
	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Len(t, w.spawned, 3)
}

func TestCycle_ClampsToMaxWorkers(t *testing.T) {
	q := &fakeQueue{ready: 1000, leased: 0, leasedAgents: map[string]bool{}}
	w := &fakeWorkers{}
	s := New(q, w, Config{MinWorkers: 0, MaxWorkers: 4, TasksPerWorker: 1})

	require.NoError(t, s.cycle(context.Background()))

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Len(t, w.spawned, 4)
}

func TestCycle_NeverTerminatesLeasedWorker(t *testing.T) {
	q := &fakeQueue{ready: 1, leased: 0, leasedAgents: map[string]bool{}}
	w := &fakeWorkers{}
	s := New(q, w, Config{MinWorkers: 0, MaxWorkers: 4, TasksPerWorker: 1, IdleGrace: time.Millisecond})

	require.NoError(t, s.cycle(context.Background()))
	w.mu.Lock()
	spawnedID := w.spawned[0]
	w.mu.Unlock()

	// The worker is leased the whole time; it must never show up as
	// terminated even once its idle bookkeeping would otherwise expire.
	q.leasedAgents[spawnedID] = true
	q.ready = 0
	require.NoError(t, s.cycle(context.Background()))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.cycle(context.Background()))

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Empty(t, w.terminated)
}

func TestCycle_TerminatesIdleWorkerPastGrace(t *testing.T) {
	q := &fakeQueue{ready: 1, leased: 0, leasedAgents: map[string]bool{}}
	w := &fakeWorkers{}
	s := New(q, w, Config{MinWorkers: 0, MaxWorkers: 4, TasksPerWorker: 1, IdleGrace: time.Millisecond})

	require.NoError(t, s.cycle(context.Background()))
	w.mu.Lock()
	require.Len(t, w.spawned, 1)
	w.mu.Unlock()

	// Demand drops to zero; the first cycle that observes the worker
	// unleased only starts its idle clock (refreshIdle), it does not
	// terminate on the spot. A later cycle, once IdleGrace has
	// elapsed since that first observation, terminates it.
	q.ready = 0
	require.NoError(t, s.cycle(context.Background()))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.cycle(context.Background()))

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Len(t, w.terminated, 1)
}
