package spawner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReclaimer struct {
	mu       sync.Mutex
	reclaims []string
}

func (f *fakeReclaimer) ReclaimAgentTasks(ctx context.Context, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reclaims = append(f.reclaims, agentID)
	return nil
}

func TestSpawnWorker_LocalModeTracksHandle(t *testing.T) {
	s := New(&fakeReclaimer{}, "")

	handle, err := s.SpawnWorker(context.Background(), "agent-1", SpawnRequest{
		Name:    "worker",
		Mode:    ModeLocal,
		Command: "sleep",
		Args:    []string{"5"},
	})
	require.NoError(t, err)
	require.NotZero(t, handle.PID)
	assert.True(t, handle.IsAlive())

	workers := s.ListWorkers()
	require.Len(t, workers, 1)
	assert.Equal(t, "agent-1", workers[0].ID)

	require.NoError(t, s.TerminateWorker(context.Background(), "agent-1", 1))
	assert.Empty(t, s.ListWorkers())
}

func TestTerminateWorker_ReclaimsLeasedTasks(t *testing.T) {
	reclaimer := &fakeReclaimer{}
	s := New(reclaimer, "")

	_, err := s.SpawnWorker(context.Background(), "agent-1", SpawnRequest{
		Name:    "worker",
		Mode:    ModeLocal,
		Command: "sleep",
		Args:    []string{"5"},
	})
	require.NoError(t, err)

	require.NoError(t, s.TerminateWorker(context.Background(), "agent-1", 1))

	reclaimer.mu.Lock()
	defer reclaimer.mu.Unlock()
	assert.Equal(t, []string{"agent-1"}, reclaimer.reclaims)
}

func TestTerminateWorker_UnknownWorkerErrors(t *testing.T) {
	s := New(&fakeReclaimer{}, "")

	err := s.TerminateWorker(context.Background(), "ghost", 1)
	assert.Error(t, err)
}

func TestGCDeadWorkers_DropsExitedProcesses(t *testing.T) {
	s := New(&fakeReclaimer{}, "")

	_, err := s.SpawnWorker(context.Background(), "agent-1", SpawnRequest{
		Name:    "worker",
		Mode:    ModeLocal,
		Command: "true",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(s.GCDeadWorkers()) == 1
	}, time.Second, 5*time.Millisecond, "a worker running `true` must be reaped once it exits")

	assert.Empty(t, s.ListWorkers())
}
