package spawner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentcoord/core/internal/corelog"
	"github.com/agentcoord/core/pkg/queue"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Reclaimer is the narrow slice of pkg/queue a Spawner needs: on
// worker termination, any tasks still leased by that worker must be
// returned to pending (spec §4.H: "through the reclamation path
// described in §4.E"). Accepted as an interface so tests can fake it.
type Reclaimer interface {
	ReclaimAgentTasks(ctx context.Context, agentID string) error
}

var _ Reclaimer = (*queue.Queue)(nil)

// Spawner starts, tracks, and terminates worker processes across the
// three modes spec §4.H defines.
type Spawner struct {
	reclaimer        Reclaimer
	containerdSocket string
	logger           zerolog.Logger

	mu      sync.Mutex
	workers map[string]*WorkerHandle
}

// New creates a Spawner. containerdSocket may be empty to use the
// default containerd socket path for container-mode spawns.
func New(reclaimer Reclaimer, containerdSocket string) *Spawner {
	return &Spawner{
		reclaimer:        reclaimer,
		containerdSocket: containerdSocket,
		logger:           corelog.WithComponent("spawner"),
		workers:          make(map[string]*WorkerHandle),
	}
}

// SpawnWorker starts a new worker process in the requested mode and
// tracks its handle (spec §4.H spawn_worker). agentID should match
// the identity the worker will register with the Agent Registry,
// since that's what TerminateWorker uses to reclaim leased tasks.
func (s *Spawner) SpawnWorker(ctx context.Context, agentID string, req SpawnRequest) (*WorkerHandle, error) {
	handle := &WorkerHandle{
		ID:        agentID,
		Name:      req.Name,
		Tags:      append([]string(nil), req.Tags...),
		Mode:      req.Mode,
		StartedAt: time.Now().UTC(),
		MaxTasks:  req.MaxTasks,
	}

	switch req.Mode {
	case ModeLocal:
		proc, pid, err := spawnLocal(req)
		if err != nil {
			return nil, err
		}
		handle.impl = proc
		handle.PID = pid
	case ModeContainer:
		proc, containerID, err := spawnContainer(ctx, s.containerdSocket, req)
		if err != nil {
			return nil, err
		}
		handle.impl = proc
		handle.ContainerID = containerID
	case ModeCloud:
		proc, instanceID, err := spawnCloud(ctx, req)
		if err != nil {
			return nil, err
		}
		handle.impl = proc
		handle.ContainerID = instanceID
	default:
		return nil, fmt.Errorf("spawner: unknown mode %q", req.Mode)
	}

	s.mu.Lock()
	s.workers[handle.ID] = handle
	s.mu.Unlock()

	s.logger.Info().Str("agent_id", handle.ID).Str("mode", string(handle.Mode)).Msg("worker spawned")
	return handle, nil
}

// ListWorkers returns every tracked handle, alive or not.
func (s *Spawner) ListWorkers() []*WorkerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*WorkerHandle, 0, len(s.workers))
	for _, h := range s.workers {
		out = append(out, h)
	}
	return out
}

// GCDeadWorkers drops tracked handles whose underlying process has
// exited on its own (spec §4.H gc_dead_workers), returning their ids.
func (s *Spawner) GCDeadWorkers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for id, h := range s.workers {
		if !h.IsAlive() {
			delete(s.workers, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// TerminateWorker stops the worker's process gracefully, untracks its
// handle, and returns any tasks it still held a lease on to pending.
func (s *Spawner) TerminateWorker(ctx context.Context, agentID string, graceSeconds int) error {
	s.mu.Lock()
	handle, ok := s.workers[agentID]
	if ok {
		delete(s.workers, agentID)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("spawner: no tracked worker %q", agentID)
	}

	termErr := handle.Terminate(graceSeconds)

	if s.reclaimer != nil {
		if err := s.reclaimer.ReclaimAgentTasks(ctx, agentID); err != nil {
			s.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to reclaim tasks after worker termination")
			if termErr == nil {
				termErr = err
			}
		}
	}

	s.logger.Info().Str("agent_id", agentID).Msg("worker terminated")
	return termErr
}

func newSuffix() string {
	return uuid.New().String()[:8]
}
