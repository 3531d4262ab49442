package coordination

import (
	"context"
	"sync"
	"time"

	"github.com/agentcoord/core/internal/corelog"
	"github.com/agentcoord/core/pkg/approval"
	"github.com/agentcoord/core/pkg/audit"
	"github.com/agentcoord/core/pkg/board"
	"github.com/agentcoord/core/pkg/filelock"
	"github.com/agentcoord/core/pkg/kv"
	"github.com/agentcoord/core/pkg/queue"
	"github.com/agentcoord/core/pkg/registry"
	"github.com/agentcoord/core/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config configures a session opened with Open.
type Config struct {
	Name         string
	Role         string
	Capabilities []string
	WorkingOn    string

	// HeartbeatInterval defaults to 30s (spec §4.B: "Agents are
	// expected to heartbeat on a fixed cadence (default 30 s)").
	HeartbeatInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	return c
}

// Session is a scoped identity over a shared backend: "within this
// scope, I am agent X doing Y" (spec §4.J). It bundles handles to the
// components listed below and owns this agent's registration and
// heartbeat loop for its lifetime.
type Session struct {
	AgentID string

	Queue     *queue.Queue
	Locks     *filelock.Manager
	Registry  *registry.Registry
	Approvals *approval.Manager
	Board     *board.Board
	Audit     *audit.Log

	logger zerolog.Logger

	stopHeartbeat chan struct{}
	heartbeatDone chan struct{}

	mu            sync.Mutex
	heldLocks     []heldLock
}

type heldLock struct {
	path    string
	release filelock.Release
}

// Open registers a new agent identity on backend, starts its
// heartbeat loop, and returns a Session giving access to the queue,
// locks, registry, approvals, board and audit log. Callers must call
// Close on every exit path.
func Open(ctx context.Context, backend kv.Backend, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()

	auditLog := audit.New(backend)
	reg := registry.New(backend, auditLog)

	agentID := uuid.New().String()
	if _, err := reg.Register(ctx, agentID, cfg.Name, cfg.Role, cfg.Capabilities); err != nil {
		return nil, err
	}

	s := &Session{
		AgentID:       agentID,
		Queue:         queue.New(backend, auditLog),
		Locks:         filelock.New(backend),
		Registry:      reg,
		Approvals:     approval.New(backend, auditLog),
		Board:         board.New(backend),
		Audit:         auditLog,
		logger:        corelog.WithComponent("coordination").With().Str("agent_id", agentID).Logger(),
		stopHeartbeat: make(chan struct{}),
		heartbeatDone: make(chan struct{}),
	}

	go s.heartbeatLoop(cfg.HeartbeatInterval, cfg.WorkingOn)

	s.logger.Info().Msg("session opened")
	return s, nil
}

// heartbeatLoop mirrors the teacher's worker heartbeat loop
// (pkg/worker/worker.go heartbeatLoop/sendHeartbeat): a ticker plus a
// stop channel, logging and continuing past a failed send rather than
// tearing the session down over one transient error.
func (s *Session) heartbeatLoop(interval time.Duration, workingOn string) {
	defer close(s.heartbeatDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopHeartbeat:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			wo := workingOn
			err := s.Registry.Heartbeat(ctx, s.AgentID, &wo)
			cancel()
			if err != nil {
				s.logger.Warn().Err(err).Msg("heartbeat failed")
			}
		}
	}
}

// LockFile acquires a file lock as this session's agent and remembers
// it so Close releases it automatically if the caller never does.
func (s *Session) LockFile(ctx context.Context, path, intent string, ttlSeconds int) (*types.FileLock, filelock.Release, error) {
	lock, release, err := s.Locks.LockFile(ctx, path, s.AgentID, intent, ttlSeconds)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	s.heldLocks = append(s.heldLocks, heldLock{path: lock.Path, release: release})
	s.mu.Unlock()

	return lock, release, nil
}

// Close stops the heartbeat loop, releases every lock this session
// acquired through LockFile, and deregisters the agent. Safe to call
// more than once; every step is best-effort so one failure doesn't
// block the rest (spec §4.J: "leaving the scope (all exit paths
// including failures) stops the heartbeat, releases any locks this
// session acquired, and deregisters the agent").
func (s *Session) Close(ctx context.Context) error {
	select {
	case <-s.stopHeartbeat:
		// already closed
		return nil
	default:
		close(s.stopHeartbeat)
	}
	<-s.heartbeatDone

	s.mu.Lock()
	locks := s.heldLocks
	s.heldLocks = nil
	s.mu.Unlock()

	var firstErr error
	for _, hl := range locks {
		if err := hl.release(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.Registry.Deregister(ctx, s.AgentID); err != nil && firstErr == nil {
		firstErr = err
	}

	s.logger.Info().Msg("session closed")
	return firstErr
}
