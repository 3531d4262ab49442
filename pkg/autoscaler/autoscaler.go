package autoscaler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/agentcoord/core/internal/corelog"
	"github.com/agentcoord/core/pkg/spawner"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// QueueDepther is the narrow slice of pkg/queue the scaler needs to
// size the pool and to avoid terminating a leased worker.
type QueueDepther interface {
	QueueDepth(ctx context.Context) (ready, leased int, err error)
	HasLease(ctx context.Context, agentID string) (bool, error)
}

// WorkerManager is the narrow slice of pkg/spawner the scaler drives.
type WorkerManager interface {
	SpawnWorker(ctx context.Context, agentID string, req spawner.SpawnRequest) (*spawner.WorkerHandle, error)
	TerminateWorker(ctx context.Context, agentID string, graceSeconds int) error
}

// Config is the auto-scaler's policy (spec §4.I).
type Config struct {
	MinWorkers     int
	MaxWorkers     int
	TasksPerWorker int
	Interval       time.Duration // default 30s
	IdleGrace      time.Duration // default 120s
	TermGrace      int           // seconds passed to TerminateWorker

	// Template used to spawn each new worker; Name is suffixed with a
	// unique id per spawn.
	Template spawner.SpawnRequest
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.IdleGrace <= 0 {
		c.IdleGrace = 120 * time.Second
	}
	if c.TermGrace <= 0 {
		c.TermGrace = 30
	}
	return c
}

// Scaler observes queue depth and (un)spawns workers to match policy
// (spec §4.I). It only ever touches workers it spawned itself.
type Scaler struct {
	queue   QueueDepther
	workers WorkerManager
	cfg     Config
	logger  zerolog.Logger

	mu        sync.Mutex
	idleSince map[string]time.Time // agentID -> when it was first observed without a lease
}

// New creates a Scaler. cfg is normalized with withDefaults.
func New(q QueueDepther, w WorkerManager, cfg Config) *Scaler {
	return &Scaler{
		queue:     q,
		workers:   w,
		cfg:       cfg.withDefaults(),
		logger:    corelog.WithComponent("autoscaler"),
		idleSince: make(map[string]time.Time),
	}
}

// Run ticks every cfg.Interval until ctx is canceled, exactly the
// ticker+select shape the teacher's reconciler uses
// (pkg/reconciler/reconciler.go run).
func (s *Scaler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.cycle(ctx); err != nil {
				s.logger.Error().Err(err).Msg("autoscale cycle failed")
			}
		}
	}
}

// cycle runs one sizing decision (spec §4.I steps 1-4).
func (s *Scaler) cycle(ctx context.Context) error {
	ready, leased, err := s.queue.QueueDepth(ctx)
	if err != nil {
		return fmt.Errorf("autoscaler: queue depth: %w", err)
	}
	p := ready + leased

	s.mu.Lock()
	owned := make([]string, 0, len(s.idleSince))
	for id := range s.idleSince {
		owned = append(owned, id)
	}
	s.mu.Unlock()

	w := len(owned)
	d := clamp(ceilDiv(p, s.cfg.TasksPerWorker), s.cfg.MinWorkers, s.cfg.MaxWorkers)

	s.logger.Debug().Int("ready", ready).Int("leased", leased).Int("desired", d).Int("current", w).Msg("autoscale cycle")

	if d > w {
		for i := 0; i < d-w; i++ {
			if err := s.spawnOne(ctx); err != nil {
				return fmt.Errorf("autoscaler: spawn: %w", err)
			}
		}
		return nil
	}

	if d < w && p == 0 {
		return s.terminateOneIdle(ctx, owned)
	}

	return s.refreshIdle(ctx, owned)
}

func (s *Scaler) spawnOne(ctx context.Context) error {
	agentID := uuid.New().String()
	req := s.cfg.Template
	req.Name = fmt.Sprintf("%s-%s", s.cfg.Template.Name, agentID[:8])

	if _, err := s.workers.SpawnWorker(ctx, agentID, req); err != nil {
		return err
	}

	s.mu.Lock()
	s.idleSince[agentID] = time.Time{}
	s.mu.Unlock()

	s.logger.Info().Str("agent_id", agentID).Msg("autoscaler spawned worker")
	return nil
}

// refreshIdle updates each owned worker's idle-since bookkeeping
// without terminating anything, so idle duration is tracked even on
// cycles that don't scale down.
func (s *Scaler) refreshIdle(ctx context.Context, owned []string) error {
	now := time.Now().UTC()
	for _, agentID := range owned {
		leased, err := s.queue.HasLease(ctx, agentID)
		if err != nil {
			return err
		}
		s.mu.Lock()
		if leased {
			s.idleSince[agentID] = time.Time{}
		} else if s.idleSince[agentID].IsZero() {
			s.idleSince[agentID] = now
		}
		s.mu.Unlock()
	}
	return nil
}

func (s *Scaler) terminateOneIdle(ctx context.Context, owned []string) error {
	if err := s.refreshIdle(ctx, owned); err != nil {
		return err
	}

	now := time.Now().UTC()
	var oldestID string
	var oldestSince time.Time

	s.mu.Lock()
	for _, agentID := range owned {
		since := s.idleSince[agentID]
		if since.IsZero() {
			continue // currently leased
		}
		if oldestSince.IsZero() || since.Before(oldestSince) {
			oldestID, oldestSince = agentID, since
		}
	}
	s.mu.Unlock()

	if oldestID == "" || now.Sub(oldestSince) < s.cfg.IdleGrace {
		return nil
	}

	if err := s.workers.TerminateWorker(ctx, oldestID, s.cfg.TermGrace); err != nil {
		return fmt.Errorf("autoscaler: terminate %s: %w", oldestID, err)
	}

	s.mu.Lock()
	delete(s.idleSince, oldestID)
	s.mu.Unlock()

	s.logger.Info().Str("agent_id", oldestID).Msg("autoscaler terminated idle worker")
	return nil
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return int(math.Ceil(float64(a) / float64(b)))
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
