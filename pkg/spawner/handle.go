package spawner

import (
	"sync"
	"time"
)

// Mode selects how a worker process is launched (spec §4.H).
type Mode string

const (
	ModeLocal     Mode = "local"
	ModeContainer Mode = "container"
	ModeCloud     Mode = "cloud"
)

// SpawnRequest describes a worker to start.
type SpawnRequest struct {
	Name     string
	Tags     []string
	Mode     Mode
	MaxTasks int
	Env      map[string]string

	// Command is the executable (and args[0]) the worker runs;
	// required when Mode == ModeLocal or ModeCloud, and used as the
	// process command in ModeContainer.
	Command string
	Args    []string

	// Image is the container-mode image reference; required when
	// Mode == ModeContainer.
	Image string

	// InstanceType is an opaque cloud-mode sizing hint. It is
	// optional, and no spawn mode reads it.
	InstanceType string
}

// terminator is the mode-specific half of a WorkerHandle: how to poll
// liveness and how to stop the underlying process.
type terminator interface {
	alive() bool
	stop(graceSeconds int) error
}

// WorkerHandle is a live or recently-live worker tracked by a Spawner
// (spec §3 EXPANDED WorkerHandle record).
type WorkerHandle struct {
	ID           string
	Name         string
	Tags         []string
	Mode         Mode
	PID          int
	ContainerID  string
	StartedAt    time.Time
	MaxTasks     int
	TasksClaimed int

	mu    sync.Mutex
	impl  terminator
	dead  bool
	cancel func()
}

// IsAlive reports whether the underlying process/container is still
// running. A handle observed dead is cached as dead; it never comes
// back to life under the same handle.
func (h *WorkerHandle) IsAlive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dead {
		return false
	}
	if !h.impl.alive() {
		h.dead = true
		return false
	}
	return true
}

// Terminate stops the worker gracefully: a polite stop signal first,
// then force after graceSeconds (spec §4.H: "Termination MUST be
// graceful-first").
func (h *WorkerHandle) Terminate(graceSeconds int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dead {
		return nil
	}
	err := h.impl.stop(graceSeconds)
	h.dead = true
	if h.cancel != nil {
		h.cancel()
	}
	return err
}
