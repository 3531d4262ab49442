package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/agentcoord/core/internal/corelog"
	"github.com/rs/zerolog"
)

// Status is the coarse health state reported by a component, or by the
// process as a whole in a Report.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusReady     Status = "ready"
	StatusNotReady  Status = "not_ready"
)

// Report is the JSON body served by /health and /ready.
type Report struct {
	Status     Status            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

type componentState struct {
	healthy bool
	message string
	updated time.Time
}

// HealthChecker tracks per-component liveness for the daemon's
// /health, /ready, and /live endpoints. A subset of components is
// considered critical: all of them must be registered and healthy for
// GetReadiness to report ready, while GetHealth reflects every
// registered component regardless of criticality.
type HealthChecker struct {
	mu         sync.RWMutex
	components map[string]componentState
	critical   map[string]struct{}
	startTime  time.Time
	version    string
	logger     zerolog.Logger
}

func newHealthChecker(critical ...string) *HealthChecker {
	set := make(map[string]struct{}, len(critical))
	for _, name := range critical {
		set[name] = struct{}{}
	}
	return &HealthChecker{
		components: make(map[string]componentState),
		critical:   set,
		startTime:  time.Now(),
		logger:     corelog.WithComponent("health"),
	}
}

// healthChecker is the process-wide instance wired into the package
// functions below; the daemon's KV backend is the only endpoint
// dependency critical enough to gate readiness on.
var healthChecker = newHealthChecker("kv_backend")

// SetVersion sets the version string included in health and readiness
// reports.
func SetVersion(version string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.version = version
}

// RegisterComponent records a component's current health, logging a
// warning the first time it turns unhealthy and an info line when it
// recovers. Calling it again for the same name updates its state in
// place, so it also serves as the update path.
func RegisterComponent(name string, healthy bool, message string) {
	healthChecker.mu.Lock()
	prev, existed := healthChecker.components[name]
	healthChecker.components[name] = componentState{
		healthy: healthy,
		message: message,
		updated: time.Now(),
	}
	logger := healthChecker.logger
	healthChecker.mu.Unlock()

	switch {
	case !healthy && (!existed || prev.healthy):
		logger.Warn().Str("component", name).Str("reason", message).Msg("component turned unhealthy")
	case healthy && existed && !prev.healthy:
		logger.Info().Str("component", name).Msg("component recovered")
	}
}

// GetHealth returns the overall health report: unhealthy if any
// registered component is unhealthy, healthy otherwise.
func GetHealth() Report {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	status := StatusHealthy
	components := make(map[string]string, len(healthChecker.components))
	for name, comp := range healthChecker.components {
		if !comp.healthy {
			status = StatusUnhealthy
			components[name] = "unhealthy: " + comp.message
			continue
		}
		components[name] = "healthy"
	}

	return Report{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Version:    healthChecker.version,
		Uptime:     time.Since(healthChecker.startTime).String(),
	}
}

// GetReadiness returns whether every critical component is registered
// and healthy. Non-critical components are ignored.
func GetReadiness() Report {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	status := StatusReady
	message := ""
	components := make(map[string]string, len(healthChecker.critical))

	for name := range healthChecker.critical {
		comp, ok := healthChecker.components[name]
		switch {
		case !ok:
			status = StatusNotReady
			message = "waiting for " + name + " initialization"
			components[name] = "not registered"
		case !comp.healthy:
			status = StatusNotReady
			message = "waiting for " + name
			components[name] = "not ready: " + comp.message
		default:
			components[name] = "ready"
		}
	}

	return Report{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    healthChecker.version,
		Uptime:     time.Since(healthChecker.startTime).String(),
	}
}

func writeReport(w http.ResponseWriter, report Report, healthy bool) {
	w.Header().Set("Content-Type", "application/json")
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// HealthHandler serves /health: 200 while every registered component
// is healthy, 503 otherwise.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := GetHealth()
		writeReport(w, report, report.Status == StatusHealthy)
	}
}

// ReadyHandler serves /ready: 200 once every critical component is
// registered and healthy, 503 otherwise.
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := GetReadiness()
		writeReport(w, report, report.Status == StatusReady)
	}
}

// LivenessHandler serves /live: always 200 while the process is
// running, regardless of component health.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(healthChecker.startTime).String(),
		})
	}
}
