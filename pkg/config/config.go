// Package config loads coordination-core runtime configuration from
// environment variables (and, optionally, a YAML file), the way the
// teacher loads cluster bind/data-dir settings: a plain struct with
// defaults, overridden by explicit fields, overridden last by
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// KVMode selects which KV backend a session prefers at startup.
type KVMode string

const (
	// KVModeAuto tries the networked backend first and transparently
	// falls back to the file-backed local backend if it is unreachable.
	KVModeAuto KVMode = "auto"
	// KVModeNetworked forces the Raft-backed networked backend.
	KVModeNetworked KVMode = "networked"
	// KVModeLocal forces the file-backed fallback backend.
	KVModeLocal KVMode = "local"
)

// Config holds every tunable named by spec §6.5.
type Config struct {
	// KVAddr is the bind/connect address for the networked KV backend
	// (a Raft cluster in this implementation). Aliased from REDIS_URL
	// for operators following the spec literally.
	KVAddr string
	KVMode KVMode

	// FallbackDir is the root directory for the file-backed fallback
	// backend. Default: ~/.agentcoord/state.
	FallbackDir string

	HeartbeatInterval time.Duration
	HungThreshold     time.Duration
	LockTTL           time.Duration

	// RetrySweepInterval is how often the retry sweeper checks
	// tasks:retry for due entries to promote to tasks:pending.
	RetrySweepInterval time.Duration
	// ReclaimSweepInterval is how often the reclamation sweeper scans
	// for hung agents and returns their leased tasks to pending.
	ReclaimSweepInterval time.Duration
}

// Default returns the documented defaults (spec §4.B, §4.C, §6.5).
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		KVMode:               KVModeAuto,
		FallbackDir:          filepath.Join(home, ".agentcoord", "state"),
		HeartbeatInterval:    30 * time.Second,
		HungThreshold:        300 * time.Second,
		LockTTL:              600 * time.Second,
		RetrySweepInterval:   30 * time.Second,
		ReclaimSweepInterval: 60 * time.Second,
	}
}

// FromEnv builds a Config starting from Default, applying a YAML file
// if yamlPath is non-empty, then applying environment variable
// overrides last (highest precedence).
func FromEnv(yamlPath string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if v := firstNonEmpty(os.Getenv("AGENTCOORD_KV_ADDR"), os.Getenv("REDIS_URL")); v != "" {
		cfg.KVAddr = v
	}
	if v := os.Getenv("AGENTCOORD_KV_MODE"); v != "" {
		cfg.KVMode = KVMode(v)
	}
	if v := os.Getenv("AGENTCOORD_FALLBACK_DIR"); v != "" {
		cfg.FallbackDir = v
	}
	if v, err := envSeconds("AGENTCOORD_HEARTBEAT_SECONDS"); err != nil {
		return nil, err
	} else if v > 0 {
		cfg.HeartbeatInterval = v
	}
	if v, err := envSeconds("AGENTCOORD_HUNG_SECONDS"); err != nil {
		return nil, err
	} else if v > 0 {
		cfg.HungThreshold = v
	}
	if v, err := envSeconds("AGENTCOORD_LOCK_TTL_SECONDS"); err != nil {
		return nil, err
	} else if v > 0 {
		cfg.LockTTL = v
	}
	if v, err := envSeconds("AGENTCOORD_RETRY_SWEEP_SECONDS"); err != nil {
		return nil, err
	} else if v > 0 {
		cfg.RetrySweepInterval = v
	}
	if v, err := envSeconds("AGENTCOORD_RECLAIM_SWEEP_SECONDS"); err != nil {
		return nil, err
	} else if v > 0 {
		cfg.ReclaimSweepInterval = v
	}

	return cfg, nil
}

func envSeconds(name string) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", name, raw, err)
	}
	return time.Duration(n) * time.Second, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
