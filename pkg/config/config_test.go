package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"AGENTCOORD_KV_ADDR", "REDIS_URL", "AGENTCOORD_KV_MODE",
		"AGENTCOORD_FALLBACK_DIR", "AGENTCOORD_HEARTBEAT_SECONDS",
		"AGENTCOORD_HUNG_SECONDS", "AGENTCOORD_LOCK_TTL_SECONDS",
		"AGENTCOORD_RETRY_SWEEP_SECONDS", "AGENTCOORD_RECLAIM_SWEEP_SECONDS",
	} {
		old, had := os.LookupEnv(name)
		os.Unsetenv(name)
		t.Cleanup(func() {
			if had {
				os.Setenv(name, old)
			}
		})
	}
}

func TestDefault_MatchesDocumentedValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, KVModeAuto, cfg.KVMode)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 300*time.Second, cfg.HungThreshold)
	assert.Equal(t, 600*time.Second, cfg.LockTTL)
	assert.Equal(t, 30*time.Second, cfg.RetrySweepInterval)
	assert.Equal(t, 60*time.Second, cfg.ReclaimSweepInterval)
}

func TestFromEnv_NoOverridesReturnsDefault(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv("")
	require.NoError(t, err)
	assert.Equal(t, Default().HeartbeatInterval, cfg.HeartbeatInterval)
}

func TestFromEnv_EnvOverridesTakePrecedenceOverYAML(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("kvaddr: \"yaml-addr:1234\"\n"), 0o644))

	t.Setenv("AGENTCOORD_KV_ADDR", "env-addr:5678")

	cfg, err := FromEnv(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "env-addr:5678", cfg.KVAddr)
}

func TestFromEnv_RedisURLIsAliasForKVAddr(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg, err := FromEnv("")
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379", cfg.KVAddr)
}

func TestFromEnv_KVAddrTakesPrecedenceOverRedisURLAlias(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://from-alias:6379")
	t.Setenv("AGENTCOORD_KV_ADDR", "explicit:9999")

	cfg, err := FromEnv("")
	require.NoError(t, err)
	assert.Equal(t, "explicit:9999", cfg.KVAddr)
}

func TestFromEnv_InvalidSecondsValueErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENTCOORD_HEARTBEAT_SECONDS", "not-a-number")

	_, err := FromEnv("")
	assert.Error(t, err)
}

func TestFromEnv_SecondsOverridesParseIntoDurations(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENTCOORD_HUNG_SECONDS", "45")

	cfg, err := FromEnv("")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.HungThreshold)
}

func TestFromEnv_SweepIntervalOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENTCOORD_RETRY_SWEEP_SECONDS", "15")
	t.Setenv("AGENTCOORD_RECLAIM_SWEEP_SECONDS", "90")

	cfg, err := FromEnv("")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.RetrySweepInterval)
	assert.Equal(t, 90*time.Second, cfg.ReclaimSweepInterval)
}
