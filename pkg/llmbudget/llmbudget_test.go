package llmbudget

import (
	"context"
	"testing"
	"time"

	"github.com/agentcoord/core/pkg/coreerr"
	"github.com/agentcoord/core/pkg/kv/localkv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSemaphore(t *testing.T, cfg Config) *Semaphore {
	t.Helper()
	store, err := localkv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, cfg)
}

func TestAcquireSlot_GrantsUpToCapacity(t *testing.T) {
	ctx := context.Background()
	s := newTestSemaphore(t, Config{Capacity: 2, PollInterval: time.Millisecond})

	release1, err := s.AcquireSlot(ctx, time.Second)
	require.NoError(t, err)
	release2, err := s.AcquireSlot(ctx, time.Second)
	require.NoError(t, err)

	_, err = s.AcquireSlot(ctx, 10*time.Millisecond)
	assert.Equal(t, coreerr.Timeout, coreerr.KindOf(err))

	require.NoError(t, release1(ctx))
	require.NoError(t, release2(ctx))
}

func TestAcquireSlot_ReleaseFreesASlotForAnotherWaiter(t *testing.T) {
	ctx := context.Background()
	s := newTestSemaphore(t, Config{Capacity: 1, PollInterval: time.Millisecond})

	release, err := s.AcquireSlot(ctx, time.Second)
	require.NoError(t, err)

	require.NoError(t, release(ctx))

	release2, err := s.AcquireSlot(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, release2(ctx))
}

func TestAcquireSlot_FailsFastOnExhaustedDailyBudget(t *testing.T) {
	ctx := context.Background()
	s := newTestSemaphore(t, Config{Capacity: 10, DailyBudgetDollars: 1.0, PollInterval: time.Millisecond})

	require.NoError(t, s.RecordUsage(ctx, "agent-1", "gpt", 100, 1.5))

	_, err := s.AcquireSlot(ctx, time.Second)
	assert.Equal(t, coreerr.BudgetExceeded, coreerr.KindOf(err))
}

func TestRecordUsage_AccumulatesPerAgentTotals(t *testing.T) {
	ctx := context.Background()
	s := newTestSemaphore(t, Config{Capacity: 10})

	require.NoError(t, s.RecordUsage(ctx, "agent-1", "gpt", 100, 0.25))
	require.NoError(t, s.RecordUsage(ctx, "agent-1", "gpt", 50, 0.10))

	totals, err := s.GetAgentTotals(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), totals.Tokens)
	assert.InDelta(t, 0.35, totals.Dollars, 1e-9)
}

func TestGetAgentTotals_UnknownAgentIsZeroValue(t *testing.T) {
	ctx := context.Background()
	s := newTestSemaphore(t, Config{Capacity: 10})

	totals, err := s.GetAgentTotals(ctx, "ghost")
	require.NoError(t, err)
	assert.Zero(t, totals.Tokens)
	assert.Zero(t, totals.Dollars)
}
