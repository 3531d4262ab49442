package board

import (
	"context"
	"testing"

	"github.com/agentcoord/core/pkg/kv/localkv"
	"github.com/agentcoord/core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBoard(t *testing.T) *Board {
	t.Helper()
	store, err := localkv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

func TestCreateThread_StartsWithNoPosts(t *testing.T) {
	ctx := context.Background()
	b := newTestBoard(t)

	thread, err := b.CreateThread(ctx, "general", "kickoff", "agent-1")
	require.NoError(t, err)
	assert.Empty(t, thread.Posts)
	assert.False(t, thread.Pinned)
}

func TestPost_AppendsToThread(t *testing.T) {
	ctx := context.Background()
	b := newTestBoard(t)

	thread, err := b.CreateThread(ctx, "general", "kickoff", "agent-1")
	require.NoError(t, err)

	updated, err := b.Post(ctx, thread.ID, "agent-2", "starting now", types.PriorityNormal)
	require.NoError(t, err)
	require.Len(t, updated.Posts, 1)
	assert.Equal(t, "starting now", updated.Posts[0].Body)

	again, err := b.Post(ctx, thread.ID, "agent-3", "ack", types.PriorityLow)
	require.NoError(t, err)
	assert.Len(t, again.Posts, 2)
}

func TestPost_UnknownThreadErrors(t *testing.T) {
	ctx := context.Background()
	b := newTestBoard(t)

	_, err := b.Post(ctx, "does-not-exist", "agent-1", "hi", types.PriorityNormal)
	assert.ErrorIs(t, err, ErrUnknownThread)
}

func TestPin_TogglesFlag(t *testing.T) {
	ctx := context.Background()
	b := newTestBoard(t)

	thread, err := b.CreateThread(ctx, "general", "kickoff", "agent-1")
	require.NoError(t, err)

	require.NoError(t, b.Pin(ctx, thread.ID, true))

	fetched, err := b.GetThread(ctx, thread.ID)
	require.NoError(t, err)
	assert.True(t, fetched.Pinned)
}

func TestListThreads_FiltersByChannel(t *testing.T) {
	ctx := context.Background()
	b := newTestBoard(t)

	_, err := b.CreateThread(ctx, "general", "a", "agent-1")
	require.NoError(t, err)
	_, err = b.CreateThread(ctx, "ops", "b", "agent-1")
	require.NoError(t, err)
	_, err = b.CreateThread(ctx, "general", "c", "agent-1")
	require.NoError(t, err)

	general, err := b.ListThreads(ctx, "general")
	require.NoError(t, err)
	assert.Len(t, general, 2)

	all, err := b.ListThreads(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

type recordingChannel struct {
	name     string
	fail     bool
	received []types.Message
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Deliver(ctx context.Context, msg types.Message) error {
	if c.fail {
		return assertFailure
	}
	c.received = append(c.received, msg)
	return nil
}

var assertFailure = &deliveryError{"delivery failed"}

type deliveryError struct{ msg string }

func (e *deliveryError) Error() string { return e.msg }

func TestChannelManager_BroadcastIsolatesAdapterFailures(t *testing.T) {
	good := &recordingChannel{name: "terminal"}
	bad := &recordingChannel{name: "slack", fail: true}

	manager := NewChannelManager(good, bad)
	results := manager.Broadcast(context.Background(), types.Message{ID: "1", Content: "hello"})

	require.Len(t, results, 2)
	require.Len(t, good.received, 1)
	assert.Equal(t, "hello", good.received[0].Content)

	var badResult, goodResult *DeliveryResult
	for i := range results {
		switch results[i].Adapter {
		case "slack":
			badResult = &results[i]
		case "terminal":
			goodResult = &results[i]
		}
	}
	require.NotNil(t, badResult)
	require.NotNil(t, goodResult)
	assert.Error(t, badResult.Err)
	assert.NoError(t, goodResult.Err)
}
