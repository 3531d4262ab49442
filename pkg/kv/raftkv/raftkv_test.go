package raftkv

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// freePort grabs an ephemeral TCP port the way the teacher's test
// harness picks cluster bind addresses, by binding to :0 and reading
// back the OS-assigned port.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func newTestNode(t *testing.T) *RaftKV {
	t.Helper()
	port := freePort(t)
	rk, err := Open(Config{
		NodeID:   "node-1",
		BindAddr: fmt.Sprintf("127.0.0.1:%d", port),
		DataDir:  filepath.Join(t.TempDir(), "raft"),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rk.WaitForLeader(ctx))

	t.Cleanup(func() { _ = rk.Close() })
	return rk
}

func TestSingleNodeCluster_AppliesWritesThroughRaft(t *testing.T) {
	ctx := context.Background()
	rk := newTestNode(t)

	require.NoError(t, rk.Set(ctx, "key-1", []byte("value-1")))

	v, ok, err := rk.Get(ctx, "key-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value-1", string(v))
}

func TestSingleNodeCluster_CASSetIsLinearizable(t *testing.T) {
	ctx := context.Background()
	rk := newTestNode(t)

	ok, err := rk.CASSet(ctx, "key-1", nil, []byte("v1"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = rk.CASSet(ctx, "key-1", []byte("wrong"), []byte("v2"))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = rk.CASSet(ctx, "key-1", []byte("v1"), []byte("v2"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSingleNodeCluster_ZSetSurvivesFSMApply(t *testing.T) {
	ctx := context.Background()
	rk := newTestNode(t)

	require.NoError(t, rk.ZAdd(ctx, "z1", 2, "b"))
	require.NoError(t, rk.ZAdd(ctx, "z1", 1, "a"))

	members, err := rk.ZRangeByScore(ctx, "z1", -1e18, 1e18, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, members)
}
