package localkv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGetSet_RoundTrips(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "key-1", []byte("value-1")))
	v, ok, err := s.Get(ctx, "key-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "value-1", string(v))
}

func TestDel_RemovesKeyAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, "key-1", []byte("value-1")))
	require.NoError(t, s.Del(ctx, "key-1"))

	_, ok, err := s.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.Del(ctx, "key-1"))
}

func TestCASSet_OnlyAppliesWhenExpectedMatches(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ok, err := s.CASSet(ctx, "key-1", nil, []byte("v1"))
	require.NoError(t, err)
	assert.True(t, ok, "nil expected matches a missing key")

	ok, err = s.CASSet(ctx, "key-1", nil, []byte("v2"))
	require.NoError(t, err)
	assert.False(t, ok, "nil expected must not match an existing key")

	ok, err = s.CASSet(ctx, "key-1", []byte("wrong"), []byte("v2"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CASSet(ctx, "key-1", []byte("v1"), []byte("v2"))
	require.NoError(t, err)
	assert.True(t, ok)

	v, _, err := s.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(v))
}

func TestIncrDecrIncrBy_Accumulate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n, err := s.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.IncrBy(ctx, "counter", 5)
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)

	n, err = s.Decr(ctx, "counter")
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
}

func TestHashOperations(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.HSet(ctx, "h1", "a", []byte("1")))
	require.NoError(t, s.HSet(ctx, "h1", "b", []byte("2")))

	v, ok, err := s.HGet(ctx, "h1", "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", string(v))

	all, err := s.HGetAll(ctx, "h1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	n, err := s.HIncrBy(ctx, "h1", "counter", 3)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	n, err = s.HIncrBy(ctx, "h1", "counter", 4)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)

	require.NoError(t, s.HDel(ctx, "h1", "a"))
	_, ok, err = s.HGet(ctx, "h1", "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetOperations(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SAdd(ctx, "s1", "x"))
	require.NoError(t, s.SAdd(ctx, "s1", "y"))
	require.NoError(t, s.SAdd(ctx, "s1", "x"))

	members, err := s.SMembers(ctx, "s1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "y"}, members)

	require.NoError(t, s.SRem(ctx, "s1", "x"))
	members, err = s.SMembers(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, members)
}

func TestZSetOperations_OrderByScoreThenInsertion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.ZAdd(ctx, "z1", 5, "b"))
	require.NoError(t, s.ZAdd(ctx, "z1", 1, "a"))
	require.NoError(t, s.ZAdd(ctx, "z1", 5, "c"))

	all, err := s.ZRangeByScore(ctx, "z1", negInfForTest, posInfForTest, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, all)

	member, score, ok, err := s.ZPopMin(ctx, "z1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", member)
	assert.Equal(t, float64(1), score)

	require.NoError(t, s.ZRem(ctx, "z1", "b"))
	remaining, err := s.ZRangeByScore(ctx, "z1", negInfForTest, posInfForTest, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, remaining)
}

func TestZAdd_ReplacesScoreForExistingMember(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.ZAdd(ctx, "z1", 1, "a"))
	require.NoError(t, s.ZAdd(ctx, "z1", 9, "a"))

	_, score, ok, err := s.ZPopMin(ctx, "z1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(9), score)
}

const (
	negInfForTest = -1e18
	posInfForTest = 1e18
)
