package kv

import "context"

// StreamEntry is one record read back from an append-only stream.
type StreamEntry struct {
	ID     string
	Fields map[string][]byte
}

// Subscription is a live pub/sub subscription. Callers range over
// Messages() until the subscription is closed or its context is
// canceled, then call Close.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// ClaimRequest is the input to the scripted claim-task operation.
// AgentTags is the agent's advertised capability set; an empty set
// matches only untagged tasks. PendingKey names the sorted set the
// backend scans in priority order (spec: "tasks:pending"); DataKey
// names the hash holding the full serialized task record for each
// candidate, keyed by task id (spec: "tasks:data"). Both live in the
// same backend instance so ClaimTask can read/mutate them atomically.
type ClaimRequest struct {
	PendingKey string
	DataKey    string
	AgentID    string
	AgentTags  []string
}

// ClaimResult is the output of a successful claim. Matched is false
// when no eligible task was found (spec: "Return ... None if nothing
// matches" — represented here as Matched=false rather than a nil
// pointer so backends don't need typed nils).
type ClaimResult struct {
	Matched bool
	TaskID  string
	// TaskData is the full serialized task record as it was stored at
	// claim time (before the caller marks it claimed), decoded by
	// callers via types.UnmarshalTask.
	TaskData []byte
}

// LockRequest is the input to the scripted lock-acquire operation.
type LockRequest struct {
	Path       string
	HolderID   string
	Intent     string
	TTLSeconds int
	LockID     string // pre-generated opaque token to store if acquired
}

// LockResult is the output of a lock-acquire attempt.
type LockResult struct {
	Acquired bool
	// HolderID of the existing live lock, populated when Acquired is
	// false, for diagnostics/audit.
	ExistingHolder string
}

// Backend is the full set of atomic primitives required by the
// coordination core (spec §4.A). Every method is safe for concurrent
// use by multiple goroutines and multiple OS processes sharing the
// same backend instance/cluster.
type Backend interface {
	// CASSet atomically sets key to new iff its current value equals
	// expected (nil expected means "key must not exist"). Returns
	// whether the set took effect.
	CASSet(ctx context.Context, key string, expected, newValue []byte) (bool, error)

	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error

	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)
	IncrBy(ctx context.Context, key string, n int64) (int64, error)

	HSet(ctx context.Context, key, field string, value []byte) error
	HGet(ctx context.Context, key, field string) ([]byte, bool, error)
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
	HIncrBy(ctx context.Context, key, field string, n int64) (int64, error)
	HDel(ctx context.Context, key, field string) error

	SAdd(ctx context.Context, key, member string) error
	SRem(ctx context.Context, key, member string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	ZAdd(ctx context.Context, key string, score float64, member string) error
	// ZRangeByScore returns members with min <= score <= max, ordered
	// by ascending score, truncated to limit (0 = unlimited).
	ZRangeByScore(ctx context.Context, key string, min, max float64, limit int) ([]string, error)
	// ZPopMin atomically removes and returns the lowest-scored member.
	ZPopMin(ctx context.Context, key string) (member string, score float64, ok bool, err error)
	ZRem(ctx context.Context, key, member string) error

	// StreamAppend appends an entry to an append-only stream and
	// returns its monotonically increasing id.
	StreamAppend(ctx context.Context, key string, fields map[string][]byte) (id string, err error)
	// StreamRead returns up to limit entries after afterID (exclusive);
	// an empty afterID reads from the beginning.
	StreamRead(ctx context.Context, key, afterID string, limit int) ([]StreamEntry, error)

	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	// ClaimTask and AcquireLock are the two scripted multi-op
	// operations spec §4.A requires: scan + pick + mutate as one
	// atomic unit so two competing callers never both succeed.
	ClaimTask(ctx context.Context, req ClaimRequest, picker TaskPicker) (*ClaimResult, error)
	AcquireLock(ctx context.Context, req LockRequest) (*LockResult, error)

	Close() error
}

// TaskPicker is supplied by pkg/queue to ClaimTask: given a candidate
// task id's serialized record, report whether it's eligible (ready
// dependencies, tag match) for the claiming agent. Backends call this
// once per candidate, in priority order, stopping at the first hit —
// the backend owns the atomicity, pkg/queue owns the domain logic, so
// eligibility rules never have to be duplicated into each backend.
type TaskPicker func(taskID string, taskData []byte) (eligible bool)
