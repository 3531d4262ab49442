package filelock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"path/filepath"
	"time"

	"github.com/agentcoord/core/internal/corelog"
	"github.com/agentcoord/core/pkg/coreerr"
	"github.com/agentcoord/core/pkg/kv"
	"github.com/agentcoord/core/pkg/types"
	"github.com/rs/zerolog"
)

const indexKey = "locks:index"

func recordKey(canonicalPath string) string { return "lock:" + canonicalPath }

// Manager is the File Lock Manager (spec §4.C).
type Manager struct {
	backend kv.Backend
	logger  zerolog.Logger
}

// New creates a Manager over backend.
func New(backend kv.Backend) *Manager {
	return &Manager{
		backend: backend,
		logger:  corelog.WithComponent("filelock"),
	}
}

// Release is returned by LockFile and ScopedLock; it is always
// idempotent and safe to call more than once or after the TTL has
// already expired.
type Release func(ctx context.Context) error

// LockFile atomically acquires an exclusive lock on path for holderID,
// or fails with coreerr.LockBusy if a live lock already exists. path
// is canonicalized via filepath.Clean so callers don't have to agree
// on a literal string.
func (m *Manager) LockFile(ctx context.Context, path, holderID, intent string, ttlSeconds int) (*types.FileLock, Release, error) {
	canonical := filepath.Clean(path)
	lockID, err := newLockID()
	if err != nil {
		return nil, nil, err
	}

	result, err := m.backend.AcquireLock(ctx, kv.LockRequest{
		Path:       canonical,
		HolderID:   holderID,
		Intent:     intent,
		TTLSeconds: ttlSeconds,
		LockID:     lockID,
	})
	if err != nil {
		return nil, nil, err
	}
	if !result.Acquired {
		return nil, nil, coreerr.Wrap(coreerr.LockBusy, "path held by "+result.ExistingHolder, coreerr.ErrLockBusy)
	}

	now := time.Now().UTC()
	lock := &types.FileLock{
		Path:       canonical,
		LockID:     lockID,
		HolderID:   holderID,
		Intent:     intent,
		AcquiredAt: now,
		ExpiresAt:  now.Add(time.Duration(ttlSeconds) * time.Second),
	}
	if err := m.put(ctx, lock); err != nil {
		return nil, nil, err
	}
	if err := m.backend.SAdd(ctx, indexKey, canonical); err != nil {
		return nil, nil, err
	}

	m.logger.Info().Str("path", canonical).Str("holder_id", holderID).Msg("lock acquired")

	release := func(releaseCtx context.Context) error {
		return m.ReleaseLock(releaseCtx, canonical, lockID)
	}
	return lock, release, nil
}

// ScopedLock is the canonical usage: acquire on entry, let the caller
// defer the returned Release on every exit path including panics and
// early returns. The release func swallows "already gone" outcomes
// since release is always best-effort (spec §4.C).
func (m *Manager) ScopedLock(ctx context.Context, path, holderID, intent string, ttlSeconds int) (*types.FileLock, Release, error) {
	return m.LockFile(ctx, path, holderID, intent, ttlSeconds)
}

// ExtendLock pushes a held lock's expiry further out, failing with
// coreerr.LockStolen if lockID no longer matches the stored record
// (TTL already expired and reclaimed, or never existed).
func (m *Manager) ExtendLock(ctx context.Context, path, lockID string, additionalSeconds int) error {
	canonical := filepath.Clean(path)
	lock, err := m.get(ctx, canonical)
	if err != nil {
		return err
	}
	if lock == nil || lock.LockID != lockID || lock.Expired(time.Now().UTC()) {
		return coreerr.Wrap(coreerr.LockStolen, "lock_id no longer holds "+canonical, coreerr.ErrLockStolen)
	}

	lock.ExpiresAt = lock.ExpiresAt.Add(time.Duration(additionalSeconds) * time.Second)
	return m.put(ctx, lock)
}

// ReleaseLock best-effort releases a lock; it is not an error if the
// lock already expired or was reclaimed by someone else (spec §4.C:
// "Best-effort; no error if already expired").
func (m *Manager) ReleaseLock(ctx context.Context, path, lockID string) error {
	canonical := filepath.Clean(path)
	lock, err := m.get(ctx, canonical)
	if err != nil {
		return err
	}
	if lock == nil || lock.LockID != lockID {
		return nil
	}

	if err := m.backend.Del(ctx, recordKey(canonical)); err != nil {
		return err
	}
	if err := m.backend.SRem(ctx, indexKey, canonical); err != nil {
		return err
	}
	m.logger.Info().Str("path", canonical).Msg("lock released")
	return nil
}

// ListLocks returns every lock record still tracked by the index,
// including ones whose TTL has already lapsed (callers check Expired
// themselves; a lapsed entry is reaped lazily on the next LockFile
// or ReleaseLock call for that path, per spec's "any reader may reap"
// invariant).
func (m *Manager) ListLocks(ctx context.Context) ([]*types.FileLock, error) {
	paths, err := m.backend.SMembers(ctx, indexKey)
	if err != nil {
		return nil, err
	}

	out := make([]*types.FileLock, 0, len(paths))
	for _, path := range paths {
		lock, err := m.get(ctx, path)
		if err != nil {
			return nil, err
		}
		if lock == nil {
			_ = m.backend.SRem(ctx, indexKey, path)
			continue
		}
		out = append(out, lock)
	}
	return out, nil
}

func (m *Manager) put(ctx context.Context, lock *types.FileLock) error {
	data, err := lock.MarshalRecord()
	if err != nil {
		return err
	}
	return m.backend.Set(ctx, recordKey(lock.Path), data)
}

func (m *Manager) get(ctx context.Context, canonicalPath string) (*types.FileLock, error) {
	data, ok, err := m.backend.Get(ctx, recordKey(canonicalPath))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return types.UnmarshalFileLock(data)
}

func newLockID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
