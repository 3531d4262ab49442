package localkv

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agentcoord/core/pkg/kv"
)

// lockRecord is the on-disk representation of a held file lock,
// stored in the generic kv directory under the "lock:<path>" key.
// pkg/filelock overwrites that key with a types.FileLock record, which
// carries expires_at instead of ttl_seconds; expired honours either.
type lockRecord struct {
	HolderID   string    `json:"holder_id"`
	Intent     string    `json:"intent"`
	LockID     string    `json:"lock_id"`
	TTLSeconds int       `json:"ttl_seconds"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (r lockRecord) expired(now time.Time) bool {
	if !r.ExpiresAt.IsZero() {
		return now.After(r.ExpiresAt)
	}
	return now.After(r.AcquiredAt.Add(time.Duration(r.TTLSeconds) * time.Second))
}

// AcquireLock is the scripted lock operation (spec §4.A/§4.B): read,
// check, write as one atomic unit guarded by a single per-path mutator
// lock, so two agents racing for the same file can never both
// believe they hold it. A lock is free to (re)acquire when it has
// never been held, has expired, or is already held by the same
// holder (idempotent re-entry).
func (s *Store) AcquireLock(ctx context.Context, req kv.LockRequest) (*kv.LockResult, error) {
	lockKey := "lock:" + req.Path
	unlock, err := s.lock("kv", lockKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	data, exists, err := s.readRaw(lockKey)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if exists {
		var current lockRecord
		if err := json.Unmarshal(data, &current); err != nil {
			return nil, err
		}
		if !current.expired(now) && current.HolderID != req.HolderID {
			return &kv.LockResult{Acquired: false, ExistingHolder: current.HolderID}, nil
		}
	}

	record := lockRecord{
		HolderID:   req.HolderID,
		Intent:     req.Intent,
		LockID:     req.LockID,
		TTLSeconds: req.TTLSeconds,
		AcquiredAt: now,
	}
	out, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	if err := atomicWriteFile(s.path(dirKV, lockKey), out); err != nil {
		return nil, err
	}
	return &kv.LockResult{Acquired: true}, nil
}
