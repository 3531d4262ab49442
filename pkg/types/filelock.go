package types

import (
	"encoding/json"
	"time"
)

// FileLock records exclusive ownership of a canonical file path.
// A lock is considered released once time.Now() passes ExpiresAt,
// whether or not release_lock was ever called (spec §3).
type FileLock struct {
	Path       string    `json:"path"`
	LockID     string    `json:"lock_id"`
	HolderID   string    `json:"holder_id"`
	Intent     string    `json:"intent"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the lock's TTL has passed as of now.
func (l *FileLock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// MarshalRecord serializes the lock to its KV hash representation.
func (l *FileLock) MarshalRecord() ([]byte, error) {
	return json.Marshal(l)
}

// UnmarshalFileLock deserializes a lock previously written by MarshalRecord.
func UnmarshalFileLock(data []byte) (*FileLock, error) {
	var l FileLock
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	return &l, nil
}
