package localkv

import (
	"context"
	"encoding/base64"

	"github.com/agentcoord/core/pkg/kv"
)

// ClaimTask is the scripted claim operation (spec §4.A): scan the
// pending zset in priority order, call picker on each candidate's
// full record, and atomically remove the first eligible member from
// the zset so no other concurrent claimer can also match it.
//
// It locks the zset and hash in a fixed order (zset, then hash) so it
// can never deadlock against a concurrent ordinary ZAdd/HSet call,
// which always locks a single key at a time. Removing the winning
// member from the pending zset is the only mutation this op performs;
// the caller (pkg/queue) updates the record's status/claimed_by
// afterward via a plain HSet, which is race-free precisely because
// the task no longer appears in the pending set for anyone else to
// pick up. Dependency-readiness is not re-checked here: a task only
// ever enters the pending zset once every dependency has already
// completed (the lazy-promotion invariant), so picker only has to
// test tag compatibility against a single record with no recursive
// backend calls.
func (s *Store) ClaimTask(ctx context.Context, req kv.ClaimRequest, picker kv.TaskPicker) (*kv.ClaimResult, error) {
	unlockZSet, err := s.lock("zset", req.PendingKey)
	if err != nil {
		return nil, err
	}
	defer unlockZSet()

	unlockHash, err := s.lock("hash", req.DataKey)
	if err != nil {
		return nil, err
	}
	defer unlockHash()

	z, exists, err := s.readZSet(req.PendingKey)
	if err != nil {
		return nil, err
	}
	if !exists || len(z.Entries) == 0 {
		return &kv.ClaimResult{Matched: false}, nil
	}

	h, _, err := s.readHash(req.DataKey)
	if err != nil {
		return nil, err
	}

	for i, entry := range z.Entries {
		encoded, ok := h.Fields[entry.Member]
		if !ok {
			continue
		}
		taskData, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, err
		}
		if !picker(entry.Member, taskData) {
			continue
		}

		z.Entries = append(z.Entries[:i:i], z.Entries[i+1:]...)
		if err := s.writeZSet(req.PendingKey, z); err != nil {
			return nil, err
		}
		return &kv.ClaimResult{Matched: true, TaskID: entry.Member, TaskData: taskData}, nil
	}

	return &kv.ClaimResult{Matched: false}, nil
}
