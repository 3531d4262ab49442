package audit

import (
	"context"
	"time"

	"github.com/agentcoord/core/pkg/kv"
	"github.com/agentcoord/core/pkg/types"
)

// StreamKey is the append-only decision log's stream key (spec §6.1:
// "audit:decisions").
const StreamKey = "audit:decisions"

// Log appends audit entries to a single backend stream and replays
// them back in commit order.
type Log struct {
	backend kv.Backend
}

// New wraps a backend with the audit append/read contract.
func New(backend kv.Backend) *Log {
	return &Log{backend: backend}
}

// Append writes one entry to the stream, filling in its timestamp and
// discarding any caller-supplied SeqID (the backend assigns it).
func (l *Log) Append(ctx context.Context, kind types.AuditKind, agentID, detail, reason string) (*types.AuditEntry, error) {
	entry := types.AuditEntry{
		Timestamp: time.Now().UTC(),
		AgentID:   agentID,
		Kind:      kind,
		Context:   detail,
		Reason:    reason,
	}

	data, err := entry.MarshalRecord()
	if err != nil {
		return nil, err
	}

	id, err := l.backend.StreamAppend(ctx, StreamKey, map[string][]byte{"entry": data})
	if err != nil {
		return nil, err
	}
	entry.SeqID = id
	return &entry, nil
}

// Tail returns up to limit entries after afterID (exclusive), in
// commit order. An empty afterID reads from the start of the log.
func (l *Log) Tail(ctx context.Context, afterID string, limit int) ([]*types.AuditEntry, error) {
	records, err := l.backend.StreamRead(ctx, StreamKey, afterID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]*types.AuditEntry, 0, len(records))
	for _, rec := range records {
		entry, err := types.UnmarshalAuditEntry(rec.Fields["entry"])
		if err != nil {
			return nil, err
		}
		entry.SeqID = rec.ID
		out = append(out, entry)
	}
	return out, nil
}
