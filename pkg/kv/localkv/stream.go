package localkv

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/agentcoord/core/pkg/kv"
)

// streamRecord is one JSONL line in a stream file. ID is a
// zero-padded monotonically increasing sequence number so that
// lexical and numeric ordering agree, matching the append-only log
// semantics spec §4.A's audit/escalation streams need.
type streamRecord struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

func (s *Store) StreamAppend(ctx context.Context, key string, fields map[string][]byte) (string, error) {
	unlock, err := s.lock("stream", key)
	if err != nil {
		return "", err
	}
	defer unlock()

	path := s.path(dirStream, key)
	lastSeq, err := s.lastStreamSeq(path)
	if err != nil {
		return "", err
	}
	nextSeq := lastSeq + 1
	id := fmt.Sprintf("%020d", nextSeq)

	encoded := make(map[string]string, len(fields))
	for k, v := range fields {
		encoded[k] = base64.StdEncoding.EncodeToString(v)
	}

	line, err := json.Marshal(streamRecord{ID: id, Fields: encoded})
	if err != nil {
		return "", err
	}
	line = append(line, '\n')

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) lastStreamSeq(path string) (int64, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var last int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec streamRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		var seq int64
		fmt.Sscanf(rec.ID, "%d", &seq)
		last = seq
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return last, nil
}

func (s *Store) StreamRead(ctx context.Context, key, afterID string, limit int) ([]kv.StreamEntry, error) {
	unlock, err := s.lock("stream", key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	path := s.path(dirStream, key)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []kv.StreamEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec streamRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if afterID != "" && rec.ID <= afterID {
			continue
		}
		fields := make(map[string][]byte, len(rec.Fields))
		for k, v := range rec.Fields {
			decoded, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return nil, err
			}
			fields[k] = decoded
		}
		out = append(out, kv.StreamEntry{ID: rec.ID, Fields: fields})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
