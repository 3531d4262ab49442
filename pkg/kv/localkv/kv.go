package localkv

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
)

// plain get/set/del/cas/incr over the "kv" directory: one file per key,
// raw bytes, no envelope needed since values are opaque.

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	unlock, err := s.lock("kv", key)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	return s.readRaw(key)
}

func (s *Store) readRaw(key string) ([]byte, bool, error) {
	return s.readRawDir(dirKV, key)
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	unlock, err := s.lock("kv", key)
	if err != nil {
		return err
	}
	defer unlock()

	return atomicWriteFile(s.path(dirKV, key), value)
}

func (s *Store) Del(ctx context.Context, key string) error {
	unlock, err := s.lock("kv", key)
	if err != nil {
		return err
	}
	defer unlock()

	err = os.Remove(s.path(dirKV, key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *Store) CASSet(ctx context.Context, key string, expected, newValue []byte) (bool, error) {
	unlock, err := s.lock("kv", key)
	if err != nil {
		return false, err
	}
	defer unlock()

	current, exists, err := s.readRaw(key)
	if err != nil {
		return false, err
	}

	if expected == nil {
		if exists {
			return false, nil
		}
	} else {
		if !exists || !bytes.Equal(current, expected) {
			return false, nil
		}
	}

	if err := atomicWriteFile(s.path(dirKV, key), newValue); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	return s.IncrBy(ctx, key, 1)
}

func (s *Store) Decr(ctx context.Context, key string) (int64, error) {
	return s.IncrBy(ctx, key, -1)
}

func (s *Store) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	unlock, err := s.lock("kv", key)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var counter struct {
		Value int64 `json:"value"`
	}
	data, exists, err := s.readRaw(key)
	if err != nil {
		return 0, err
	}
	if exists {
		if err := json.Unmarshal(data, &counter); err != nil {
			return 0, err
		}
	}
	counter.Value += n

	out, err := json.Marshal(counter)
	if err != nil {
		return 0, err
	}
	if err := atomicWriteFile(s.path(dirKV, key), out); err != nil {
		return 0, err
	}
	return counter.Value, nil
}

// hashFile is the on-disk envelope for a hash-typed key: fields keyed
// by name, values base64-encoded since JSON strings must be valid
// UTF-8 and hash values are opaque bytes.
type hashFile struct {
	Fields map[string]string `json:"fields"`
}

func (s *Store) readHash(key string) (hashFile, bool, error) {
	var h hashFile
	data, exists, err := s.readRawDir(dirHash, key)
	if err != nil || !exists {
		return h, exists, err
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return h, true, err
	}
	if h.Fields == nil {
		h.Fields = make(map[string]string)
	}
	return h, true, nil
}

func (s *Store) readRawDir(dir, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(dir, key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *Store) writeHash(key string, h hashFile) error {
	out, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return atomicWriteFile(s.path(dirHash, key), out)
}

func (s *Store) HSet(ctx context.Context, key, field string, value []byte) error {
	unlock, err := s.lock("hash", key)
	if err != nil {
		return err
	}
	defer unlock()

	h, _, err := s.readHash(key)
	if err != nil {
		return err
	}
	if h.Fields == nil {
		h.Fields = make(map[string]string)
	}
	h.Fields[field] = base64.StdEncoding.EncodeToString(value)
	return s.writeHash(key, h)
}

func (s *Store) HGet(ctx context.Context, key, field string) ([]byte, bool, error) {
	unlock, err := s.lock("hash", key)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	h, exists, err := s.readHash(key)
	if err != nil || !exists {
		return nil, false, err
	}
	encoded, ok := h.Fields[field]
	if !ok {
		return nil, false, nil
	}
	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	unlock, err := s.lock("hash", key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	h, _, err := s.readHash(key)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(h.Fields))
	for field, encoded := range h.Fields {
		value, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, err
		}
		out[field] = value
	}
	return out, nil
}

func (s *Store) HIncrBy(ctx context.Context, key, field string, n int64) (int64, error) {
	unlock, err := s.lock("hash", key)
	if err != nil {
		return 0, err
	}
	defer unlock()

	h, _, err := s.readHash(key)
	if err != nil {
		return 0, err
	}
	if h.Fields == nil {
		h.Fields = make(map[string]string)
	}

	var current int64
	if encoded, ok := h.Fields[field]; ok {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return 0, err
		}
		if err := json.Unmarshal(raw, &current); err != nil {
			return 0, err
		}
	}
	current += n

	raw, err := json.Marshal(current)
	if err != nil {
		return 0, err
	}
	h.Fields[field] = base64.StdEncoding.EncodeToString(raw)
	if err := s.writeHash(key, h); err != nil {
		return 0, err
	}
	return current, nil
}

func (s *Store) HDel(ctx context.Context, key, field string) error {
	unlock, err := s.lock("hash", key)
	if err != nil {
		return err
	}
	defer unlock()

	h, exists, err := s.readHash(key)
	if err != nil || !exists {
		return err
	}
	delete(h.Fields, field)
	return s.writeHash(key, h)
}
