package localkv

import (
	"context"
	"encoding/json"
)

type setFile struct {
	Members map[string]bool `json:"members"`
}

func (s *Store) readSet(key string) (setFile, bool, error) {
	var set setFile
	data, exists, err := s.readRawDir(dirSet, key)
	if err != nil || !exists {
		return set, exists, err
	}
	if err := json.Unmarshal(data, &set); err != nil {
		return set, true, err
	}
	if set.Members == nil {
		set.Members = make(map[string]bool)
	}
	return set, true, nil
}

func (s *Store) writeSet(key string, set setFile) error {
	out, err := json.Marshal(set)
	if err != nil {
		return err
	}
	return atomicWriteFile(s.path(dirSet, key), out)
}

func (s *Store) SAdd(ctx context.Context, key, member string) error {
	unlock, err := s.lock("set", key)
	if err != nil {
		return err
	}
	defer unlock()

	set, _, err := s.readSet(key)
	if err != nil {
		return err
	}
	if set.Members == nil {
		set.Members = make(map[string]bool)
	}
	set.Members[member] = true
	return s.writeSet(key, set)
}

func (s *Store) SRem(ctx context.Context, key, member string) error {
	unlock, err := s.lock("set", key)
	if err != nil {
		return err
	}
	defer unlock()

	set, exists, err := s.readSet(key)
	if err != nil || !exists {
		return err
	}
	delete(set.Members, member)
	return s.writeSet(key, set)
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	unlock, err := s.lock("set", key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	set, _, err := s.readSet(key)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(set.Members))
	for m := range set.Members {
		out = append(out, m)
	}
	return out, nil
}
