package localkv

import (
	"context"
	"encoding/json"
	"sort"
)

// zsetEntry is one member of a sorted set. Seq records insertion order
// so that members tied on Score keep a stable, deterministic ordering
// (oldest-added-first) across ZRangeByScore/ZPopMin calls, matching
// spec's requirement that the pending-task zset behave as a priority
// queue rather than an unordered set.
type zsetEntry struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
	Seq    int64   `json:"seq"`
}

type zsetFile struct {
	Entries []zsetEntry `json:"entries"`
	NextSeq int64       `json:"next_seq"`
}

func (s *Store) readZSet(key string) (zsetFile, bool, error) {
	var z zsetFile
	data, exists, err := s.readRawDir(dirZSet, key)
	if err != nil || !exists {
		return z, exists, err
	}
	if err := json.Unmarshal(data, &z); err != nil {
		return z, true, err
	}
	return z, true, nil
}

func (s *Store) writeZSet(key string, z zsetFile) error {
	out, err := json.Marshal(z)
	if err != nil {
		return err
	}
	return atomicWriteFile(s.path(dirZSet, key), out)
}

func sortZSet(entries []zsetEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score < entries[j].Score
		}
		return entries[i].Seq < entries[j].Seq
	})
}

func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	unlock, err := s.lock("zset", key)
	if err != nil {
		return err
	}
	defer unlock()

	z, _, err := s.readZSet(key)
	if err != nil {
		return err
	}

	replaced := false
	for i := range z.Entries {
		if z.Entries[i].Member == member {
			z.Entries[i].Score = score
			replaced = true
			break
		}
	}
	if !replaced {
		z.Entries = append(z.Entries, zsetEntry{Member: member, Score: score, Seq: z.NextSeq})
		z.NextSeq++
	}
	sortZSet(z.Entries)
	return s.writeZSet(key, z)
}

func (s *Store) ZRangeByScore(ctx context.Context, key string, min, max float64, limit int) ([]string, error) {
	unlock, err := s.lock("zset", key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	z, _, err := s.readZSet(key)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range z.Entries {
		if e.Score >= min && e.Score <= max {
			out = append(out, e.Member)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) ZPopMin(ctx context.Context, key string) (string, float64, bool, error) {
	unlock, err := s.lock("zset", key)
	if err != nil {
		return "", 0, false, err
	}
	defer unlock()

	z, exists, err := s.readZSet(key)
	if err != nil || !exists || len(z.Entries) == 0 {
		return "", 0, false, err
	}

	head := z.Entries[0]
	z.Entries = z.Entries[1:]
	if err := s.writeZSet(key, z); err != nil {
		return "", 0, false, err
	}
	return head.Member, head.Score, true, nil
}

func (s *Store) ZRem(ctx context.Context, key, member string) error {
	unlock, err := s.lock("zset", key)
	if err != nil {
		return err
	}
	defer unlock()

	z, exists, err := s.readZSet(key)
	if err != nil || !exists {
		return err
	}

	out := z.Entries[:0]
	for _, e := range z.Entries {
		if e.Member != member {
			out = append(out, e)
		}
	}
	z.Entries = out
	return s.writeZSet(key, z)
}
