package raftkv

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/agentcoord/core/internal/corelog"
	"github.com/hashicorp/raft"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketKV     = []byte("kv")
	bucketHash   = []byte("hash")
	bucketSet    = []byte("set")
	bucketZSet   = []byte("zset")
	bucketStream = []byte("stream")
)

// fsm is the Raft finite state machine for the coordination core,
// generalized from the teacher's WarrenFSM: one Apply dispatch switch
// over a Command{Op,Data}, backed here by bbolt instead of the
// in-memory store the teacher delegates to, since the core has no
// separate storage.Store layer of its own.
type fsm struct {
	mu sync.RWMutex
	db *bolt.DB
}

func newFSM(db *bolt.DB) (*fsm, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketKV, bucketHash, bucketSet, bucketZSet, bucketStream} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &fsm{db: db}, nil
}

func (f *fsm) Apply(log *raft.Log) interface{} {
	var cmd command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return applyResult{Err: fmt.Sprintf("unmarshal command: %v", err)}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var result applyResult
	err := f.db.Update(func(tx *bolt.Tx) error {
		var applyErr error
		result, applyErr = dispatch(tx, cmd)
		return applyErr
	})
	if err != nil {
		return applyResult{Err: err.Error()}
	}
	return result
}

func dispatch(tx *bolt.Tx, cmd command) (applyResult, error) {
	switch cmd.Op {
	case opSet:
		var p setPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return applyResult{}, err
		}
		if err := tx.Bucket(bucketKV).Put([]byte(p.Key), p.Value); err != nil {
			return applyResult{}, err
		}
		return applyResult{}, nil

	case opDel:
		var p delPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return applyResult{}, err
		}
		if err := tx.Bucket(bucketKV).Delete([]byte(p.Key)); err != nil {
			return applyResult{}, err
		}
		return applyResult{}, nil

	case opCASSet:
		var p casSetPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return applyResult{}, err
		}
		b := tx.Bucket(bucketKV)
		current := b.Get([]byte(p.Key))
		if p.HasExp {
			if current == nil || !bytes.Equal(current, p.Expected) {
				return applyResult{Bool: false}, nil
			}
		} else if current != nil {
			return applyResult{Bool: false}, nil
		}
		if err := b.Put([]byte(p.Key), p.NewValue); err != nil {
			return applyResult{}, err
		}
		return applyResult{Bool: true}, nil

	case opIncrBy:
		var p incrByPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return applyResult{}, err
		}
		b := tx.Bucket(bucketKV)
		var counter struct {
			Value int64 `json:"value"`
		}
		if raw := b.Get([]byte(p.Key)); raw != nil {
			if err := json.Unmarshal(raw, &counter); err != nil {
				return applyResult{}, err
			}
		}
		counter.Value += p.N
		out, err := json.Marshal(counter)
		if err != nil {
			return applyResult{}, err
		}
		if err := b.Put([]byte(p.Key), out); err != nil {
			return applyResult{}, err
		}
		return applyResult{Int64: counter.Value}, nil

	case opHSet:
		var p hsetPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return applyResult{}, err
		}
		h, err := readHashBucket(tx, p.Key)
		if err != nil {
			return applyResult{}, err
		}
		h.Fields[p.Field] = base64.StdEncoding.EncodeToString(p.Value)
		return applyResult{}, writeHashBucket(tx, p.Key, h)

	case opHIncrBy:
		var p hincrByPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return applyResult{}, err
		}
		h, err := readHashBucket(tx, p.Key)
		if err != nil {
			return applyResult{}, err
		}
		var current int64
		if encoded, ok := h.Fields[p.Field]; ok {
			raw, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return applyResult{}, err
			}
			if err := json.Unmarshal(raw, &current); err != nil {
				return applyResult{}, err
			}
		}
		current += p.N
		raw, err := json.Marshal(current)
		if err != nil {
			return applyResult{}, err
		}
		h.Fields[p.Field] = base64.StdEncoding.EncodeToString(raw)
		if err := writeHashBucket(tx, p.Key, h); err != nil {
			return applyResult{}, err
		}
		return applyResult{Int64: current}, nil

	case opHDel:
		var p hdelPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return applyResult{}, err
		}
		h, err := readHashBucket(tx, p.Key)
		if err != nil {
			return applyResult{}, err
		}
		delete(h.Fields, p.Field)
		return applyResult{}, writeHashBucket(tx, p.Key, h)

	case opSAdd:
		var p setMemberPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return applyResult{}, err
		}
		set, err := readSetBucket(tx, p.Key)
		if err != nil {
			return applyResult{}, err
		}
		set.Members[p.Member] = true
		return applyResult{}, writeSetBucket(tx, p.Key, set)

	case opSRem:
		var p setMemberPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return applyResult{}, err
		}
		set, err := readSetBucket(tx, p.Key)
		if err != nil {
			return applyResult{}, err
		}
		delete(set.Members, p.Member)
		return applyResult{}, writeSetBucket(tx, p.Key, set)

	case opZAdd:
		var p zaddPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return applyResult{}, err
		}
		z, err := readZSetBucket(tx, p.Key)
		if err != nil {
			return applyResult{}, err
		}
		z.add(p.Member, p.Score)
		return applyResult{}, writeZSetBucket(tx, p.Key, z)

	case opZRem:
		var p zremPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return applyResult{}, err
		}
		z, err := readZSetBucket(tx, p.Key)
		if err != nil {
			return applyResult{}, err
		}
		z.remove(p.Member)
		return applyResult{}, writeZSetBucket(tx, p.Key, z)

	case opZPopMin:
		var p zpopMinPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return applyResult{}, err
		}
		z, err := readZSetBucket(tx, p.Key)
		if err != nil {
			return applyResult{}, err
		}
		if len(z.Entries) == 0 {
			return applyResult{Bool: false}, nil
		}
		head := z.Entries[0]
		z.Entries = z.Entries[1:]
		if err := writeZSetBucket(tx, p.Key, z); err != nil {
			return applyResult{}, err
		}
		value, err := json.Marshal(zsetMemberScore{Member: head.Member, Score: head.Score})
		if err != nil {
			return applyResult{}, err
		}
		return applyResult{Bool: true, Value: value}, nil

	case opStreamAppend:
		var p streamAppendPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return applyResult{}, err
		}
		id, err := appendStreamBucket(tx, p.Key, p.Fields)
		if err != nil {
			return applyResult{}, err
		}
		return applyResult{String: id}, nil

	case opClaimTask:
		var p claimTaskPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return applyResult{}, err
		}
		return claimTask(tx, p)

	case opAcquireLock:
		var p acquireLockPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return applyResult{}, err
		}
		return acquireLock(tx, p)

	default:
		return applyResult{}, fmt.Errorf("unknown raftkv command: %s", cmd.Op)
	}
}

type zsetMemberScore struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}

// hashFile/setFile/zsetFile mirror localkv's on-disk shapes, stored
// here as a single JSON blob per key inside the relevant bbolt bucket
// rather than as a file, so both backends share the same logical
// model even though the physical storage differs. Field values are
// base64-encoded, the same as localkv, since hash values are opaque
// bytes with no guarantee of being valid JSON on their own.
type hashFile struct {
	Fields map[string]string `json:"fields"`
}

func readHashBucket(tx *bolt.Tx, key string) (hashFile, error) {
	var h hashFile
	if raw := tx.Bucket(bucketHash).Get([]byte(key)); raw != nil {
		if err := json.Unmarshal(raw, &h); err != nil {
			return h, err
		}
	}
	if h.Fields == nil {
		h.Fields = make(map[string]string)
	}
	return h, nil
}

func writeHashBucket(tx *bolt.Tx, key string, h hashFile) error {
	out, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketHash).Put([]byte(key), out)
}

type setFile struct {
	Members map[string]bool `json:"members"`
}

func readSetBucket(tx *bolt.Tx, key string) (setFile, error) {
	var s setFile
	if raw := tx.Bucket(bucketSet).Get([]byte(key)); raw != nil {
		if err := json.Unmarshal(raw, &s); err != nil {
			return s, err
		}
	}
	if s.Members == nil {
		s.Members = make(map[string]bool)
	}
	return s, nil
}

func writeSetBucket(tx *bolt.Tx, key string, s setFile) error {
	out, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketSet).Put([]byte(key), out)
}

type zsetEntry struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
	Seq    int64   `json:"seq"`
}

type zsetFile struct {
	Entries []zsetEntry `json:"entries"`
	NextSeq int64       `json:"next_seq"`
}

func (z *zsetFile) add(member string, score float64) {
	for i := range z.Entries {
		if z.Entries[i].Member == member {
			z.Entries[i].Score = score
			z.sort()
			return
		}
	}
	z.Entries = append(z.Entries, zsetEntry{Member: member, Score: score, Seq: z.NextSeq})
	z.NextSeq++
	z.sort()
}

func (z *zsetFile) remove(member string) {
	out := z.Entries[:0]
	for _, e := range z.Entries {
		if e.Member != member {
			out = append(out, e)
		}
	}
	z.Entries = out
}

func (z *zsetFile) sort() {
	sort.SliceStable(z.Entries, func(i, j int) bool {
		if z.Entries[i].Score != z.Entries[j].Score {
			return z.Entries[i].Score < z.Entries[j].Score
		}
		return z.Entries[i].Seq < z.Entries[j].Seq
	})
}

func readZSetBucket(tx *bolt.Tx, key string) (zsetFile, error) {
	var z zsetFile
	if raw := tx.Bucket(bucketZSet).Get([]byte(key)); raw != nil {
		if err := json.Unmarshal(raw, &z); err != nil {
			return z, err
		}
	}
	return z, nil
}

func writeZSetBucket(tx *bolt.Tx, key string, z zsetFile) error {
	out, err := json.Marshal(z)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketZSet).Put([]byte(key), out)
}

func appendStreamBucket(tx *bolt.Tx, key string, fields map[string][]byte) (string, error) {
	sub, err := tx.Bucket(bucketStream).CreateBucketIfNotExists([]byte(key))
	if err != nil {
		return "", err
	}
	nextSeq, err := sub.NextSequence()
	if err != nil {
		return "", err
	}
	id := fmt.Sprintf("%020d", nextSeq)
	out, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	if err := sub.Put([]byte(id), out); err != nil {
		return "", err
	}
	return id, nil
}

func claimTask(tx *bolt.Tx, p claimTaskPayload) (applyResult, error) {
	z, err := readZSetBucket(tx, p.PendingKey)
	if err != nil {
		return applyResult{}, err
	}
	if len(z.Entries) == 0 {
		out, _ := json.Marshal(claimOutcome{Matched: false})
		return applyResult{Value: out}, nil
	}

	h, err := readHashBucket(tx, p.DataKey)
	if err != nil {
		return applyResult{}, err
	}

	for i, entry := range z.Entries {
		encoded, ok := h.Fields[entry.Member]
		if !ok {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return applyResult{}, err
		}
		if !taskMatchesTags(raw, p.AgentTags) {
			continue
		}
		z.Entries = append(z.Entries[:i:i], z.Entries[i+1:]...)
		if err := writeZSetBucket(tx, p.PendingKey, z); err != nil {
			return applyResult{}, err
		}
		out, err := json.Marshal(claimOutcome{Matched: true, TaskID: entry.Member, TaskData: raw})
		if err != nil {
			return applyResult{}, err
		}
		return applyResult{Value: out}, nil
	}

	out, _ := json.Marshal(claimOutcome{Matched: false})
	return applyResult{Value: out}, nil
}

// taskMatchesTags inspects the serialized task record's "tags" field
// directly rather than decoding into pkg/types, so the FSM (and the
// raft log commands it replays) never has to import the domain
// package — the eligibility rule spec §4.B gives claim_task is a pure
// tag-subset check, decidable from the raw JSON alone.
func taskMatchesTags(taskData json.RawMessage, agentTags []string) bool {
	var record struct {
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal(taskData, &record); err != nil {
		return false
	}
	if len(record.Tags) == 0 {
		return true
	}
	have := make(map[string]bool, len(agentTags))
	for _, t := range agentTags {
		have[t] = true
	}
	for _, required := range record.Tags {
		if !have[required] {
			return false
		}
	}
	return true
}

type claimOutcome struct {
	Matched  bool            `json:"matched"`
	TaskID   string          `json:"task_id"`
	TaskData json.RawMessage `json:"task_data"`
}

func acquireLock(tx *bolt.Tx, p acquireLockPayload) (applyResult, error) {
	b := tx.Bucket(bucketKV)
	lockKey := []byte("lock:" + p.Path)

	if raw := b.Get(lockKey); raw != nil {
		var current lockRecord
		if err := json.Unmarshal(raw, &current); err != nil {
			return applyResult{}, err
		}
		if !current.expired(p.NowUnix) && current.HolderID != p.HolderID {
			out, err := json.Marshal(lockOutcome{Acquired: false, ExistingHolder: current.HolderID})
			if err != nil {
				return applyResult{}, err
			}
			return applyResult{Value: out}, nil
		}
	}

	record := lockRecord{
		HolderID:      p.HolderID,
		Intent:        p.Intent,
		LockID:        p.LockID,
		TTLSeconds:    p.TTLSeconds,
		AcquiredAtSec: p.NowUnix,
	}
	out, err := json.Marshal(record)
	if err != nil {
		return applyResult{}, err
	}
	if err := b.Put(lockKey, out); err != nil {
		return applyResult{}, err
	}
	result, err := json.Marshal(lockOutcome{Acquired: true})
	if err != nil {
		return applyResult{}, err
	}
	return applyResult{Value: result}, nil
}

type lockOutcome struct {
	Acquired       bool   `json:"acquired"`
	ExistingHolder string `json:"existing_holder"`
}

// fsmSnapshot captures the entire bbolt state as one JSON document,
// generalizing the teacher's WarrenSnapshot (which lists one slice per
// entity type) to this core's flatter bucket layout.
type fsmSnapshot struct {
	KV     map[string]json.RawMessage `json:"kv"`
	Hash   map[string]json.RawMessage `json:"hash"`
	Set    map[string]json.RawMessage `json:"set"`
	ZSet   map[string]json.RawMessage `json:"zset"`
	Stream map[string]map[string]json.RawMessage `json:"stream"`
}

func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	snap := fsmSnapshot{
		KV:     make(map[string]json.RawMessage),
		Hash:   make(map[string]json.RawMessage),
		Set:    make(map[string]json.RawMessage),
		ZSet:   make(map[string]json.RawMessage),
		Stream: make(map[string]map[string]json.RawMessage),
	}

	err := f.db.View(func(tx *bolt.Tx) error {
		if err := dumpBucket(tx.Bucket(bucketKV), snap.KV); err != nil {
			return err
		}
		if err := dumpBucket(tx.Bucket(bucketHash), snap.Hash); err != nil {
			return err
		}
		if err := dumpBucket(tx.Bucket(bucketSet), snap.Set); err != nil {
			return err
		}
		if err := dumpBucket(tx.Bucket(bucketZSet), snap.ZSet); err != nil {
			return err
		}
		return tx.Bucket(bucketStream).ForEach(func(k, _ []byte) error {
			sub := tx.Bucket(bucketStream).Bucket(k)
			if sub == nil {
				return nil
			}
			entries := make(map[string]json.RawMessage)
			if err := dumpBucket(sub, entries); err != nil {
				return err
			}
			snap.Stream[string(k)] = entries
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return &snapshot{data: snap}, nil
}

func dumpBucket(b *bolt.Bucket, into map[string]json.RawMessage) error {
	return b.ForEach(func(k, v []byte) error {
		if v == nil {
			return nil // nested bucket, handled separately (streams)
		}
		cp := make([]byte, len(v))
		copy(cp, v)
		into[string(k)] = cp
		return nil
	})
}

func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap fsmSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("decode raftkv snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketKV, bucketHash, bucketSet, bucketZSet, bucketStream} {
			if err := tx.DeleteBucket(b); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(b); err != nil {
				return err
			}
		}
		if err := loadBucket(tx.Bucket(bucketKV), snap.KV); err != nil {
			return err
		}
		if err := loadBucket(tx.Bucket(bucketHash), snap.Hash); err != nil {
			return err
		}
		if err := loadBucket(tx.Bucket(bucketSet), snap.Set); err != nil {
			return err
		}
		if err := loadBucket(tx.Bucket(bucketZSet), snap.ZSet); err != nil {
			return err
		}
		for streamKey, entries := range snap.Stream {
			sub, err := tx.Bucket(bucketStream).CreateBucketIfNotExists([]byte(streamKey))
			if err != nil {
				return err
			}
			if err := loadBucket(sub, entries); err != nil {
				return err
			}
		}
		return nil
	})
}

func loadBucket(b *bolt.Bucket, from map[string]json.RawMessage) error {
	for k, v := range from {
		if err := b.Put([]byte(k), v); err != nil {
			return err
		}
	}
	return nil
}

type snapshot struct {
	data fsmSnapshot
}

func (s *snapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.data); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
		corelog.WithComponent("raftkv").Error().Err(err).Msg("failed to persist snapshot")
	}
	return err
}

func (s *snapshot) Release() {}
