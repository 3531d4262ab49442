package localkv

import (
	"os"
	"path/filepath"

	"github.com/agentcoord/core/internal/corelog"
	"github.com/agentcoord/core/pkg/coreerr"
	"github.com/agentcoord/core/pkg/kv"
	"github.com/agentcoord/core/pkg/kv/internal/pubsub"
	"github.com/rs/zerolog"
)

var _ kv.Backend = (*Store)(nil)

// Store is the file-backed fallback kv.Backend implementation.
// It satisfies spec §4.A / §6.3: one JSON or JSONL file per logical
// record, a mutator lock sibling file per physical file, atomic
// temp-file-plus-rename writes.
type Store struct {
	root   string
	broker *pubsub.Broker
	logger zerolog.Logger
}

const (
	dirKV     = "kv"
	dirHash   = "hash"
	dirSet    = "set"
	dirZSet   = "zset"
	dirStream = "stream"
	dirLocks  = "locks"
)

// Open creates (if needed) the fallback directory tree rooted at dir
// and returns a ready-to-use Store. Returns coreerr-wrapped
// BackendUnavailable if dir is not writable.
func Open(dir string) (*Store, error) {
	for _, sub := range []string{dirKV, dirHash, dirSet, dirZSet, dirStream, dirLocks} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, coreerr.Wrap(coreerr.BackendUnavailable, "failed to create fallback directory "+sub, err)
		}
	}

	broker := pubsub.NewBroker()
	broker.Start()

	return &Store{
		root:   dir,
		broker: broker,
		logger: corelog.WithComponent("localkv"),
	}, nil
}

// Close stops the in-process pub/sub broker. File state is left in
// place for the next session to pick up.
func (s *Store) Close() error {
	s.broker.Stop()
	return nil
}

func (s *Store) path(dir, key string) string {
	return filepath.Join(s.root, dir, sanitize(key))
}

func (s *Store) lock(kind, key string) (func(), error) {
	l := newMutatorLock(filepath.Join(s.root, dirLocks), kindLockName(kind, key))
	return l.acquire()
}
