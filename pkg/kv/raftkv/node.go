package raftkv

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/agentcoord/core/internal/corelog"
	"github.com/agentcoord/core/pkg/kv"
	"github.com/agentcoord/core/pkg/kv/internal/pubsub"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

var _ kv.Backend = (*RaftKV)(nil)

// Config configures a single-node raftkv backend. Multi-manager
// clustering (AddVoter/RemoveServer) is out of scope: the core treats
// the networked backend as one durable, linearizable store process,
// the same role a standalone Redis instance plays in spec §6.1 — HA
// across multiple store processes is left to the deployer (e.g. running
// the store under a process supervisor with the bbolt/raft log
// directory on durable storage), not solved inside the core itself.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// RaftKV is the networked kv.Backend: every mutating call is applied
// through Raft before returning, every read call is served directly
// from the local bbolt-backed fsm.
type RaftKV struct {
	cfg    Config
	raft   *raft.Raft
	fsm    *fsm
	db     *bolt.DB
	broker *pubsub.Broker
	logger zerolog.Logger
}

// Open creates the bbolt database and bootstraps a single-node Raft
// cluster rooted at cfg.DataDir, grounded on the teacher's
// Manager.Bootstrap (pkg/manager/manager.go) with the same tuned
// timeouts for fast local failover.
func Open(cfg Config) (*RaftKV, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create raftkv data directory: %w", err)
	}

	db, err := bolt.Open(filepath.Join(cfg.DataDir, "state.db"), 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt state db: %w", err)
	}

	f, err := newFSM(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize fsm: %w", err)
	}

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.NodeID)
	raftConfig.HeartbeatTimeout = 500 * time.Millisecond
	raftConfig.ElectionTimeout = 500 * time.Millisecond
	raftConfig.CommitTimeout = 50 * time.Millisecond
	raftConfig.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to resolve raftkv bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create raft transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create raft stable store: %w", err)
	}

	r, err := raft.NewRaft(raftConfig, f, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create raft node: %w", err)
	}

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{ID: raftConfig.LocalID, Address: transport.LocalAddr()},
		},
	}
	if fut := r.BootstrapCluster(configuration); fut.Error() != nil {
		// Already bootstrapped from a previous run on this data
		// directory; that's expected on restart, not a failure.
		if fut.Error() != raft.ErrCantBootstrap {
			db.Close()
			return nil, fmt.Errorf("failed to bootstrap raft cluster: %w", fut.Error())
		}
	}

	broker := pubsub.NewBroker()
	broker.Start()

	return &RaftKV{
		cfg:    cfg,
		raft:   r,
		fsm:    f,
		db:     db,
		broker: broker,
		logger: corelog.WithComponent("raftkv"),
	}, nil
}

// Close shuts down Raft and the underlying bbolt database.
func (n *RaftKV) Close() error {
	n.broker.Stop()
	if fut := n.raft.Shutdown(); fut.Error() != nil {
		n.logger.Warn().Err(fut.Error()).Msg("raft shutdown returned an error")
	}
	return n.db.Close()
}

// WaitForLeader blocks until this node observes a cluster leader (itself,
// in the single-node case) or ctx is canceled.
func (n *RaftKV) WaitForLeader(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if n.raft.Leader() != "" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (n *RaftKV) apply(cmd command) (applyResult, error) {
	data, err := cmd.marshal()
	if err != nil {
		return applyResult{}, err
	}
	fut := n.raft.Apply(data, 5*time.Second)
	if err := fut.Error(); err != nil {
		return applyResult{}, fmt.Errorf("raft apply failed: %w", err)
	}
	resp, ok := fut.Response().(applyResult)
	if !ok {
		return applyResult{}, fmt.Errorf("unexpected raft apply response type %T", fut.Response())
	}
	if resp.Err != "" {
		return applyResult{}, fmt.Errorf("%s", resp.Err)
	}
	return resp, nil
}
