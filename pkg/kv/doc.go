/*
Package kv defines the narrow set of atomic primitives the rest of
the coordination core is built on: conditional set, counters, hash
ops, sorted-set ops, append-only streams, pub/sub, and two scripted
multi-op operations (ClaimTask, AcquireLock) that must execute as a
single atomic unit.

Two implementations satisfy Backend behind the same interface:

  - pkg/kv/raftkv — the networked backend. A single-node Raft
    cluster over bbolt, the way
    the teacher replicates cluster state. Every Backend method that
    mutates state is a Raft log command; Apply() on the FSM runs
    commands one at a time, which is what gives ClaimTask and
    AcquireLock their atomicity — no embedded Lua is needed because
    Raft already serializes command application.

  - pkg/kv/localkv — the in-process fallback backend. Used when the
    networked backend cannot be opened at startup; a backend that
    becomes unreachable later is not swapped out. Persists to a directory of JSON/JSONL
    files guarded by OS-level file locks, per spec §4.A/§6.3. Not
    built for throughput — built so a single host behaves identically
    to the networked backend for every core operation (spec
    invariant 10, "fallback parity").

Callers above this package never branch on which backend they hold;
the process entrypoint (cmd/agentcoordd) selects one and passes it to
pkg/coordination.Open, and the same queue,
registry, lock-manager and approval code runs unmodified against
either.
*/
package kv
