/*
Package raftkv is the networked kv.Backend backend (spec §4.A/§6.1):
a single-writer replicated state machine built on hashicorp/raft, with
committed state persisted to a local bbolt database. Every mutating
Backend method is submitted as a Raft log entry and applied through
the FSM before returning, giving the linearizable "scripted atomicity"
ClaimTask/AcquireLock require across every concurrently-connected
agent process; every read method is served directly from the local
bbolt state (committed entries only), avoiding a round trip through
the log for the hot path pkg/queue/pkg/registry poll on.

Grounded on the teacher's pkg/manager (Bootstrap/Join, tuned
timeouts, Command{Op,Data} dispatch) and pkg/manager/fsm.go (Apply
switch, Snapshot/Restore via a single JSON blob), generalized from
Warren's node/service/container commands to the coordination core's
KV primitive set.
*/
package raftkv
