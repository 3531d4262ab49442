/*
Package coordination is the Coordination Client façade (spec §4.J): a
scoped session that registers an agent, starts its heartbeat loop, and
exposes handles to the queue, lock manager, registry, approval
workflow, board and audit log over one shared backend. Entering the scope registers and starts heartbeating;
leaving it — via Close, on every exit path including a panic recovered
by the caller's own defer — stops the heartbeat, releases every lock
the session acquired through it, and deregisters the agent.

The heartbeat loop is the teacher's worker heartbeat loop
(pkg/worker/worker.go heartbeatLoop/sendHeartbeat: a ticker plus a
stop channel, logging and continuing on transient send errors rather
than aborting) pointed at pkg/registry.Heartbeat instead of a gRPC
call to a manager.
*/
package coordination
