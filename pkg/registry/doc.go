/*
Package registry is the Agent Registry (spec §4.C): register,
heartbeat, list, detect-hung, and deregister operations over agent
identities stored in the KV. Hung status is never trusted verbatim
from the stored Status field; every read recomputes it from
LastHeartbeat age against a configurable threshold, overriding a
stale "active" value the way types.AgentStatus's own doc comment
describes. This is the same check the teacher's reconciler runs over
cluster nodes — "now - LastHeartbeat > 30s" marks a node down
(pkg/reconciler/reconciler.go) — adapted here from a periodic sweep
over nodes to an on-demand recompute over agents, plus DetectHung
for callers that do want the periodic-sweep form.
*/
package registry
