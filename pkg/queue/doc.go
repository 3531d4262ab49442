/*
Package queue is the Task Queue (spec §4.E), the central component of
the coordination core: priority ordering, dependency-gated readiness,
atomic claim, lifecycle transitions, and retry/escalation scheduling.

Storage follows spec §6.1 with one deliberate deviation, recorded in
DESIGN.md: task records live in a single shared hash ("tasks:data",
field = task id) rather than N individual "task:{id}" keys, because
kv.Backend.ClaimTask needs one fixed lock pair (over the pending
sorted set and the data hash) to scan candidates and remove the winner
atomically — per-id keys would mean per-id locks, breaking that
atomicity. Readiness gating is lazy: a task only enters "tasks:pending"
once every dependency already shows status=completed, so ClaimTask's
picker is a pure tag-match with no recursive dependency lookups and no
risk of self-deadlock, the same "keep the scripted op small and pure"
shape the teacher's pkg/scheduler brings to its own placement decision
(score candidates, pick one, mutate once).

Priority/FIFO ordering uses score = -priority, relying on the backend
zset's own insertion-order tiebreak (every kv.Backend zset entry
carries a monotonic Seq used to break score ties) rather than packing
priority and a timestamp into one float64 the way spec §6.1's literal
formula does — doing so across a useful priority range risks losing
float64 precision in the timestamp's low bits, corrupting FIFO order
for tasks created close together. The Seq tiebreak gives the same
external behavior (same priority sorts FIFO by entry order) without
that risk, and behaves identically on both the file-backed and
Raft-backed implementations since both zset encodings carry Seq.
*/
package queue
