/*
Package audit is the append-only audit stream every other core
component writes to (spec §4.D): task claims, completions, failures,
escalations, approval decisions, denied lock attempts, and hung-agent
detections. Entries are appended to a single kv.Backend stream key and
read back in order, the same append-then-tail pattern the teacher uses
for its cluster event log (pkg/events), generalized from an in-memory
ring buffer to a durable backend-agnostic stream.
*/
package audit
