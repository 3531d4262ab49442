/*
Package localkv is the in-process fallback KV backend (spec §4.A,
§6.3): used when the networked raftkv backend cannot be opened at
startup; there is no switch to it mid-session. It implements the
exact same kv.Backend interface, persisting every primitive to a
directory of JSON/JSONL files guarded by O_CREATE|O_EXCL "mutator
lock" sibling files and written via temp-file-plus-rename for
atomicity, the way spec §4.A and §6.3 describe. Pub/sub is
process-local only — there's no cross-process fan-out without a real
broker, which is an accepted limitation of a single-host fallback.

This is deliberately a first-class backend, not a degraded stand-in:
pkg/queue, pkg/filelock, pkg/registry, and pkg/approval have no branch
that checks "are we in fallback mode". The package tests and the
scenario tests in test/integration run against this backend only;
pkg/kv/raftkv has its own tests.
*/
package localkv
