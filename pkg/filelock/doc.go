/*
Package filelock is the File Lock Manager (spec §4.C): exclusive,
TTL-bounded locks over canonical file paths, so two agents never edit
the same file concurrently. Acquisition is the one operation that
needs atomicity (check-no-live-lock-then-set as a single step), which
the kv.Backend.AcquireLock scripted op already provides; extend and
release are simple compare-then-write ops that only ever race against
their own lock_id's holder, so they use plain Get/Set against the same
lock:{canonical_path} record AcquireLock wrote.

ScopedLock follows the teacher's resource-acquisition style — acquire,
return a release func, caller defers it — generalized from the worker
package's container/runtime handle cleanup (pkg/worker) to a lock
whose release is guaranteed to run on every exit path, including a
panic unwinding through the caller.
*/
package filelock
