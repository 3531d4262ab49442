/*
Package autoscaler is the Auto-Scaler (spec §4.I): a background loop,
shaped like the teacher's reconciler loop (pkg/reconciler/reconciler.go
run: ticker + select, one cycle per tick, errors logged and the loop
keeps going), that sizes the worker pool to queue depth instead of
reconciling cluster nodes/containers to desired state.

Each cycle: P = ready+claimed tasks, W = live workers this scaler
owns, D = clamp(ceil(P/tasks_per_worker), min_workers, max_workers).
Scale up by spawning D-W workers; scale down by terminating at most
one idle worker per cycle once P is zero and the oldest idle worker
has exceeded the idle grace period. A worker currently holding a task
lease is never a scale-down candidate.
*/
package autoscaler
