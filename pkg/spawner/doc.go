/*
Package spawner is the Worker Spawner (spec §4.H): starts, tracks, and
terminates worker processes in one of three modes chosen per spawn —
local subprocess, container (containerd), or cloud (a managed/embedded
environment stand-in) — and reclaims any tasks still leased by a
worker once it's gone.

Workers are opaque to this package: spawner only launches the
configured command/image/environment and tracks a WorkerHandle; it
never inspects what the worker does with a claimed task. Termination
is always graceful-first — send a polite stop signal, wait up to a
grace period, then force — the same two-phase shutdown the teacher's
containerd runtime uses for container tasks (pkg/runtime/containerd.go
StopContainer: SIGTERM, wait, SIGKILL on timeout), generalized here to
local subprocess mode too via os.Process.Signal/Kill.
*/
package spawner
