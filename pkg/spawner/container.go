package spawner

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
)

// containerNamespace is the containerd namespace worker containers
// run under, mirroring the teacher's per-product namespace
// (pkg/runtime/containerd.go DefaultNamespace).
const containerNamespace = "agentcoord"

const defaultContainerdSocket = "/run/containerd/containerd.sock"

// containerProc is the terminator backing ModeContainer, adapted from
// the teacher's ContainerdRuntime (pkg/runtime/containerd.go): same
// client, same graceful-SIGTERM/wait/SIGKILL shutdown in stop, narrowed
// to exactly what one spawned worker container needs.
type containerProc struct {
	client *containerd.Client
	task   containerd.Task
	id     string
}

func spawnContainer(ctx context.Context, socketPath string, req SpawnRequest) (*containerProc, string, error) {
	if req.Image == "" {
		return nil, "", fmt.Errorf("spawner: container mode requires Image")
	}
	if socketPath == "" {
		socketPath = defaultContainerdSocket
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, "", fmt.Errorf("spawner: connect to containerd: %w", err)
	}

	ctx = namespaces.WithNamespace(ctx, containerNamespace)

	image, err := client.Pull(ctx, req.Image, containerd.WithPullUnpack)
	if err != nil {
		client.Close()
		return nil, "", fmt.Errorf("spawner: pull image %s: %w", req.Image, err)
	}

	env := make([]string, 0, len(req.Env))
	for k, v := range req.Env {
		env = append(env, k+"="+v)
	}

	id := "worker-" + req.Name + "-" + newSuffix()
	container, err := client.NewContainer(
		ctx,
		id,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(id+"-snapshot", image),
		containerd.WithNewSpec(oci.WithImageConfig(image), oci.WithEnv(env), oci.WithProcessArgs(append([]string{req.Command}, req.Args...)...)),
	)
	if err != nil {
		client.Close()
		return nil, "", fmt.Errorf("spawner: create container: %w", err)
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		client.Close()
		return nil, "", fmt.Errorf("spawner: create task: %w", err)
	}
	if err := task.Start(ctx); err != nil {
		client.Close()
		return nil, "", fmt.Errorf("spawner: start task: %w", err)
	}

	return &containerProc{client: client, task: task, id: container.ID()}, container.ID(), nil
}

func (p *containerProc) alive() bool {
	ctx := namespaces.WithNamespace(context.Background(), containerNamespace)
	status, err := p.task.Status(ctx)
	if err != nil {
		return false
	}
	return status.Status == containerd.Running
}

// stop mirrors the teacher's StopContainer: SIGTERM, wait up to
// graceSeconds, SIGKILL on timeout, then delete the task.
func (p *containerProc) stop(graceSeconds int) error {
	ctx := namespaces.WithNamespace(context.Background(), containerNamespace)
	stopCtx, cancel := context.WithTimeout(ctx, time.Duration(graceSeconds)*time.Second)
	defer cancel()

	if err := p.task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("spawner: signal container %s: %w", p.id, err)
	}

	statusC, err := p.task.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("spawner: wait on container %s: %w", p.id, err)
	}

	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := p.task.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("spawner: force kill container %s: %w", p.id, err)
		}
	}

	if _, err := p.task.Delete(ctx); err != nil {
		return fmt.Errorf("spawner: delete task %s: %w", p.id, err)
	}
	return p.client.Close()
}
