//go:build darwin

package spawner

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/lima-vm/lima/pkg/instance"
	"github.com/lima-vm/lima/pkg/limayaml"
	"github.com/lima-vm/lima/pkg/store"
)

// cloudInstance is the terminator backing ModeCloud: a dedicated Lima
// VM per worker, standing in for a managed cloud compute instance
// (spec §4.H cloud mode: "e.g., container-on-platform"). Adapted from
// the teacher's shared-VM LimaManager (pkg/embedded/lima.go); here
// each spawned worker gets its own short-lived instance instead of
// one long-lived VM shared by the whole process.
type cloudInstance struct {
	name string
	inst *store.Instance
	cmd  *exec.Cmd
}

func spawnCloud(ctx context.Context, req SpawnRequest) (*cloudInstance, string, error) {
	if req.Command == "" {
		return nil, "", fmt.Errorf("spawner: cloud mode requires Command")
	}

	name := "worker-" + req.Name + "-" + newSuffix()
	arch := limayaml.X8664
	cpus := 1
	memory := "1GiB"
	disk := "5GiB"

	cfg := limayaml.LimaYAML{
		Arch:   &arch,
		CPUs:   &cpus,
		Memory: &memory,
		Disk:   &disk,
	}

	configYAML, err := limayaml.Marshal(&cfg, false)
	if err != nil {
		return nil, "", fmt.Errorf("spawner: marshal lima config: %w", err)
	}

	if _, err := instance.Create(ctx, name, configYAML, false); err != nil {
		return nil, "", fmt.Errorf("spawner: create cloud instance: %w", err)
	}

	inst, err := store.Inspect(name)
	if err != nil {
		return nil, "", fmt.Errorf("spawner: inspect cloud instance: %w", err)
	}
	if err := instance.Start(ctx, inst, "", false); err != nil {
		return nil, "", fmt.Errorf("spawner: start cloud instance: %w", err)
	}

	args := append([]string{"shell", name, req.Command}, req.Args...)
	cmd := exec.Command("limactl", args...)
	if err := cmd.Start(); err != nil {
		return nil, "", fmt.Errorf("spawner: launch worker inside cloud instance: %w", err)
	}
	go func() { _ = cmd.Wait() }()

	return &cloudInstance{name: name, inst: inst, cmd: cmd}, name, nil
}

func (c *cloudInstance) alive() bool {
	inst, err := store.Inspect(c.name)
	if err != nil {
		return false
	}
	return inst.Status == store.StatusRunning
}

// stop mirrors LimaManager.Stop: graceful shutdown first, forced
// stop if that fails, bounded by graceSeconds.
func (c *cloudInstance) stop(graceSeconds int) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(graceSeconds)*time.Second)
	defer cancel()

	if err := instance.StopGracefully(ctx, c.inst, false); err != nil {
		instance.StopForcibly(c.inst)
	}
	return nil
}
