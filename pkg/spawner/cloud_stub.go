//go:build !darwin

package spawner

import (
	"context"
	"fmt"
)

// spawnCloud is unavailable outside darwin hosts: the cloud-mode
// stand-in runs workers inside a Lima VM, and Lima's instance
// management package only builds for macOS (see cloud.go).
func spawnCloud(ctx context.Context, req SpawnRequest) (*cloudInstance, string, error) {
	return nil, "", fmt.Errorf("spawner: cloud mode is only available on darwin hosts")
}

type cloudInstance struct{}

func (c *cloudInstance) alive() bool            { return false }
func (c *cloudInstance) stop(graceSeconds int) error { return nil }
