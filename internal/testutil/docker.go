package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/jackzampolin/promptlab/internal/defra"
)

// TestLabel marks DefraDB containers started by a test. Its value is the
// test name, so each test only removes its own containers.
const TestLabel = defra.Label + ".test"

// RequireDocker skips t when no Docker daemon answers. Otherwise it removes
// any container left by an earlier interrupted run of the same test, and
// again when t finishes.
func RequireDocker(t testing.TB) {
	t.Helper()

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		t.Skipf("docker client unavailable: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		t.Skipf("docker is not running: %v", err)
	}

	removeTestContainers(t, cli)
	t.Cleanup(func() {
		removeTestContainers(t, cli)
		cli.Close()
	})
}

// DefraConfig returns a DockerConfig for a container owned by t: a unique
// name under the test's data directory, hostPort, and the test label.
func DefraConfig(t testing.TB, dataPath, hostPort string) defra.DockerConfig {
	t.Helper()
	return defra.DockerConfig{
		ContainerName: fmt.Sprintf("%s-%s-%s", defra.Label, containerSafe(t.Name()), randString(3)),
		DataPath:      dataPath,
		HostPort:      hostPort,
		Labels:        map[string]string{TestLabel: t.Name()},
	}
}

// removeTestContainers force-removes the DefraDB containers labelled with
// this test's name.
func removeTestContainers(t testing.TB, cli *client.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	args := filters.NewArgs(
		filters.Arg("label", defra.Label),
		filters.Arg("label", TestLabel+"="+t.Name()),
	)
	containers, err := cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		t.Logf("list test containers: %v", err)
		return
	}
	for _, c := range containers {
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			t.Logf("remove container %s: %v", c.ID[:12], err)
			continue
		}
		t.Logf("removed test container %s", strings.TrimPrefix(firstName(c.Names), "/"))
	}
}

func firstName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func randString(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// containerSafe lower-cases name and keeps [a-z0-9-], capped at 30 bytes.
func containerSafe(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '/' || r == '_' || r == '-':
			b.WriteByte('-')
		}
		if b.Len() == 30 {
			break
		}
	}
	return b.String()
}
