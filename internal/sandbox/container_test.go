package sandbox

import (
	"context"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dockerOrSkip gates tests that need a running Docker daemon and a pulled
// python image. Set PAIRPAD_DOCKER_TESTS=1 to run them.
func dockerOrSkip(t *testing.T) string {
	t.Helper()
	if os.Getenv("PAIRPAD_DOCKER_TESTS") == "" {
		t.Skip("PAIRPAD_DOCKER_TESTS not set")
	}
	bin, err := exec.LookPath("docker")
	if err != nil {
		t.Skipf("docker not found: %v", err)
	}
	return bin
}

func TestStartContainerRejectsImage(t *testing.T) {
	_, err := StartContainer(context.Background(), "docker", DefaultPolicy(), "alpine:latest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in allowlist")
}

func TestContainerExec(t *testing.T) {
	bin := dockerOrSkip(t)
	ctx := context.Background()

	c, err := StartContainer(ctx, bin, DefaultPolicy(), "python:3.12-slim")
	require.NoError(t, err)
	t.Cleanup(func() { c.Stop(context.Background()) })

	res, err := c.Exec(ctx, ExecOpts{Command: []string{"python3", "-"}, Stdin: "print('hi')"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hi\n", res.Stdout)

	res, err = c.Exec(ctx, ExecOpts{Command: []string{"python3", "-"}, Stdin: "raise ValueError('boom')"})
	require.NoError(t, err)
	assert.NotEqual(t, 0, res.ExitCode)
	assert.Contains(t, res.Stderr, "ValueError: boom")
}
