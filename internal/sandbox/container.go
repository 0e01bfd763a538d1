package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Label marks every container started by pairpad so strays can be found.
const Label = "pairpad.sandbox=1"

// Container is a detached, idle container that commands are exec'd into.
// Starting one is slow; running a command in it is cheap.
type Container struct {
	binary string
	id     string
	policy Policy
}

// StartContainer launches image in the background under policy.
func StartContainer(ctx context.Context, binary string, policy Policy, image string) (*Container, error) {
	if !policy.IsImageAllowed(image) {
		return nil, fmt.Errorf("image %q not in allowlist", image)
	}
	if binary == "" {
		binary = "docker"
	}

	args := []string{"run", "-d", "--rm", "--label", Label}
	args = append(args, policy.runArgs()...)
	args = append(args, image, "sleep", "infinity")

	cmd := exec.CommandContext(ctx, binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("starting container: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	id := strings.TrimSpace(string(out))
	if id == "" {
		return nil, errors.New("starting container: docker returned no container id")
	}

	return &Container{binary: binary, id: id, policy: policy}, nil
}

// ID returns the Docker container id.
func (c *Container) ID() string { return c.id }

// Exec runs a command inside the container. A non-zero exit status is
// reported in the result, not as an error.
func (c *Container) Exec(ctx context.Context, opts ExecOpts) (*ExecResult, error) {
	if len(opts.Command) == 0 {
		return nil, errors.New("exec: empty command")
	}

	if c.policy.MaxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.policy.MaxTimeout)
		defer cancel()
	}

	args := []string{"exec", "-i"}
	if opts.Workdir != "" {
		args = append(args, "-w", opts.Workdir)
	}
	for _, kv := range opts.Env {
		args = append(args, "--env", kv)
	}
	args = append(args, c.id)
	args = append(args, opts.Command...)

	cmd := exec.CommandContext(ctx, c.binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Stdin = strings.NewReader(opts.Stdin)

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || ctx.Err() != nil {
			return nil, fmt.Errorf("running docker exec: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, nil
}

// Stop force-removes the container.
func (c *Container) Stop(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, c.binary, "rm", "-f", c.id)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("removing container %s: %w: %s", c.id, err, strings.TrimSpace(string(out)))
	}
	return nil
}
