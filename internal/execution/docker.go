package execution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/michaelbrown/pairpad/internal/sandbox"
)

// DockerBackend runs CPython inside one long-lived sandbox container.
// The container is started by Start and every run is a `docker exec`.
type DockerBackend struct {
	binary    string
	image     string
	policy    sandbox.Policy
	container *sandbox.Container
}

// NewDockerBackend returns an unstarted backend for image.
func NewDockerBackend(binary, image string, policy sandbox.Policy) *DockerBackend {
	return &DockerBackend{binary: binary, image: image, policy: policy}
}

func (b *DockerBackend) Start(ctx context.Context) error {
	c, err := sandbox.StartContainer(ctx, b.binary, b.policy, b.image)
	if err != nil {
		return err
	}
	b.container = c
	return nil
}

func (b *DockerBackend) Run(ctx context.Context, source string, stdout io.Writer) error {
	if b.container == nil {
		return errors.New("docker backend not started")
	}

	res, err := b.container.Exec(ctx, sandbox.ExecOpts{
		Command: []string{"python3", "-"},
		Stdin:   source,
		Env:     []string{"PYTHONDONTWRITEBYTECODE=1"},
	})
	if err != nil {
		return err
	}

	if res.ExitCode != 0 {
		text := strings.TrimRight(res.Stderr, "\n")
		if text == "" {
			text = fmt.Sprintf("exit code: %d", res.ExitCode)
		}
		return &RaisedError{Text: text}
	}

	_, err = io.WriteString(stdout, res.Stdout)
	return err
}

func (b *DockerBackend) Close() error {
	if b.container == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := b.container.Stop(ctx)
	b.container = nil
	return err
}
