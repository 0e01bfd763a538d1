package sandbox

import (
	"slices"
	"strconv"
	"time"
)

// Policy defines resource limits for sandbox containers.
type Policy struct {
	MaxMemory  string        // Docker memory limit (e.g. "256m")
	MaxTimeout time.Duration // Longest a single exec may run
	PidsLimit  int           // Max processes inside the container, 0 for no limit
	Network    bool          // Whether network access is allowed
	Images     []string      // Allowed Docker images
}

// DefaultPolicy returns safe defaults for running untrusted code.
func DefaultPolicy() Policy {
	return Policy{
		MaxMemory:  "256m",
		MaxTimeout: 30 * time.Second,
		PidsLimit:  64,
		Network:    false,
		Images: []string{
			"python:3.12-slim",
			"python:3.13-slim",
		},
	}
}

// IsImageAllowed checks if an image is on the allowlist.
func (p Policy) IsImageAllowed(image string) bool {
	return slices.Contains(p.Images, image)
}

// runArgs builds the `docker run` flags that enforce the policy.
func (p Policy) runArgs() []string {
	args := []string{"--memory", p.MaxMemory}
	if p.PidsLimit > 0 {
		args = append(args, "--pids-limit", strconv.Itoa(p.PidsLimit))
	}
	if !p.Network {
		args = append(args, "--network=none")
	}
	return args
}
