// Package sandbox manages long-lived Docker containers that run untrusted code.
package sandbox

import "context"

// ExecOpts describes a command to run inside a sandbox.
type ExecOpts struct {
	Command []string
	Stdin   string
	Workdir string
	Env     []string // KEY=VALUE pairs
}

// ExecResult is the output of a sandboxed execution.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Sandbox runs commands in an isolated environment.
type Sandbox interface {
	Exec(ctx context.Context, opts ExecOpts) (*ExecResult, error)
}
