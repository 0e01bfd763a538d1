package execution

import (
	"fmt"
	"log/slog"

	"github.com/michaelbrown/pairpad/internal/config"
	"github.com/michaelbrown/pairpad/internal/sandbox"
	"github.com/michaelbrown/pairpad/internal/session"
)

// FromConfig builds an Engine serving both languages: JavaScript through the
// script runtime and Python through the configured interpreter backend.
func FromConfig(cfg config.RuntimeConfig, log *slog.Logger) (*Engine, error) {
	var backend Backend
	switch cfg.Interpreter {
	case config.InterpreterStarlark, "":
		backend = NewStarlarkBackend()
	case config.InterpreterDocker:
		policy := sandbox.DefaultPolicy()
		policy.MaxMemory = cfg.Docker.Memory
		policy.Network = cfg.Docker.Network
		// The engine deadline is the real limit; this only stops a stuck exec.
		if cfg.Timeout > 0 {
			policy.MaxTimeout = 2 * cfg.Timeout
		}
		if !policy.IsImageAllowed(cfg.Docker.Image) {
			return nil, fmt.Errorf("runtime.docker.image %q not in allowlist", cfg.Docker.Image)
		}
		backend = NewDockerBackend(cfg.Docker.Binary, cfg.Docker.Image, policy)
	default:
		return nil, fmt.Errorf("unknown interpreter backend %q", cfg.Interpreter)
	}

	limits := Limits{Timeout: cfg.Timeout, MaxOutput: cfg.MaxOutput}
	return NewEngine(limits, log,
		NewScriptRuntime(),
		NewInterpreter(session.LanguagePython, backend, log),
	), nil
}
