package execution

import (
	"context"
	"errors"
	"io"

	starlarkjson "go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

const scriptFilename = "main.py"

// StarlarkBackend interprets a Python dialect in-process. The predeclared
// environment is built once at Start and shared by every run; each run gets
// its own thread and globals.
type StarlarkBackend struct {
	predeclared starlark.StringDict
	options     *syntax.FileOptions
}

// NewStarlarkBackend returns an unstarted backend.
func NewStarlarkBackend() *StarlarkBackend {
	return &StarlarkBackend{}
}

func (b *StarlarkBackend) Start(ctx context.Context) error {
	b.options = &syntax.FileOptions{
		Set:             true,
		While:           true,
		TopLevelControl: true,
		GlobalReassign:  true,
		Recursion:       true,
	}
	b.predeclared = starlark.StringDict{
		"math":   starlarkmath.Module,
		"json":   starlarkjson.Module,
		"time":   starlarktime.Module,
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
	return ctx.Err()
}

func (b *StarlarkBackend) Run(ctx context.Context, source string, stdout io.Writer) error {
	if b.predeclared == nil {
		return errors.New("starlark backend not started")
	}

	thread := &starlark.Thread{
		Name: "run",
		Print: func(_ *starlark.Thread, msg string) {
			io.WriteString(stdout, msg+"\n")
		},
	}
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
	defer stop()

	_, err := starlark.ExecFileOptions(b.options, thread, scriptFilename, source, b.predeclared)
	if err == nil {
		return nil
	}

	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return &RaisedError{Text: evalErr.Backtrace()}
	}
	// Syntax and resolve errors are the program's fault too.
	return &RaisedError{Text: err.Error()}
}

func (b *StarlarkBackend) Close() error {
	b.predeclared = nil
	b.options = nil
	return nil
}
