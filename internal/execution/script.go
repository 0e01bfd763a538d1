package execution

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/michaelbrown/pairpad/internal/session"
)

const maxCallStackSize = 1024

// ScriptRuntime runs JavaScript in a throwaway goja VM. Nothing survives a
// call: every Run gets its own VM with no host bindings other than a console
// that writes to the run's log.
type ScriptRuntime struct{}

// NewScriptRuntime returns the JavaScript runtime.
func NewScriptRuntime() *ScriptRuntime {
	return &ScriptRuntime{}
}

func (r *ScriptRuntime) Language() session.Language {
	return session.LanguageJavaScript
}

// Run executes source in a new VM. If the context ends before the program and
// its output are done, the VM is interrupted and the context's error is
// returned.
func (r *ScriptRuntime) Run(ctx context.Context, source string) (Result, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)

	console := &consoleLog{f: newFormatter(ctx, vm)}
	if err := console.install(vm); err != nil {
		return Result{}, err
	}

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(context.Cause(ctx))
	})
	defer stop()

	start := time.Now()
	value, err := vm.RunString(source)
	if err == nil && value != nil && !goja.IsUndefined(value) {
		var text string
		text, err = console.f.protect(func() string { return console.f.value(value) })
		if err == nil {
			console.entries = append(console.entries, text)
		}
	}
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil && (err != nil || console.f.interrupted) {
		return Result{Duration: elapsed}, ctxErr
	}
	if err != nil {
		return Result{Output: thrownText(console.f, err), Failed: true, Duration: elapsed}, nil
	}
	return Result{Output: strings.Join(console.entries, "\n"), Duration: elapsed}, nil
}

func (r *ScriptRuntime) Close() error { return nil }

// consoleLog replaces the console object of a VM with one that records
// every call in order.
type consoleLog struct {
	f       *formatter
	entries []string
}

func (c *consoleLog) install(vm *goja.Runtime) error {
	obj := vm.NewObject()
	channels := map[string]string{
		"log":   "",
		"info":  "",
		"debug": "",
		"warn":  "WARN: ",
		"error": "ERROR: ",
	}
	for name, prefix := range channels {
		if err := obj.Set(name, c.writer(prefix)); err != nil {
			return err
		}
	}
	return vm.Set("console", obj)
}

func (c *consoleLog) writer(prefix string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = c.f.value(arg)
		}
		if !c.f.stopped() {
			c.entries = append(c.entries, prefix+strings.Join(parts, " "))
		}
		return goja.Undefined()
	}
}

// thrownText renders whatever stopped the program with its own toString,
// the way an uncaught error prints.
func thrownText(f *formatter, err error) string {
	var ex *goja.Exception
	if !errors.As(err, &ex) {
		return err.Error()
	}
	text, err := f.protect(func() string { return ex.Value().String() })
	if err != nil {
		return "Uncaught exception"
	}
	return text
}
