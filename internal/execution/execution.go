// Package execution runs user-authored code in one of two sandboxed runtimes
// and captures its output as displayable text.
//
// The script runtime (JavaScript) builds a fresh, disposable VM for every call.
// The interpreted runtime (Python dialect) is expensive to bring up, so it is a
// long-lived handle that is started lazily and serves one run at a time.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/michaelbrown/pairpad/internal/session"
)

var (
	// ErrUnsupportedLanguage is returned when no runtime serves a language.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrEngineClosed is returned by Execute after Close.
	ErrEngineClosed = errors.New("execution engine closed")
)

const truncatedSuffix = "\n... (output truncated)"

// stopGrace is how long Execute waits past a deadline for a runtime to
// report back.
var stopGrace = 2 * time.Second

// Result is the captured outcome of one run. Output holds either what the
// program printed or the text of the error that stopped it.
type Result struct {
	Output   string        `json:"output"`
	Failed   bool          `json:"failed"`
	Duration time.Duration `json:"-"`
}

// Runtime executes source text for one language.
type Runtime interface {
	Language() session.Language
	// Run executes source. Errors raised by the program are reported in the
	// Result; a non-nil error means the runtime itself could not run it.
	Run(ctx context.Context, source string) (Result, error)
	Close() error
}

// Limits bounds every run.
type Limits struct {
	// Timeout is the wall-clock budget of a run. Zero disables it.
	Timeout time.Duration
	// MaxOutput caps the captured output in bytes. Zero disables it.
	MaxOutput int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		Timeout:   5 * time.Second,
		MaxOutput: 64 * 1024,
	}
}

// Engine dispatches runs to the runtime registered for their language.
type Engine struct {
	mu       sync.RWMutex
	runtimes map[session.Language]Runtime
	limits   Limits
	log      *slog.Logger
	closed   bool
}

// NewEngine creates an Engine serving the given runtimes.
func NewEngine(limits Limits, log *slog.Logger, runtimes ...Runtime) *Engine {
	e := &Engine{
		runtimes: make(map[session.Language]Runtime, len(runtimes)),
		limits:   limits,
		log:      log.With("component", "execution"),
	}
	for _, rt := range runtimes {
		e.runtimes[rt.Language()] = rt
	}
	return e
}

// Languages returns the languages this engine can run, sorted.
func (e *Engine) Languages() []session.Language {
	e.mu.RLock()
	defer e.mu.RUnlock()
	langs := make([]session.Language, 0, len(e.runtimes))
	for l := range e.runtimes {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	return langs
}

// Execute runs source in the runtime for lang. Program failures, including
// running out of time, come back as a failed Result rather than an error.
func (e *Engine) Execute(ctx context.Context, lang session.Language, source string) (Result, error) {
	e.mu.RLock()
	rt, ok := e.runtimes[lang]
	closed := e.closed
	e.mu.RUnlock()

	if closed {
		return Result{}, ErrEngineClosed
	}
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}

	if ctx.Err() != nil {
		return Result{Output: "Error: execution cancelled", Failed: true}, nil
	}

	runCtx := ctx
	if e.limits.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.limits.Timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := e.run(runCtx, rt, source)

	// A run that finished cleanly keeps its result even if the deadline
	// passed on the way out.
	switch {
	case err == nil:
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res = Result{Output: fmt.Sprintf("Error: execution timed out after %s", e.limits.Timeout), Failed: true}
	case ctx.Err() != nil:
		res = Result{Output: "Error: execution cancelled", Failed: true}
	default:
		e.log.Error("run failed", "language", lang, "error", err)
		return Result{}, err
	}

	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}
	res.Output = truncate(res.Output, e.limits.MaxOutput)

	e.log.Debug("run finished",
		"language", lang,
		"failed", res.Failed,
		"duration", res.Duration,
		"bytes", len(res.Output),
	)
	return res, nil
}

// run waits for rt until ctx ends, then allows stopGrace for the runtime to
// wind down before giving up on it.
func (e *Engine) run(ctx context.Context, rt Runtime, source string) (Result, error) {
	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := rt.Run(ctx, source)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
	}

	timer := time.NewTimer(stopGrace)
	defer timer.Stop()
	select {
	case o := <-done:
		return o.res, o.err
	case <-timer.C:
		e.log.Warn("runtime did not stop after its deadline", "language", rt.Language())
		return Result{}, ctx.Err()
	}
}

// Close releases every runtime. Further Execute calls fail with ErrEngineClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	for _, rt := range e.runtimes {
		if err := rt.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncatedSuffix
}
