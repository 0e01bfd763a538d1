package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/michaelbrown/pairpad/internal/session"
)

// Backend is a heavyweight interpreter that an Interpreter starts once and
// then reuses for many runs.
type Backend interface {
	// Start brings the interpreter up. It is called lazily before the first
	// run and again only after a forced teardown.
	Start(ctx context.Context) error
	// Run executes source as a full program, writing printed output to stdout.
	// Exceptions raised by the program are returned as *RaisedError.
	Run(ctx context.Context, source string, stdout io.Writer) error
	// Close tears the interpreter down.
	Close() error
}

// RaisedError carries the text of an exception raised by user code.
type RaisedError struct {
	Text string
}

func (e *RaisedError) Error() string { return e.Text }

type job struct {
	ctx    context.Context
	source string
	done   chan jobResult
}

type jobResult struct {
	result Result
	err    error
}

// Interpreter owns one shared Backend. Runs are handed to a single worker
// goroutine over a channel, so a run's output buffer is created, filled and
// read before the next run starts.
type Interpreter struct {
	lang    session.Language
	backend Backend
	log     *slog.Logger

	jobs      chan job
	quit      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup

	starts atomic.Int32
	ready  bool // owned by the worker
}

// NewInterpreter wraps backend. Nothing is started until the first Run.
func NewInterpreter(lang session.Language, backend Backend, log *slog.Logger) *Interpreter {
	return &Interpreter{
		lang:    lang,
		backend: backend,
		log:     log.With("component", "interpreter", "language", lang),
		jobs:    make(chan job),
		quit:    make(chan struct{}),
	}
}

func (in *Interpreter) Language() session.Language {
	return in.lang
}

// Starts reports how many times the backend has been brought up.
func (in *Interpreter) Starts() int {
	return int(in.starts.Load())
}

func (in *Interpreter) Run(ctx context.Context, source string) (Result, error) {
	in.startOnce.Do(func() {
		in.wg.Add(1)
		go in.loop()
	})

	j := job{ctx: ctx, source: source, done: make(chan jobResult, 1)}
	select {
	case in.jobs <- j:
	case <-in.quit:
		return Result{}, ErrEngineClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	r := <-j.done
	return r.result, r.err
}

// Close stops the worker and tears the backend down.
func (in *Interpreter) Close() error {
	// Claim the start slot so no worker can be launched after this point.
	in.startOnce.Do(func() {})
	in.closeOnce.Do(func() {
		close(in.quit)
	})
	in.wg.Wait()
	if in.ready {
		in.ready = false
		return in.backend.Close()
	}
	return nil
}

func (in *Interpreter) loop() {
	defer in.wg.Done()
	for {
		select {
		case <-in.quit:
			return
		case j := <-in.jobs:
			j.done <- in.process(j)
		}
	}
}

func (in *Interpreter) process(j job) jobResult {
	if err := j.ctx.Err(); err != nil {
		return jobResult{err: err}
	}

	if !in.ready {
		if err := in.backend.Start(j.ctx); err != nil {
			return jobResult{err: fmt.Errorf("starting %s interpreter: %w", in.lang, err)}
		}
		in.ready = true
		in.starts.Add(1)
		in.log.Info("interpreter started")
	}

	var stdout bytes.Buffer
	start := time.Now()
	err := in.backend.Run(j.ctx, j.source, &stdout)
	elapsed := time.Since(start)

	if ctxErr := j.ctx.Err(); ctxErr != nil && err != nil {
		// The program may still be running inside the backend.
		in.teardown("run did not finish: " + ctxErr.Error())
		return jobResult{result: Result{Duration: elapsed}, err: ctxErr}
	}

	var raised *RaisedError
	if errors.As(err, &raised) {
		return jobResult{result: Result{Output: raised.Text, Failed: true, Duration: elapsed}}
	}
	if err != nil {
		in.teardown(err.Error())
		return jobResult{err: fmt.Errorf("running %s: %w", in.lang, err)}
	}

	return jobResult{result: Result{
		Output:   strings.TrimSuffix(stdout.String(), "\n"),
		Duration: elapsed,
	}}
}

func (in *Interpreter) teardown(reason string) {
	in.ready = false
	if err := in.backend.Close(); err != nil {
		in.log.Warn("interpreter teardown failed", "reason", reason, "error", err)
		return
	}
	in.log.Warn("interpreter torn down", "reason", reason)
}
