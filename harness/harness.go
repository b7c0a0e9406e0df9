// Package harness runs an externally built program the way a test expects
// it to behave, and turns an unexpected exit status into an error that
// carries the captured output and a command line reproducing the run.
//
// A synchronous run evaluates before returning:
//
//	h := harness.New()
//	err := h.Run(ctx, harness.Request{
//		Executable: bin,
//		Env:        map[string]string{"XDG_DATA_DIRS": dataDir},
//		Args:       []string{"--dry-run"},
//	})
//
// An asynchronous run defers evaluation to Handle.Wait; a run that is
// never waited for never reports a mismatch.
package harness

import (
	"context"
	"errors"
	"io"
	"log"
	"maps"
	"path/filepath"
	"sync"
	"time"

	"github.com/deixis/runharness/runner"
)

// Request describes one run of the program under test.
type Request struct {
	Executable string
	Args       []string
	Env        map[string]string // overrides applied on top of the inherited environment
	ShouldFail bool              // expect a non-zero exit status
}

// Harness launches requests and evaluates their outcome.
type Harness struct {
	name    string
	runner  *runner.Runner
	timeout time.Duration
	logger  *log.Logger
	baseEnv map[string]string
}

// Option configures a Harness.
type Option func(*Harness)

// WithName sets the program name used in diagnostics. By default the base
// name of the request's executable is used.
func WithName(name string) Option {
	return func(h *Harness) { h.name = name }
}

// WithRunner replaces the process launcher.
func WithRunner(r *runner.Runner) Option {
	return func(h *Harness) { h.runner = r }
}

// WithTimeout bounds every wait. The caller's context may set a shorter
// deadline.
func WithTimeout(d time.Duration) Option {
	return func(h *Harness) { h.timeout = d }
}

// WithLogger logs run boundaries to l.
func WithLogger(l *log.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithBaseEnv sets overrides applied to every request. Request overrides
// win on key collision.
func WithBaseEnv(env map[string]string) Option {
	return func(h *Harness) { h.baseEnv = maps.Clone(env) }
}

// New returns a Harness using the current process environment.
func New(opts ...Option) *Harness {
	h := &Harness{
		runner: &runner.Runner{},
		logger: log.New(io.Discard, "", 0),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Run starts req and waits for it, returning a *MismatchError if the exit
// status contradicts req.ShouldFail, a *TimeoutError if the wait deadline
// passes first, or the start error if the process could not be created.
func (h *Harness) Run(ctx context.Context, req Request) error {
	hd, err := h.Start(ctx, req)
	if err != nil {
		return err
	}
	return hd.Wait(ctx)
}

// Start launches req and returns without waiting. Errors creating the
// process are returned unchanged in meaning.
func (h *Harness) Start(ctx context.Context, req Request) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	overrides := h.overrides(req.Env)
	c, err := h.runner.Command(req.Executable, overrides, req.Args...)
	if err != nil {
		return nil, err
	}
	p, err := h.runner.Start(c)
	if err != nil {
		h.logger.Printf("start %s: %v", req.Executable, err)
		return nil, err
	}
	h.logger.Printf("started %s (run %s, pid %d)", h.nameFor(req), p.RunID, p.Pid())
	return &Handle{h: h, req: req, proc: p}, nil
}

// Exec runs req in one call: synchronously when async is false, returning
// a nil Handle; otherwise it returns the Handle to wait on later.
func (h *Harness) Exec(ctx context.Context, req Request, async bool) (*Handle, error) {
	if async {
		return h.Start(ctx, req)
	}
	return nil, h.Run(ctx, req)
}

func (h *Harness) overrides(env map[string]string) map[string]string {
	if len(h.baseEnv) == 0 {
		return env
	}
	out := maps.Clone(h.baseEnv)
	maps.Copy(out, env)
	return out
}

func (h *Harness) nameFor(req Request) string {
	if h.name != "" {
		return h.name
	}
	return filepath.Base(req.Executable)
}

// Handle is an in-flight asynchronous run. Wait must be called at most
// once to completion; concurrent waiters after the first see ErrWaited.
type Handle struct {
	h    *Harness
	req  Request
	proc *runner.Process

	mu     sync.Mutex
	waited bool
	result *runner.Result
}

// RunID returns the identifier assigned when the process started.
func (hd *Handle) RunID() string { return hd.proc.RunID }

// Request returns the request the handle was started from.
func (hd *Handle) Request() Request { return hd.req }

// Command returns the resolved argv, environment and overrides.
func (hd *Handle) Command() *runner.Command { return hd.proc.Command }

// Started returns the time the process was started.
func (hd *Handle) Started() time.Time { return hd.proc.Started }

// Result returns the captured result after a completed Wait, nil before.
func (hd *Handle) Result() *runner.Result {
	hd.mu.Lock()
	defer hd.mu.Unlock()
	return hd.result
}

// Wait blocks until the process exits and evaluates its exit status. If
// ctx or the harness timeout ends first, Wait returns a *TimeoutError and
// leaves the process running; Wait may then be called again. Once a Wait
// has completed, further calls return ErrWaited.
func (hd *Handle) Wait(ctx context.Context) error {
	hd.mu.Lock()
	waited := hd.waited
	hd.mu.Unlock()
	if waited {
		return ErrWaited
	}

	name := hd.h.nameFor(hd.req)
	parent := ctx
	if hd.h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, hd.h.timeout)
		defer cancel()
	}

	res, err := hd.proc.Wait(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			hd.h.logger.Printf("timed out waiting for %s (run %s)", name, hd.proc.RunID)
			timeout := hd.h.timeout
			if parent.Err() != nil {
				timeout = 0 // the caller's deadline expired first
			}
			return &TimeoutError{
				Name:    name,
				RunID:   hd.proc.RunID,
				Pid:     hd.proc.Pid(),
				Timeout: timeout,
				Err:     context.DeadlineExceeded,
			}
		}
		return err
	}

	hd.mu.Lock()
	if hd.waited {
		hd.mu.Unlock()
		return ErrWaited
	}
	hd.waited = true
	hd.result = res
	hd.mu.Unlock()

	hd.h.logger.Printf("%s exited with status %d (run %s, %s)", name, res.ExitCode, res.RunID, res.Duration)
	return Evaluate(name, res, hd.proc.Command, hd.req.ShouldFail)
}
