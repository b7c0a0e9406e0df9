// Package runner launches external programs under an overridden
// environment, optionally behind an execution wrapper, and captures their
// output.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"os/exec"
	"slices"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
)

// DefaultWrapperVar names the variable holding the execution wrapper
// when Runner.WrapperVar is empty.
const DefaultWrapperVar = "MESON_EXE_WRAPPER"

// Runner builds and starts commands.
type Runner struct {
	Ambient    Ambient // nil means OS
	WrapperVar string  // "" means DefaultWrapperVar
	Dir        string  // working directory; "" inherits the caller's
	MaxOutput  int     // bytes kept per stream; <= 0 keeps everything
}

// Command is a fully resolved invocation.
type Command struct {
	Argv      []string          // wrapper tokens, target path, arguments
	Env       []string          // effective environment
	Overrides map[string]string // overrides applied on top of the ambient environment
}

// Command resolves path, overrides and args into a Command. The ambient
// environment is snapshotted here; later changes to it do not affect the
// returned Command.
func (r *Runner) Command(path string, overrides map[string]string, args ...string) (*Command, error) {
	argv, err := r.Argv(path, args...)
	if err != nil {
		return nil, err
	}
	ov := maps.Clone(overrides)
	if ov == nil {
		ov = map[string]string{}
	}
	return &Command{
		Argv:      argv,
		Env:       MergeEnv(r.ambient().Environ(), ov),
		Overrides: ov,
	}, nil
}

// Argv returns the argument vector for path and args. When the wrapper
// variable is set in the ambient context its shell-tokenized value comes
// first.
func (r *Runner) Argv(path string, args ...string) ([]string, error) {
	var argv []string
	name := r.wrapperVar()
	if w, ok := r.ambient().LookupEnv(name); ok {
		tokens, err := shellquote.Split(w)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		argv = append(argv, tokens...)
	}
	argv = append(argv, path)
	return append(argv, args...), nil
}

// Run starts c and blocks until it exits or ctx is done. When ctx ends
// first the process is left running and the context error is returned.
func (r *Runner) Run(ctx context.Context, c *Command) (*Result, error) {
	p, err := r.Start(c)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx)
}

// Start launches c without waiting for it. Standard input is not
// connected; stdout and stderr are drained into memory in the background.
func (r *Runner) Start(c *Command) (*Process, error) {
	if len(c.Argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}

	cmd := exec.Command(c.Argv[0], c.Argv[1:]...)
	cmd.Dir = r.Dir
	cmd.Env = slices.Clone(c.Env)

	p := &Process{
		RunID:   uuid.New().String(),
		Command: c,
		cmd:     cmd,
		done:    make(chan struct{}),
	}
	p.stdout.limit = r.MaxOutput
	p.stderr.limit = r.MaxOutput
	cmd.Stdout = &p.stdout
	cmd.Stderr = &p.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", c.Argv[0], err)
	}
	p.Started = time.Now()

	go p.wait()
	return p, nil
}

// Process is a started command.
type Process struct {
	RunID   string
	Command *Command
	Started time.Time

	cmd            *exec.Cmd
	stdout, stderr limitWriter

	done   chan struct{}
	result *Result
	err    error
}

// Pid returns the operating system process ID.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited and its output is drained.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exits and both output streams are fully
// drained, or until ctx is done. A done ctx does not signal the process.
func (p *Process) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s: %w", p.Command.Argv[0], ctx.Err())
	}
}

func (p *Process) wait() {
	defer close(p.done)

	waitErr := p.cmd.Wait()

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			p.err = fmt.Errorf("waiting for %s: %w", p.Command.Argv[0], waitErr)
			return
		}
		exitCode = exitStatus(exitErr)
	}

	p.result = &Result{
		RunID:     p.RunID,
		ExitCode:  exitCode,
		Stdout:    p.stdout.buf.String(),
		Stderr:    p.stderr.buf.String(),
		Truncated: p.stdout.dropped || p.stderr.dropped,
		Duration:  time.Since(p.Started),
	}
}

// exitStatus reports a signal-terminated process as the negated signal
// number.
func exitStatus(err *exec.ExitError) int {
	if ws, ok := err.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -int(ws.Signal())
	}
	return err.ExitCode()
}

// limitWriter keeps up to limit bytes in buf and discards the rest,
// recording that it did. A limit <= 0 disables the cap.
type limitWriter struct {
	buf     bytes.Buffer
	limit   int
	dropped bool
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if w.limit <= 0 {
		return w.buf.Write(p)
	}
	remaining := w.limit - w.buf.Len()
	if len(p) > remaining {
		w.dropped = true
		if remaining > 0 {
			w.buf.Write(p[:remaining])
		}
		// Report all bytes as consumed to avoid short write errors from io.Copy.
		return len(p), nil
	}
	return w.buf.Write(p)
}

func (r *Runner) ambient() Ambient {
	if r.Ambient == nil {
		return OS
	}
	return r.Ambient
}

func (r *Runner) wrapperVar() string {
	if r.WrapperVar == "" {
		return DefaultWrapperVar
	}
	return r.WrapperVar
}
