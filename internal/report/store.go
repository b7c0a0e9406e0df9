// Package report records harness runs so their output and reproduction
// command can be retrieved after the fact.
package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/deixis/runharness/harness"
)

// Status is the outcome of a run.
type Status string

const (
	// Pass means the exit status matched the expected outcome.
	Pass Status = "pass"
	// Mismatch means the exit status contradicted the expected outcome.
	Mismatch Status = "mismatch"
	// Timeout means the wait deadline passed before the process exited.
	Timeout Status = "timeout"
	// Failed means the process could not be started or waited for.
	Failed Status = "error"
)

// Store persists and retrieves run reports.
type Store interface {
	Save(r *RunReport) error
	Load(runID string) (*RunReport, error)
}

// RunReport holds everything known about one run.
type RunReport struct {
	ID         string            `json:"id"`
	Executable string            `json:"executable"`
	Argv       []string          `json:"argv,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	ShouldFail bool              `json:"should_fail"`
	Status     Status            `json:"status"`
	ExitCode   int               `json:"exit_code"`
	Stdout     string            `json:"stdout,omitempty"`
	Stderr     string            `json:"stderr,omitempty"`
	Truncated  bool              `json:"truncated,omitempty"`
	Reproducer string            `json:"reproducer,omitempty"`
	Message    string            `json:"message,omitempty"`
	Started    time.Time         `json:"started"`
	Duration   time.Duration     `json:"duration_ns"`
}

// OK reports whether the run matched its expected outcome.
func (r *RunReport) OK() bool {
	return r.Status == Pass
}

// FromStartError builds a report for a request that never started.
func FromStartError(id string, req harness.Request, err error) *RunReport {
	return &RunReport{
		ID:         id,
		Executable: req.Executable,
		Argv:       append([]string{req.Executable}, req.Args...),
		Env:        req.Env,
		ShouldFail: req.ShouldFail,
		Status:     Failed,
		ExitCode:   -1,
		Message:    err.Error(),
		Started:    time.Now(),
	}
}

// FromHandle builds a report from a handle and the error its Wait returned.
func FromHandle(hd *harness.Handle, waitErr error) *RunReport {
	req := hd.Request()
	c := hd.Command()
	r := &RunReport{
		ID:         hd.RunID(),
		Executable: req.Executable,
		Argv:       c.Argv,
		Env:        c.Overrides,
		ShouldFail: req.ShouldFail,
		Reproducer: harness.Reproducer(c.Overrides, c.Argv),
		Started:    hd.Started(),
		ExitCode:   -1,
	}
	if res := hd.Result(); res != nil {
		r.ExitCode = res.ExitCode
		r.Stdout = res.Stdout
		r.Stderr = res.Stderr
		r.Truncated = res.Truncated
		r.Duration = res.Duration
	} else {
		r.Duration = time.Since(r.Started)
	}

	switch {
	case waitErr == nil:
		r.Status = Pass
	case errors.Is(waitErr, harness.ErrMismatch):
		r.Status = Mismatch
		r.Message = waitErr.Error()
	case errors.Is(waitErr, harness.ErrTimeout):
		r.Status = Timeout
		r.Message = waitErr.Error()
	default:
		r.Status = Failed
		r.Message = waitErr.Error()
	}
	return r
}

// Section returns one named part of the report: "stdout", "stderr",
// "reproduce" or "all".
func (r *RunReport) Section(name string) (string, error) {
	switch name {
	case "stdout":
		return r.Stdout, nil
	case "stderr":
		return r.Stderr, nil
	case "reproduce":
		return r.Reproducer, nil
	case "", "all":
		return harness.Diagnostic(r.Stdout, r.Stderr, r.Env, r.Argv), nil
	default:
		return "", fmt.Errorf("unknown section %q (want stdout, stderr, reproduce or all)", name)
	}
}
