package harness

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMismatch matches any *MismatchError.
	ErrMismatch = errors.New("unexpected exit status")
	// ErrTimeout matches any *TimeoutError.
	ErrTimeout = errors.New("timed out waiting for process")
	// ErrWaited is returned by a second Wait on a completed Handle.
	ErrWaited = errors.New("handle already waited")
)

// MismatchError reports a process whose exit status contradicts the
// expected outcome. Its message carries the captured output and a shell
// command reproducing the run.
type MismatchError struct {
	Name       string // program name used in the summary line
	RunID      string
	ExitCode   int
	ShouldFail bool
	Stdout     string
	Stderr     string
	Env        map[string]string // overrides the run was started with
	Argv       []string          // fully resolved argument vector
}

func (e *MismatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s exited with return code %d!\n", e.Name, e.ExitCode)
	b.WriteString(Diagnostic(e.Stdout, e.Stderr, e.Env, e.Argv))
	return b.String()
}

// Reproducer returns the shell command that re-runs the failing invocation.
func (e *MismatchError) Reproducer() string {
	return Reproducer(e.Env, e.Argv)
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrMismatch
}

// TimeoutError reports a wait that ended before the process exited. The
// process is not signalled and may still be running.
type TimeoutError struct {
	Name    string
	RunID   string
	Pid     int
	Timeout time.Duration // zero when the deadline came from the caller's context
	Err     error
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("%s (pid %d) did not exit within %s", e.Name, e.Pid, e.Timeout)
	}
	return fmt.Sprintf("%s (pid %d) did not exit: %v", e.Name, e.Pid, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}
