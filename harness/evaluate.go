package harness

import (
	"github.com/deixis/runharness/runner"
)

// Evaluate classifies res against the expected outcome. With shouldFail
// set, exit status 0 is the mismatch; otherwise any non-zero status is.
// On a match it returns nil; on a mismatch it returns a *MismatchError
// whose message is only rendered when asked for.
func Evaluate(name string, res *runner.Result, c *runner.Command, shouldFail bool) error {
	failed := res.ExitCode != 0
	if failed == shouldFail {
		return nil
	}
	return &MismatchError{
		Name:       name,
		RunID:      res.RunID,
		ExitCode:   res.ExitCode,
		ShouldFail: shouldFail,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		Env:        c.Overrides,
		Argv:       c.Argv,
	}
}
