package runner

import "time"

// Result holds the captured outcome of a finished process.
type Result struct {
	RunID     string        // unique identifier for this run
	ExitCode  int           // exit status; negative signal number if killed by a signal
	Stdout    string        // captured stdout (may be truncated)
	Stderr    string        // captured stderr (may be truncated)
	Truncated bool          // true if either stream exceeded the size cap
	Duration  time.Duration // wall time from start to exit
}
