package harness

import (
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/deixis/runharness/runner"
)

// Diagnostic renders the body of a mismatch message: the indented stdout,
// a "Stderr:" line with the indented stderr, and a "To reproduce:" line
// followed by the reproduction command.
func Diagnostic(stdout, stderr string, env map[string]string, argv []string) string {
	var b strings.Builder
	writeIndented(&b, stdout)
	b.WriteString("Stderr:\n")
	writeIndented(&b, stderr)
	b.WriteString("To reproduce:\n")
	b.WriteString("    ")
	b.WriteString(Reproducer(env, argv))
	b.WriteString("\n")
	return b.String()
}

// Reproducer renders env and argv as a single POSIX shell command line.
// Each override becomes KEY=value with the value quoted; every argv token
// is quoted individually. Any token holding a character outside
// [A-Za-z0-9@%+=:,./_-] is single-quoted, so comments, globs and tilde
// expansion never apply.
func Reproducer(env map[string]string, argv []string) string {
	var b strings.Builder
	for i, k := range runner.SortedKeys(env) {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(shellescape.Quote(env[k]))
	}
	if len(env) > 0 {
		b.WriteByte(' ')
	}
	b.WriteString(shellescape.QuoteCommand(argv))
	return b.String()
}

// writeIndented writes each line of s prefixed by four spaces. Output that
// is empty or a lone newline is skipped.
func writeIndented(b *strings.Builder, s string) {
	if s == "" || s == "\n" {
		return
	}
	for line := range strings.Lines(s) {
		b.WriteString("    ")
		b.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			b.WriteByte('\n')
		}
	}
}
