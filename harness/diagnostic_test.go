package harness

import (
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/deixis/runharness/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnostic_Layout(t *testing.T) {
	got := Diagnostic("line one\nline two\n", "oops\n", map[string]string{"LANG": "C"}, []string{"/bin/prog", "-v"})
	want := "" +
		"    line one\n" +
		"    line two\n" +
		"Stderr:\n" +
		"    oops\n" +
		"To reproduce:\n" +
		"    LANG=C /bin/prog -v\n"
	assert.Equal(t, want, got)
}

func TestDiagnostic_EmptyStreams(t *testing.T) {
	tests := []struct {
		name           string
		stdout, stderr string
	}{
		{name: "empty", stdout: "", stderr: ""},
		{name: "newline only", stdout: "\n", stderr: "\n"},
		{name: "mixed", stdout: "", stderr: "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diagnostic(tt.stdout, tt.stderr, nil, []string{"prog"})
			assert.Equal(t, "Stderr:\nTo reproduce:\n    prog\n", got)
		})
	}
}

func TestDiagnostic_UnterminatedLastLine(t *testing.T) {
	got := Diagnostic("partial", "also partial", nil, []string{"prog"})
	assert.Equal(t, "    partial\nStderr:\n    also partial\nTo reproduce:\n    prog\n", got)
}

func TestDiagnostic_BlankLinesKept(t *testing.T) {
	got := Diagnostic("a\n\nb\n", "", nil, []string{"prog"})
	assert.True(t, strings.HasPrefix(got, "    a\n    \n    b\nStderr:\n"), got)
}

func TestReproducer_NoOverrides(t *testing.T) {
	assert.Equal(t, "/bin/prog arg", Reproducer(nil, []string{"/bin/prog", "arg"}))
	assert.Equal(t, "/bin/prog arg", Reproducer(map[string]string{}, []string{"/bin/prog", "arg"}))
}

func TestReproducer_SortedOverrides(t *testing.T) {
	got := Reproducer(map[string]string{"ZED": "1", "ALPHA": "2"}, []string{"prog"})
	assert.Equal(t, "ALPHA=2 ZED=1 prog", got)
}

func TestReproducer_QuotesShellSyntax(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		argv []string
		want string
	}{
		{name: "comment", argv: []string{"printf", "#tag"}, want: "printf '#tag'"},
		{name: "tilde", argv: []string{"ls", "~"}, want: "ls '~'"},
		{name: "tilde in assignment", env: map[string]string{"P": "a:~/x"}, argv: []string{"prog"}, want: "P='a:~/x' prog"},
		{name: "empty", env: map[string]string{"E": ""}, argv: []string{"prog", ""}, want: "E='' prog ''"},
		{name: "single quote", argv: []string{"echo", "it's"}, want: `echo 'it'"'"'s'`},
		{name: "safe set", argv: []string{"/usr/bin/prog", "--opt=a:b,c@d%e+f_g-h"}, want: "/usr/bin/prog --opt=a:b,c@d%e+f_g-h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reproducer(tt.env, tt.argv))
		})
	}
}

// TestReproducer_ShellRerun pastes the reproduction line into sh and
// checks it behaves exactly like the original invocation.
func TestReproducer_ShellRerun(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	base := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=/home/reproducer",
	}
	showVar := func(name string) []string {
		return []string{"sh", "-c", `printf '[%s]' "$` + name + `"`}
	}

	tests := []struct {
		name string
		env  map[string]string
		argv []string
	}{
		{
			name: "leading hash",
			env:  map[string]string{"A": "1"},
			argv: []string{"printf", "[%s]", "#tag", "after"},
		},
		{
			name: "tilde args",
			argv: []string{"printf", "[%s]", "~", "~/x", "a:~/x"},
		},
		{
			name: "tilde in override",
			env:  map[string]string{"P": "a:~/x"},
			argv: showVar("P"),
		},
		{
			name: "newlines",
			env:  map[string]string{"NL": "one\ntwo"},
			argv: []string{"printf", "[%s]", "multi\nline", "tab\tsep"},
		},
		{
			name: "empty strings",
			env:  map[string]string{"E": ""},
			argv: []string{"printf", "[%s]", "", "x", ""},
		},
		{
			name: "single quotes",
			env:  map[string]string{"Q": `it's "quoted"`},
			argv: showVar("Q"),
		},
		{
			name: "metacharacters",
			argv: []string{"printf", "[%s]", "*", "$HOME", "a;b|c&d", "`id`", "$(id)", "x>y", "{a,b}", "!x"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			direct := exec.Command(tt.argv[0], tt.argv[1:]...)
			direct.Env = runner.MergeEnv(base, tt.env)
			want, err := direct.Output()
			require.NoError(t, err)

			line := Reproducer(tt.env, tt.argv)
			pasted := exec.Command("sh", "-c", line)
			pasted.Env = base
			pasted.Dir = t.TempDir()
			got, err := pasted.Output()
			require.NoError(t, err, "reproduce line: %s", line)

			assert.Equal(t, string(want), string(got), "reproduce line: %s", line)
		})
	}
}
