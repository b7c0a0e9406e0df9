package mcp

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/deixis/runharness/internal/config"
	"github.com/deixis/runharness/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setup creates a full runharness MCP server + client over in-memory transports.
func setup(t *testing.T, cfg *config.Config) *mcp.ClientSession {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	store := report.NewLRUStore(5, report.NewDiskStore(t.TempDir()))
	return connect(t, NewServer(cfg, store, t.TempDir(), nil))
}

func connect(t *testing.T, server *mcp.Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	ct, st := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	require.NoError(t, err, "server.Connect")

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err, "client.Connect")

	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})

	return cs
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err, "CallTool(%s)", name)
	return res
}

func resultText(r *mcp.CallToolResult) string {
	var parts []string
	for _, c := range r.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// runID extracts the run ID from a "Run: <id>" line.
func runID(t *testing.T, text string) string {
	t.Helper()
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "Run: ") {
			return strings.TrimPrefix(line, "Run: ")
		}
	}
	t.Fatalf("no Run ID found in output:\n%s", text)
	return ""
}

// --- harness_run ---

func TestHarnessRun_Pass(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "harness_run", map[string]any{
		"executable": "sh",
		"args":       []string{"-c", "echo hello"},
	})
	text := resultText(res)
	require.False(t, res.IsError, text)
	assert.Contains(t, text, "Status: pass")
	assert.Contains(t, text, "Exit code: 0")
}

func TestHarnessRun_Mismatch(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "harness_run", map[string]any{
		"executable": "sh",
		"args":       []string{"-c", "echo broken >&2; exit 3"},
		"env":        map[string]string{"MODE": "strict"},
	})
	text := resultText(res)
	assert.Contains(t, text, "Status: mismatch")
	assert.Contains(t, text, "sh exited with return code 3!")
	assert.Contains(t, text, "To reproduce:\n    MODE=strict sh -c ")
	assert.Contains(t, text, "harness_inspect")
}

func TestHarnessRun_ShouldFail(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "harness_run", map[string]any{
		"executable":  "false",
		"should_fail": true,
	})
	assert.Contains(t, resultText(res), "Status: pass")
}

func TestHarnessRun_Timeout(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "harness_run", map[string]any{
		"executable": "sleep",
		"args":       []string{"1"},
		"timeout":    "50ms",
	})
	assert.Contains(t, resultText(res), "Status: timeout")
}

func TestHarnessRun_StartError(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "harness_run", map[string]any{
		"executable": "/nonexistent/prog-xyz",
	})
	assert.Contains(t, resultText(res), "Status: error")
}

func TestHarnessRun_InvalidTimeout(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "harness_run", map[string]any{
		"executable": "true",
		"timeout":    "soon",
	})
	assert.True(t, res.IsError, "expected IsError for invalid timeout")
}

func TestHarnessRun_MissingExecutable(t *testing.T) {
	cs := setup(t, nil)
	_, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "harness_run",
		Arguments: map[string]any{"args": []string{"x"}},
	})
	assert.Error(t, err)
}

func TestHarnessRun_ConfigName(t *testing.T) {
	cs := setup(t, &config.Config{Name: "j4-dmenu-desktop"})
	res := callTool(t, cs, "harness_run", map[string]any{
		"executable":  "true",
		"should_fail": true,
	})
	assert.Contains(t, resultText(res), "j4-dmenu-desktop exited with return code 0!")
}

// failingStore refuses every save.
type failingStore struct{}

func (failingStore) Save(*report.RunReport) error { return errors.New("disk full") }

func (failingStore) Load(id string) (*report.RunReport, error) {
	return nil, errors.New("not found")
}

func TestHarnessRun_SaveFailure(t *testing.T) {
	var logs bytes.Buffer
	server := NewServer(&config.Config{}, failingStore{}, t.TempDir(), log.New(&logs, "", 0))
	cs := connect(t, server)

	res := callTool(t, cs, "harness_run", map[string]any{"executable": "true"})
	text := resultText(res)
	assert.Contains(t, text, "Status: pass")
	assert.Contains(t, text, "could not be stored")
	assert.Contains(t, logs.String(), "disk full")
}

// --- harness_inspect ---

func TestHarnessInspect_Sections(t *testing.T) {
	cs := setup(t, nil)
	runText := resultText(callTool(t, cs, "harness_run", map[string]any{
		"executable": "sh",
		"args":       []string{"-c", "echo to-stdout; echo to-stderr >&2; exit 1"},
	}))
	id := runID(t, runText)

	tests := []struct {
		section string
		want    string
	}{
		{"stdout", "to-stdout"},
		{"stderr", "to-stderr"},
		{"reproduce", "sh -c "},
		{"all", "To reproduce:"},
	}
	for _, tt := range tests {
		res := callTool(t, cs, "harness_inspect", map[string]any{
			"run_id":  id,
			"section": tt.section,
		})
		text := resultText(res)
		require.False(t, res.IsError, "harness_inspect(%s): %s", tt.section, text)
		assert.Contains(t, text, tt.want, "harness_inspect(%s)", tt.section)
	}
}

func TestHarnessInspect_UnknownSection(t *testing.T) {
	cs := setup(t, nil)
	id := runID(t, resultText(callTool(t, cs, "harness_run", map[string]any{"executable": "true"})))
	res := callTool(t, cs, "harness_inspect", map[string]any{
		"run_id":  id,
		"section": "bogus",
	})
	assert.True(t, res.IsError, "expected IsError for unknown section")
}

func TestHarnessInspect_InvalidRunID(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "harness_inspect", map[string]any{
		"run_id": "nonexistent-id",
	})
	assert.True(t, res.IsError, "expected IsError for invalid run_id")
}

func TestHarnessInspect_MissingRunID(t *testing.T) {
	cs := setup(t, nil)
	_, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "harness_inspect",
		Arguments: map[string]any{"section": "stdout"},
	})
	assert.Error(t, err)
}
