// Package mcp provides the runharness MCP server, registering the run and
// inspect tools and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"io"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/deixis/runharness"
	"github.com/deixis/runharness/harness"
	"github.com/deixis/runharness/internal/config"
	"github.com/deixis/runharness/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	mu     sync.Mutex
	cfg    *config.Config
	dir    string // working directory for launched programs
	logger *log.Logger
	store  report.Store
}

// NewServer creates an MCP server with all runharness tools registered.
// Programs run from dir unless the client announces a root.
func NewServer(cfg *config.Config, store report.Store, dir string, logger *log.Logger) *mcp.Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	h := &handler{
		cfg:    cfg,
		dir:    dir,
		logger: logger,
		store:  store,
	}

	opts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "runharness", Version: runharness.Version}, opts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "harness_run",
		Description: `Run an executable with environment overrides and check its exit status.

Set should_fail=true when the program is expected to exit non-zero. On a mismatch the result
contains the captured stdout, stderr and a shell command reproducing the run. Results are stored
for drill-down via harness_inspect.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "harness_inspect",
		Description: `Retrieve stored output from a harness_run result.

Use the run_id from the harness_run output. section is one of stdout, stderr, reproduce or all.`,
	}, h.inspectHandler)

	return s
}

// harness builds a harness from the current config and working directory.
func (h *handler) harness(timeout time.Duration) *harness.Harness {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg.Harness(h.dir, timeout, h.logger)
}

// updateWorkspaceFromRoots queries the client for MCP roots and switches
// the working directory and config to the first file root.
// This is called during session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil || len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	workspace := u.Path

	loaded, err := config.Load(workspace)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.cfg = loaded.Config
	h.dir = workspace
	h.mu.Unlock()
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
