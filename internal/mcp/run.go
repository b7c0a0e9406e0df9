package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deixis/runharness/harness"
	"github.com/deixis/runharness/internal/report"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type runParams struct {
	Executable string            `json:"executable" jsonschema:"path to the program under test, absolute or resolvable via PATH"`
	Args       []string          `json:"args,omitempty" jsonschema:"arguments passed to the program, in order"`
	Env        map[string]string `json:"env,omitempty" jsonschema:"environment variables overriding the inherited environment"`
	ShouldFail bool              `json:"should_fail,omitempty" jsonschema:"expect a non-zero exit status; exit status 0 is then reported as a mismatch"`
	Timeout    string            `json:"timeout,omitempty" jsonschema:"maximum time to wait, e.g. 30s. Defaults to the configured timeout. The program is not killed when it expires."`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	if params.Executable == "" {
		return errorResult("executable is required")
	}

	var timeout time.Duration
	if params.Timeout != "" {
		d, err := time.ParseDuration(params.Timeout)
		if err != nil || d <= 0 {
			return errorResult(fmt.Sprintf("invalid timeout %q", params.Timeout))
		}
		timeout = d
	}

	hreq := harness.Request{
		Executable: params.Executable,
		Args:       params.Args,
		Env:        params.Env,
		ShouldFail: params.ShouldFail,
	}

	var rep *report.RunReport
	hd, err := h.harness(timeout).Start(ctx, hreq)
	if err != nil {
		rep = report.FromStartError(uuid.New().String(), hreq, err)
	} else {
		rep = report.FromHandle(hd, hd.Wait(ctx))
	}

	// Save the report for harness_inspect.
	saved := true
	if err := h.store.Save(rep); err != nil {
		h.logger.Printf("saving run %s: %v", rep.ID, err)
		saved = false
	}

	text := formatRun(rep)
	if !saved {
		text += "\nThe report could not be stored; harness_inspect is unavailable for this run.\n"
	}
	return textResult(text)
}

func formatRun(r *report.RunReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Status: %s\n", r.Status)
	fmt.Fprintf(&b, "Run: %s\n", r.ID)
	if r.Status == report.Pass || r.Status == report.Mismatch {
		fmt.Fprintf(&b, "Exit code: %d\n", r.ExitCode)
	}
	if r.Truncated {
		fmt.Fprintln(&b, "Output truncated.")
	}

	if r.Message != "" {
		fmt.Fprintln(&b)
		fmt.Fprint(&b, r.Message)
		if !strings.HasSuffix(r.Message, "\n") {
			fmt.Fprintln(&b)
		}
	}

	if r.Status != report.Failed {
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "Inspect with harness_inspect(run_id=%q, section=\"stdout|stderr|reproduce|all\").\n", r.ID)
	}
	return b.String()
}
