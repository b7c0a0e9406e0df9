package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type inspectParams struct {
	RunID   string `json:"run_id" jsonschema:"the run ID from a harness_run result"`
	Section string `json:"section,omitempty" jsonschema:"part of the run to return: stdout, stderr, reproduce or all (default)"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}

	r, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	text, err := r.Section(params.Section)
	if err != nil {
		return errorResult(err.Error())
	}
	if text == "" {
		return textResult(fmt.Sprintf("Run %s (%s): %s is empty.", r.ID, r.Status, params.Section))
	}
	return textResult(text)
}
