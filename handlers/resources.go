// ABOUTME: MCP resource handlers for exposing schedule data
// ABOUTME: Read-only JSON views of the board, prospects and locations via spruce:// URIs
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/spruce/backend"
	"github.com/harperreed/spruce/models"
	"github.com/harperreed/spruce/mutation"
)

const uriScheme = "spruce://"

type ResourceHandlers struct {
	exec    *mutation.Executor
	backend backend.Backend
}

func NewResourceHandlers(exec *mutation.Executor, b backend.Backend) *ResourceHandlers {
	return &ResourceHandlers{exec: exec, backend: b}
}

// BoardColumn is one kanban column in board order.
type BoardColumn struct {
	Status    string           `json:"status"`
	Prospects []ProspectOutput `json:"prospects"`
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, uriScheme) {
		return nil, fmt.Errorf("invalid URI scheme: expected %s", uriScheme)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, uriScheme), "/", 2)
	switch parts[0] {
	case "board":
		return jsonResource(uri, h.board())

	case "prospects":
		if len(parts) == 1 || parts[1] == "" {
			all := h.exec.Store().All()
			models.SortByStart(all)
			out := make([]ProspectOutput, 0, len(all))
			for _, p := range all {
				out = append(out, prospectToOutput(p))
			}
			return jsonResource(uri, out)
		}
		p, ok := h.exec.Store().Get(models.ParseID(parts[1]))
		if !ok {
			return nil, mcp.ResourceNotFoundError(uri)
		}
		return jsonResource(uri, prospectToOutput(p))

	case "locations":
		locations, err := h.backend.ListLocations(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch locations: %w", err)
		}
		out := make([]LocationOutput, 0, len(locations))
		for _, l := range locations {
			out = append(out, locationToOutput(l))
		}
		return jsonResource(uri, out)

	default:
		return nil, mcp.ResourceNotFoundError(uri)
	}
}

func (h *ResourceHandlers) board() []BoardColumn {
	columns := make([]BoardColumn, 0, len(models.Statuses))
	for _, status := range models.Statuses {
		col := BoardColumn{Status: string(status), Prospects: []ProspectOutput{}}
		for _, p := range h.exec.Store().Column(status) {
			col.Prospects = append(col.Prospects, prospectToOutput(p))
		}
		columns = append(columns, col)
	}
	return columns
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}
