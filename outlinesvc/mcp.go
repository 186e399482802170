package outlinesvc

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domoutline/kit"
)

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var nodeProp = map[string]any{"type": "integer", "description": "DOM node id"}

// RegisterMCP registers the outline tools on srv.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	eps := s.Endpoints()

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "outline_rows",
		Description: "List the visible rows of the DOM outline in display order.",
		InputSchema: inputSchema(map[string]any{
			"offset": map[string]any{"type": "integer", "description": "First row index"},
			"limit":  map[string]any{"type": "integer", "description": "Maximum rows, 0 for all"},
		}, nil),
	}, eps.Rows, kit.JSONArgs[RowsRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "outline_select",
		Description: "Select the row of a DOM node.",
		InputSchema: inputSchema(map[string]any{"node": nodeProp}, []string{"node"}),
	}, eps.Select, kit.JSONArgs[NodeRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "outline_expand",
		Description: "Expand or collapse the row of a DOM node.",
		InputSchema: inputSchema(map[string]any{
			"node":     nodeProp,
			"expanded": map[string]any{"type": "boolean", "description": "true to expand, false to collapse"},
		}, []string{"node", "expanded"}),
	}, eps.Expand, kit.JSONArgs[ExpandRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "outline_reveal",
		Description: "Expand the ancestors of a DOM node and select it.",
		InputSchema: inputSchema(map[string]any{"node": nodeProp}, []string{"node"}),
	}, eps.Reveal, kit.JSONArgs[NodeRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "outline_show_all",
		Description: "Show every child of a DOM node's row, lifting the pagination limit.",
		InputSchema: inputSchema(map[string]any{"node": nodeProp}, []string{"node"}),
	}, eps.ShowAll, kit.JSONArgs[NodeRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "outline_forget_selection",
		Description: "Drop the saved selection of the current document.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, eps.Forget, kit.JSONArgs[ForgetRequest]())
}
