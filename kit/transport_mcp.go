package kit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hazyhaar/domoutline/idgen"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// mcpRequestID names tool calls, which carry no id of their own.
var mcpRequestID = idgen.Prefixed("mcp_", idgen.Default)

// DecodeFunc extracts the typed request from raw MCP tool arguments.
type DecodeFunc func(args json.RawMessage) (any, error)

// JSONArgs decodes arguments into a fresh *T. Empty arguments yield a
// zero T.
func JSONArgs[T any]() DecodeFunc {
	return func(args json.RawMessage) (any, error) {
		var v T
		if len(args) == 0 {
			return &v, nil
		}
		if err := json.Unmarshal(args, &v); err != nil {
			return nil, err
		}
		return &v, nil
	}
}

// RegisterMCPTool registers an Endpoint as an MCP tool on srv. Decode
// and endpoint failures become tool errors; the response is returned as
// JSON text content. Each call gets a fresh request id.
func RegisterMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode DecodeFunc) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		decoded, err := decode(req.Params.Arguments)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("invalid arguments: %w", err))
			return &res, nil
		}
		ctx = WithRequestID(WithTransport(ctx, TransportMCP), mcpRequestID())

		resp, err := endpoint(ctx, decoded)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}
