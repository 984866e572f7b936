// Package conn presents one uniform session handle regardless of the daemon
// or direct path, applies the tool allow/deny filter and runs fan-out
// operations across the catalogue.
package conn

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/viant/mcpc/config"
	"github.com/viant/mcpc/daemon"
	"github.com/viant/mcpc/errs"
	"github.com/viant/mcpc/transport"
)

// Session is the connection façade: it owns either a direct MCP session or a
// handle to a daemon-held one.
type Session struct {
	record *config.Record
	direct *transport.Session
	warm   *daemon.Handle
	closed bool
}

// IsDaemon reports whether the session rides a daemon socket.
func (s *Session) IsDaemon() bool {
	return s.warm != nil
}

// ListTools fetches the server's tools and applies the record filter.
func (s *Session) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	tools, err := s.listAll(ctx)
	if err != nil {
		return nil, err
	}
	filtered := make([]mcp.Tool, 0, len(tools))
	for _, tool := range tools {
		if IsToolAllowed(tool.Name, s.record) {
			filtered = append(filtered, tool)
		}
	}
	return filtered, nil
}

func (s *Session) listAll(ctx context.Context) ([]mcp.Tool, error) {
	if s.warm != nil {
		response, err := s.warm.Request(ctx, &daemon.Request{Type: daemon.TypeListTools})
		if err != nil {
			return nil, err
		}
		if !response.Success {
			return nil, fmt.Errorf("%s", response.Error)
		}
		var tools []mcp.Tool
		if err := json.Unmarshal(response.Data, &tools); err != nil {
			return nil, fmt.Errorf("malformed daemon tool list: %w", err)
		}
		return tools, nil
	}
	result, err := s.direct.Client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes a tool; disabled tools are refused locally without
// contacting the server.
func (s *Session) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	if !IsToolAllowed(name, s.record) {
		return nil, errs.New(errs.ToolDisabled, "tool %q is disabled for server %s", name, s.record.Name).
			WithSuggestion("adjust allowedTools/disabledTools for this server")
	}
	if s.warm != nil {
		var raw json.RawMessage
		if arguments != nil {
			encoded, err := json.Marshal(arguments)
			if err != nil {
				return nil, err
			}
			raw = encoded
		}
		response, err := s.warm.Request(ctx, &daemon.Request{
			Type:     daemon.TypeCallTool,
			ToolName: name,
			Args:     raw,
		})
		if err != nil {
			return nil, err
		}
		if !response.Success {
			return nil, errs.New(errs.ToolExecutionFailed, "tool %s failed on %s", name, s.record.Name).
				WithDetails("%s", response.Error)
		}
		raw = json.RawMessage(response.Data)
		result, err := mcp.ParseCallToolResult(&raw)
		if err != nil {
			return nil, fmt.Errorf("malformed daemon tool result: %w", err)
		}
		return result, nil
	}
	request := mcp.CallToolRequest{}
	request.Params.Name = name
	request.Params.Arguments = arguments
	result, err := s.direct.Client.CallTool(ctx, request)
	if err != nil {
		return nil, errs.Wrap(errs.ToolExecutionFailed, err, "tool %s failed on %s", name, s.record.Name).
			WithDetails("%v", err)
	}
	return result, nil
}

// Instructions returns the server's usage instructions, when provided.
func (s *Session) Instructions(ctx context.Context) (string, error) {
	if s.warm != nil {
		response, err := s.warm.Request(ctx, &daemon.Request{Type: daemon.TypeGetInstructions})
		if err != nil {
			return "", err
		}
		if !response.Success {
			return "", fmt.Errorf("%s", response.Error)
		}
		var instructions string
		if err := json.Unmarshal(response.Data, &instructions); err != nil {
			return "", err
		}
		return instructions, nil
	}
	return s.direct.Instructions(), nil
}

// Close releases the session; closing a daemon-backed handle only disconnects
// locally (the daemon keeps the MCP session warm). Idempotent.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.direct != nil {
		return s.direct.Close()
	}
	return nil
}
