package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/viant/mcpc/conn"
	"github.com/viant/mcpc/errs"
)

// fetchTools opens a session, lists tools and closes; the building block for
// fan-out commands.
func (a *app) fetchTools(ctx context.Context, server string) ([]mcp.Tool, error) {
	session, err := a.connector.Connect(ctx, server)
	if err != nil {
		return nil, err
	}
	defer session.Close()
	return session.ListTools(ctx)
}

// cmdList renders the whole catalogue: every server with its filtered tools,
// per-server failures shown in place.
func (a *app) cmdList(ctx context.Context) error {
	names := a.catalogue.Names()
	if len(names) == 0 {
		fmt.Println("no servers configured")
		return nil
	}
	outcomes := conn.FanOut(ctx, names, a.settings.Concurrency, a.fetchTools)
	failures := 0
	for _, outcome := range outcomes {
		record := a.catalogue.Servers[outcome.Server]
		if outcome.Err != nil {
			failures++
			printServerError(outcome.Server, outcome.Err)
			continue
		}
		printServer(record, outcome.Value, a.options.WithDescriptions)
	}
	if failures == len(outcomes) {
		return errs.New(errs.ServerConnectionFailed, "all %d server(s) unreachable", failures).
			WithSuggestion("run with MCPC_DEBUG=1 for connection details")
	}
	return nil
}

// cmdInfo shows one server (instructions plus tools) or one tool's schema.
func (a *app) cmdInfo(ctx context.Context, server, tool string) error {
	session, err := a.connector.Connect(ctx, server)
	if err != nil {
		return err
	}
	defer session.Close()

	tools, err := session.ListTools(ctx)
	if err != nil {
		return errs.Wrap(errs.ServerConnectionFailed, err, "cannot list tools on %s", server).
			WithDetails("%v", err)
	}
	if tool != "" {
		for _, candidate := range tools {
			if candidate.Name == tool {
				printToolDetail(server, candidate)
				return nil
			}
		}
		return errs.New(errs.ToolNotFound, "tool %q not found on server %s", tool, server).
			WithDetails("available: %s", strings.Join(toolNames(tools), ", ")).
			WithSuggestion("run 'mcpc info %s' to list this server's tools", server)
	}
	record := a.catalogue.Servers[server]
	printServerDetail(ctx, record, session, tools)
	return nil
}

// cmdGrep searches tool names (and with -d descriptions) across all servers
// by glob; a bare pattern is wrapped in wildcards so it behaves as a
// substring search.
func (a *app) cmdGrep(ctx context.Context, pattern string) error {
	effective := pattern
	if !strings.ContainsAny(pattern, "*?") {
		effective = "*" + pattern + "*"
	}
	names := a.catalogue.Names()
	outcomes := conn.FanOut(ctx, names, a.settings.Concurrency, a.fetchTools)
	matches := 0
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			printServerError(outcome.Server, outcome.Err)
			continue
		}
		for _, tool := range outcome.Value {
			matched := conn.MatchPattern(effective, tool.Name)
			if !matched && a.options.WithDescriptions {
				matched = conn.MatchPattern(effective, tool.Description)
			}
			if matched {
				matches++
				printGrepMatch(outcome.Server, tool, a.options.WithDescriptions)
			}
		}
	}
	if matches == 0 {
		fmt.Printf("no tools matching %q\n", pattern)
	}
	return nil
}

// cmdCall invokes one tool and writes the raw MCP result to stdout. A
// disabled tool is refused from the catalogue record alone, before any
// subprocess spawn, dial or authorization round-trip.
func (a *app) cmdCall(ctx context.Context, target *callTarget) error {
	record, err := a.catalogue.Lookup(target.Server)
	if err != nil {
		return err
	}
	if !conn.IsToolAllowed(target.Tool, record) {
		return errs.New(errs.ToolDisabled, "tool %q is disabled for server %s", target.Tool, target.Server).
			WithSuggestion("adjust allowedTools/disabledTools for this server")
	}
	session, err := a.connector.Connect(ctx, target.Server)
	if err != nil {
		return err
	}
	defer session.Close()

	result, err := session.CallTool(ctx, target.Tool, target.Arguments)
	if err != nil {
		return classifyCallError(err, target)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cannot encode tool result: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(raw))
	if result.IsError {
		return errs.New(errs.ToolExecutionFailed, "tool %s reported an error on %s", target.Tool, target.Server).
			WithSuggestion("inspect the result payload above for the server-reported cause")
	}
	return nil
}

// classifyCallError maps remote tool failures onto the taxonomy with
// cause-specific suggestions.
func classifyCallError(err error, target *callTarget) error {
	if errs.IsType(err, errs.ToolDisabled) || errs.IsType(err, errs.AuthRequired) {
		return err
	}
	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "unknown tool") || strings.Contains(message, "tool not found"):
		return errs.Wrap(errs.ToolNotFound, err, "tool %q not found on server %s", target.Tool, target.Server).
			WithSuggestion("run 'mcpc info %s' to list available tools", target.Server)
	case strings.Contains(message, "validation") || strings.Contains(message, "invalid argument"):
		return errs.Wrap(errs.ToolExecutionFailed, err, "tool %s rejected its arguments", target.Tool).
			WithDetails("%v", err).
			WithSuggestion("run 'mcpc info %s %s' to inspect the input schema", target.Server, target.Tool)
	case strings.Contains(message, "required"):
		return errs.Wrap(errs.ToolExecutionFailed, err, "tool %s is missing required arguments", target.Tool).
			WithDetails("%v", err).
			WithSuggestion("run 'mcpc info %s %s' for the required properties", target.Server, target.Tool)
	case strings.Contains(message, "permission") || strings.Contains(message, "forbidden"):
		return errs.Wrap(errs.ToolExecutionFailed, err, "tool %s was denied", target.Tool).
			WithDetails("%v", err).
			WithSuggestion("check the server's permissions for this tool")
	default:
		coded := errs.As(err)
		if coded.Type == errs.ToolExecutionFailed {
			return err
		}
		return errs.Wrap(errs.ToolExecutionFailed, err, "tool %s failed on %s", target.Tool, target.Server).
			WithDetails("%v", err)
	}
}

func toolNames(tools []mcp.Tool) []string {
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	return names
}
