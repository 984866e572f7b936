package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/viant/mcpc/config"
	"github.com/viant/mcpc/conn"
	"github.com/viant/mcpc/errs"
)

var (
	serverStyle = color.New(color.FgCyan, color.Bold)
	toolStyle   = color.New(color.FgGreen)
	dimStyle    = color.New(color.Faint)
	errorStyle  = color.New(color.FgRed)
)

func transportLabel(record *config.Record) string {
	if record.IsStdio() {
		return "stdio"
	}
	return "http"
}

func printServer(record *config.Record, tools []mcp.Tool, withDescriptions bool) {
	serverStyle.Printf("%s", record.Name)
	dimStyle.Printf(" (%s): %d tool(s)\n", transportLabel(record), len(tools))
	for _, tool := range tools {
		toolStyle.Printf("  %s", tool.Name)
		if withDescriptions && tool.Description != "" {
			dimStyle.Printf("  %s", firstLine(tool.Description))
		}
		fmt.Println()
	}
}

func printServerError(server string, err error) {
	serverStyle.Fprintf(os.Stderr, "%s", server)
	errorStyle.Fprintf(os.Stderr, ": %s\n", errs.As(err).Message)
}

func printServerDetail(ctx context.Context, record *config.Record, session *conn.Session, tools []mcp.Tool) {
	serverStyle.Printf("%s", record.Name)
	dimStyle.Printf(" (%s)\n", transportLabel(record))
	if record.IsStdio() {
		fmt.Printf("  command: %s %s\n", record.Command, strings.Join(record.Args, " "))
		if record.Cwd != "" {
			fmt.Printf("  cwd: %s\n", record.Cwd)
		}
	} else {
		fmt.Printf("  url: %s\n", record.URL)
		if record.OAuth != nil {
			fmt.Printf("  oauth: %s\n", record.OAuth.Grant())
		}
	}
	if session.IsDaemon() {
		dimStyle.Println("  connection: daemon")
	}
	if instructions, err := session.Instructions(ctx); err == nil && instructions != "" {
		fmt.Println("  instructions:")
		for _, line := range strings.Split(strings.TrimSpace(instructions), "\n") {
			fmt.Printf("    %s\n", line)
		}
	}
	fmt.Printf("  %d tool(s):\n", len(tools))
	for _, tool := range tools {
		toolStyle.Printf("    %s", tool.Name)
		if tool.Description != "" {
			dimStyle.Printf("  %s", firstLine(tool.Description))
		}
		fmt.Println()
	}
}

func printToolDetail(server string, tool mcp.Tool) {
	serverStyle.Printf("%s/", server)
	toolStyle.Printf("%s\n", tool.Name)
	if tool.Description != "" {
		fmt.Printf("  %s\n", tool.Description)
	}
	schema, err := json.MarshalIndent(tool.InputSchema, "  ", "  ")
	if err == nil && string(schema) != "null" {
		fmt.Println("  input schema:")
		fmt.Printf("  %s\n", schema)
	}
}

func printGrepMatch(server string, tool mcp.Tool, withDescriptions bool) {
	serverStyle.Printf("%s/", server)
	toolStyle.Printf("%s", tool.Name)
	if withDescriptions && tool.Description != "" {
		dimStyle.Printf("  %s", firstLine(tool.Description))
	}
	fmt.Println()
}

func firstLine(text string) string {
	if index := strings.IndexByte(text, '\n'); index >= 0 {
		return text[:index]
	}
	return text
}
