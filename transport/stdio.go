package transport

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"

	"github.com/viant/mcpc/config"
)

// stderrTailSize bounds how much of the child's error stream is kept for
// folding into connect failures.
const stderrTailSize = 4096

// connectStdio spawns the configured command with the record's environment
// merged over the process environment and an optional working directory. The
// child's stderr is tee'd to the host's stderr (authorization prompts stay
// visible) while the tail is buffered for connect-error messages.
func (f *Factory) connectStdio(ctx context.Context, record *config.Record) (*Session, error) {
	env := mergedEnv(record.Env)
	stdioTransport := mcptransport.NewStdioWithOptions(record.Command, env, record.Args,
		mcptransport.WithCommandFunc(func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
			cmd := exec.CommandContext(ctx, command, args...)
			cmd.Env = env
			if record.Cwd != "" {
				cmd.Dir = record.Cwd
			}
			return cmd, nil
		}))
	mcpClient := client.NewClient(stdioTransport)

	tail := newTailBuffer(stderrTailSize)
	if err := mcpClient.Start(ctx); err != nil {
		return nil, connectError(record, err, tail.String())
	}
	if stderr := stdioTransport.Stderr(); stderr != nil {
		go tee(stderr, tail, os.Stderr)
	}

	initResult, err := initialize(ctx, mcpClient)
	if err != nil {
		_ = mcpClient.Close()
		return nil, connectError(record, err, tail.String())
	}
	f.log.Debug("stdio session established", "server", record.Name, "command", record.Command)
	return &Session{Client: mcpClient, Init: initResult, tail: tail}, nil
}

// mergedEnv overlays the record's variables on the process environment.
func mergedEnv(overrides map[string]string) []string {
	env := os.Environ()
	for key, value := range overrides {
		entry := fmt.Sprintf("%s=%s", key, value)
		replaced := false
		for i, existing := range env {
			if strings.HasPrefix(existing, key+"=") {
				env[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			env = append(env, entry)
		}
	}
	return env
}
