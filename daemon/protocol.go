// Package daemon implements the per-server connection daemon: a detached
// worker process that keeps one MCP session warm behind a per-user Unix
// socket, and the client that locates, validates and spawns workers. Requests
// are newline-framed JSON objects, one per connection.
package daemon

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Request types accepted by a worker.
const (
	TypePing            = "ping"
	TypeListTools       = "listTools"
	TypeCallTool        = "callTool"
	TypeGetInstructions = "getInstructions"
	TypeClose           = "close"
)

// ReadyToken is printed on the worker's stdout once its socket is serving.
const ReadyToken = "DAEMON_READY"

// Request is one framed daemon request.
type Request struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	ToolName string          `json:"toolName,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`
}

// Response is one framed daemon response, newline terminated on the wire.
type Response struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func writeFrame(conn net.Conn, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = conn.Write(append(data, '\n'))
	return err
}

func readFrame(reader *bufio.Reader, value interface{}) error {
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return err
	}
	if err := json.Unmarshal(line, value); err != nil {
		return fmt.Errorf("malformed frame: %w", err)
	}
	return nil
}

// SocketTimeout bounds daemon dials and ping exchanges so a dead daemon path
// surfaces the direct fallback quickly.
const SocketTimeout = 5 * time.Second
