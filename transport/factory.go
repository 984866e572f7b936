// Package transport builds live MCP sessions from server records: a spawned
// subprocess speaking stdio, or a streaming HTTP endpoint wired to the OAuth
// provider and credential store. Construction is pattern-matched on the
// record's transport variant.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/viant/mcpc/auth/store"
	"github.com/viant/mcpc/config"
	"github.com/viant/mcpc/internal/logging"
)

// Client identity advertised during the MCP handshake.
const (
	clientName    = "mcpc"
	clientVersion = "0.1.0"
)

// Session owns exactly one MCP client connection.
type Session struct {
	Client *client.Client
	Init   *mcp.InitializeResult
	tail   *tailBuffer
	closed bool
}

// StderrTail returns the buffered tail of the child's stderr; empty for HTTP
// sessions.
func (s *Session) StderrTail() string {
	if s.tail == nil {
		return ""
	}
	return s.tail.String()
}

// Instructions returns the server-provided usage instructions, when any.
func (s *Session) Instructions() string {
	if s.Init == nil {
		return ""
	}
	return s.Init.Instructions
}

// Close shuts the underlying connection down; idempotent.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.Client.Close()
}

// Factory builds sessions for server records.
type Factory struct {
	credentials    *store.Service
	nonInteractive bool
	log            *slog.Logger
}

// Option customises a Factory.
type Option func(*Factory)

// WithNonInteractive makes HTTP sessions surface AUTH_REQUIRED instead of
// opening a browser.
func WithNonInteractive() Option {
	return func(f *Factory) {
		f.nonInteractive = true
	}
}

// New creates a session factory backed by the given credential store.
func New(credentials *store.Service, options ...Option) *Factory {
	factory := &Factory{
		credentials: credentials,
		log:         logging.With("transport"),
	}
	for _, option := range options {
		option(factory)
	}
	return factory
}

// Connect establishes a session for the record.
func (f *Factory) Connect(ctx context.Context, record *config.Record) (*Session, error) {
	if record.IsStdio() {
		return f.connectStdio(ctx, record)
	}
	return f.connectHTTP(ctx, record)
}

func initialize(ctx context.Context, mcpClient *client.Client) (*mcp.InitializeResult, error) {
	request := mcp.InitializeRequest{}
	request.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	request.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
	request.Params.Capabilities = mcp.ClientCapabilities{}
	return mcpClient.Initialize(ctx, request)
}

// isAuthError recognises the OAuth-required signal on a connect failure.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	for _, marker := range []string{"401", "Unauthorized", "unauthorized", "invalid_token", "invalid token"} {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

func requestTimeout(record *config.Record) time.Duration {
	if record.TimeoutSeconds > 0 {
		return time.Duration(record.TimeoutSeconds) * time.Second
	}
	return 0
}

func connectError(record *config.Record, err error, tail string) error {
	if tail = strings.TrimSpace(tail); tail != "" {
		return fmt.Errorf("failed to connect to %s: %w\nserver stderr:\n%s", record.Name, err, tail)
	}
	return fmt.Errorf("failed to connect to %s: %w", record.Name, err)
}
