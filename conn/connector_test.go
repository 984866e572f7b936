package conn

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/mcpc/auth/store"
	"github.com/viant/mcpc/config"
	"github.com/viant/mcpc/errs"
)

func testCatalogue(t *testing.T, content string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	catalogue, err := config.LoadFile(path)
	require.NoError(t, err)
	return catalogue
}

func TestConnectUnknownServer(t *testing.T) {
	catalogue := testCatalogue(t, `{"mcpServers": {"fs": {"command": "mcp-fs"}}}`)
	connector := NewConnector(catalogue, config.LoadSettings(), store.New(t.TempDir()))

	_, err := connector.Connect(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ServerNotFound))
}

func TestConnectFailureIsCoded(t *testing.T) {
	// A command that cannot be spawned is a terminal failure: no retries, a
	// SERVER_CONNECTION_FAILED surfaces, and the daemon path never engages.
	t.Setenv("MCPC_NO_DAEMON", "1")
	t.Setenv("MCPC_RETRY_DELAY", "1")
	catalogue := testCatalogue(t, `{"mcpServers": {"fs": {"command": "/nonexistent/mcp-binary-for-test"}}}`)
	connector := NewConnector(catalogue, config.LoadSettings(), store.New(t.TempDir()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	started := time.Now()
	_, err := connector.Connect(ctx, "fs")
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ServerConnectionFailed))
	assert.Less(t, time.Since(started), 8*time.Second)
}
