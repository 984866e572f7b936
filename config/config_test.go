package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/mcpc/errs"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `{
		"mcpServers": {
			"fs": {"command": "mcp-fs", "args": ["--root", "/tmp"], "disabledTools": ["delete_*"]},
			"remote": {"url": "https://example.com/mcp", "headers": {"X-Team": "core"}}
		}
	}`)
	config, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"fs", "remote"}, config.Names())

	fs, err := config.Lookup("fs")
	require.NoError(t, err)
	assert.True(t, fs.IsStdio())
	assert.Equal(t, "fs", fs.Name)
	assert.Equal(t, []string{"--root", "/tmp"}, fs.Args)

	remote, err := config.Lookup("remote")
	require.NoError(t, err)
	assert.True(t, remote.IsHTTP())
}

func TestLoadFileIdempotent(t *testing.T) {
	path := writeConfig(t, `{"mcpServers": {"fs": {"command": "mcp-fs", "env": {"A": "1"}}}}`)
	first, err := LoadFile(path)
	require.NoError(t, err)
	second, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first.Servers, second.Servers)
	assert.Equal(t, first.Servers["fs"].Hash(), second.Servers["fs"].Hash())
}

func TestLookupUnknown(t *testing.T) {
	path := writeConfig(t, `{"mcpServers": {"fs": {"command": "mcp-fs"}}}`)
	config, err := LoadFile(path)
	require.NoError(t, err)
	_, err = config.Lookup("nope")
	assert.True(t, errs.IsType(err, errs.ServerNotFound))
	assert.Contains(t, errs.As(err).Details, "fs")
}

func TestValidation(t *testing.T) {
	testCases := []struct {
		description string
		content     string
		issue       string
	}{
		{
			description: "neither command nor url",
			content:     `{"mcpServers": {"x": {}}}`,
			issue:       "one of command or url",
		},
		{
			description: "both command and url",
			content:     `{"mcpServers": {"x": {"command": "a", "url": "https://b"}}}`,
			issue:       "mutually exclusive",
		},
		{
			description: "bad grant type",
			content:     `{"mcpServers": {"x": {"url": "https://b", "oauth": {"grantType": "implicit"}}}}`,
			issue:       "unsupported value",
		},
		{
			description: "client credentials without secret",
			content:     `{"mcpServers": {"x": {"url": "https://b", "oauth": {"grantType": "client_credentials", "clientId": "id"}}}}`,
			issue:       "requires clientId and clientSecret",
		},
		{
			description: "callback port out of range",
			content:     `{"mcpServers": {"x": {"url": "https://b", "oauth": {"callbackPort": 70000}}}}`,
			issue:       "outside 1-65535",
		},
		{
			description: "oauth on stdio server",
			content:     `{"mcpServers": {"x": {"command": "a", "oauth": {}}}}`,
			issue:       "only valid for url servers",
		},
	}
	for _, testCase := range testCases {
		path := writeConfig(t, testCase.content)
		_, err := LoadFile(path)
		require.Error(t, err, testCase.description)
		assert.True(t, errs.IsType(err, errs.ConfigValidationFailed), testCase.description)
		assert.Contains(t, errs.As(err).Details, testCase.issue, testCase.description)
	}
}

func TestInvalidJSON(t *testing.T) {
	path := writeConfig(t, `{"mcpServers": `)
	_, err := LoadFile(path)
	assert.True(t, errs.IsType(err, errs.ConfigInvalidJSON))
}

func TestConfigNotFound(t *testing.T) {
	t.Setenv("MCPC_CONFIG_PATH", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	workDir := t.TempDir()
	previous, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(workDir))
	defer func() { _ = os.Chdir(previous) }()

	_, err = Load("")
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ConfigNotFound))
	assert.Contains(t, errs.As(err).Details, FileName)
}

func TestEnvSubstitutionStrict(t *testing.T) {
	t.Setenv("MCPC_STRICT_ENV", "")
	os.Unsetenv("X_TOKEN")
	path := writeConfig(t, `{"mcpServers": {"x": {"url": "https://b", "headers": {"Authorization": "Bearer ${X_TOKEN}"}}}}`)
	_, err := LoadFile(path)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.MissingEnvVar))
	assert.Contains(t, errs.As(err).Message, "X_TOKEN")
}

func TestEnvSubstitutionLax(t *testing.T) {
	t.Setenv("MCPC_STRICT_ENV", "false")
	os.Unsetenv("X_TOKEN")
	path := writeConfig(t, `{"mcpServers": {"x": {"url": "https://b", "headers": {"Authorization": "Bearer ${X_TOKEN}"}}}}`)
	config, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Bearer ", config.Servers["x"].Headers["Authorization"])
}

func TestEnvSubstitutionResolved(t *testing.T) {
	t.Setenv("FS_ROOT", "/srv/data")
	path := writeConfig(t, `{"mcpServers": {"fs": {"command": "mcp-fs", "args": ["--root", "${FS_ROOT}"], "env": {"ROOT": "${FS_ROOT}"}}}}`)
	config, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/data", config.Servers["fs"].Args[1])
	assert.Equal(t, "/srv/data", config.Servers["fs"].Env["ROOT"])
}

func TestHashChangesWithRecord(t *testing.T) {
	record := &Record{Name: "fs", Command: "mcp-fs", Args: []string{"--root", "/tmp"}}
	base := record.Hash()
	assert.Len(t, base, 16)

	changed := &Record{Name: "fs", Command: "mcp-fs", Args: []string{"--root", "/var"}}
	assert.NotEqual(t, base, changed.Hash())

	same := &Record{Name: "fs", Command: "mcp-fs", Args: []string{"--root", "/tmp"}}
	assert.Equal(t, base, same.Hash())
}

func TestSettingsDefaults(t *testing.T) {
	for _, name := range []string{"MCPC_TIMEOUT", "MCPC_CONCURRENCY", "MCPC_MAX_RETRIES", "MCPC_RETRY_DELAY", "MCPC_NO_DAEMON", "MCPC_DAEMON_TIMEOUT"} {
		t.Setenv(name, "")
	}
	settings := LoadSettings()
	assert.Equal(t, DefaultTimeout, settings.Timeout)
	assert.Equal(t, DefaultConcurrency, settings.Concurrency)
	assert.Equal(t, DefaultMaxRetries, settings.MaxRetries)
	assert.False(t, settings.NoDaemon)
}

func TestSettingsOverrides(t *testing.T) {
	t.Setenv("MCPC_TIMEOUT", "60")
	t.Setenv("MCPC_CONCURRENCY", "9")
	t.Setenv("MCPC_NO_DAEMON", "1")
	settings := LoadSettings()
	assert.Equal(t, int64(60), int64(settings.Timeout.Seconds()))
	assert.Equal(t, 9, settings.Concurrency)
	assert.True(t, settings.NoDaemon)
}
