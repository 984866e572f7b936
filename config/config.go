// Package config loads and validates the server catalogue. The catalogue is a
// JSON document with an mcpServers mapping; records are read-only once loaded.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/viant/mcpc/errs"
)

// FileName is the default catalogue file name.
const FileName = "mcpc.json"

// GrantType values recognised in an OAuth block.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantClientCredentials = "client_credentials"
)

// OAuth configures the authorization flow for an HTTP server.
type OAuth struct {
	GrantType       string `json:"grantType,omitempty"`
	ClientID        string `json:"clientId,omitempty"`
	ClientSecret    string `json:"clientSecret,omitempty"`
	Scope           string `json:"scope,omitempty"`
	CallbackPort    int    `json:"callbackPort,omitempty"`
	CallbackPorts   []int  `json:"callbackPorts,omitempty"`
	OAuth2ConfigURL string `json:"oauth2ConfigURL,omitempty"`
}

// Grant returns the effective grant type.
func (o *OAuth) Grant() string {
	if o == nil || o.GrantType == "" {
		return GrantAuthorizationCode
	}
	return o.GrantType
}

// Record describes one configured server; exactly one of Command or URL is set.
type Record struct {
	Name string `json:"-"`

	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`

	URL            string            `json:"url,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	TimeoutSeconds int               `json:"timeout,omitempty"`
	OAuth          *OAuth            `json:"oauth,omitempty"`

	AllowedTools  []string `json:"allowedTools,omitempty"`
	DisabledTools []string `json:"disabledTools,omitempty"`
}

// IsStdio reports whether the record spawns a local subprocess.
func (r *Record) IsStdio() bool {
	return r.Command != ""
}

// IsHTTP reports whether the record targets a remote endpoint.
func (r *Record) IsHTTP() bool {
	return r.URL != ""
}

// Config is the validated catalogue.
type Config struct {
	Servers map[string]*Record `json:"mcpServers"`
	path    string
}

// Path returns the file the catalogue was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Names returns the configured server names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves a server record by name.
func (c *Config) Lookup(name string) (*Record, error) {
	if record, ok := c.Servers[name]; ok {
		return record, nil
	}
	return nil, errs.New(errs.ServerNotFound, "server %q is not configured", name).
		WithDetails("available servers: %s", strings.Join(c.Names(), ", ")).
		WithSuggestion("run mcpc with no arguments to list configured servers")
}

// SearchPaths returns the catalogue discovery order; explicit (flag) first,
// then the MCPC_CONFIG_PATH pointer, working directory, home and XDG config.
func SearchPaths(explicit string) []string {
	var paths []string
	if explicit != "" {
		paths = append(paths, explicit)
	}
	if fromEnv := os.Getenv("MCPC_CONFIG_PATH"); fromEnv != "" {
		paths = append(paths, fromEnv)
	}
	paths = append(paths, FileName)
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, "."+FileName),
			filepath.Join(home, ".config", "mcpc", FileName))
	}
	return paths
}

// Load discovers, parses, validates and env-expands the catalogue.
func Load(explicit string) (*Config, error) {
	searched := SearchPaths(explicit)
	var path string
	for _, candidate := range searched {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			path = candidate
			break
		}
	}
	if path == "" {
		return nil, errs.New(errs.ConfigNotFound, "no configuration file found").
			WithDetails("searched: %s", strings.Join(searched, ", ")).
			WithSuggestion("create %s or set MCPC_CONFIG_PATH", FileName)
	}
	return LoadFile(path)
}

// LoadFile parses and validates one catalogue file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ConfigNotFound, err, "cannot read %s", path)
	}
	config := &Config{path: path}
	if err := json.Unmarshal(data, config); err != nil {
		return nil, errs.Wrap(errs.ConfigInvalidJSON, err, "invalid JSON in %s", path).
			WithDetails("%v", err)
	}
	for name, record := range config.Servers {
		if record != nil {
			record.Name = name
		}
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	if err := config.expandEnv(StrictEnv()); err != nil {
		return nil, err
	}
	return config, nil
}

// StrictEnv reports whether unset ${VAR} references abort the load; lax mode
// is enabled with MCPC_STRICT_ENV=false.
func StrictEnv() bool {
	switch strings.ToLower(os.Getenv("MCPC_STRICT_ENV")) {
	case "false", "0", "no":
		return false
	}
	return true
}

func (c *Config) validate() error {
	var issues []string
	if c.Servers == nil {
		issues = append(issues, "mcpServers: required mapping is missing")
	}
	for _, name := range c.Names() {
		record := c.Servers[name]
		root := fmt.Sprintf("mcpServers.%s", name)
		if record == nil {
			issues = append(issues, root+": must be an object")
			continue
		}
		switch {
		case record.Command == "" && record.URL == "":
			issues = append(issues, root+": one of command or url is required")
		case record.Command != "" && record.URL != "":
			issues = append(issues, root+": command and url are mutually exclusive")
		}
		if record.Command == "" {
			if record.Cwd != "" {
				issues = append(issues, root+".cwd: only valid for command servers")
			}
			if len(record.Args) > 0 {
				issues = append(issues, root+".args: only valid for command servers")
			}
		}
		if record.URL == "" && record.OAuth != nil {
			issues = append(issues, root+".oauth: only valid for url servers")
		}
		// Substitution runs after validation; only literal paths are checked.
		if record.Cwd != "" && !strings.Contains(record.Cwd, "${") && !filepath.IsAbs(record.Cwd) {
			issues = append(issues, root+".cwd: must be an absolute path")
		}
		issues = append(issues, validateOAuth(root+".oauth", record.OAuth)...)
	}
	if len(issues) > 0 {
		return errs.New(errs.ConfigValidationFailed, "configuration is invalid").
			WithDetails("%s", strings.Join(issues, "; "))
	}
	return nil
}

func validateOAuth(root string, oauth *OAuth) []string {
	if oauth == nil {
		return nil
	}
	var issues []string
	switch oauth.Grant() {
	case GrantAuthorizationCode:
	case GrantClientCredentials:
		if oauth.OAuth2ConfigURL == "" && (oauth.ClientID == "" || oauth.ClientSecret == "") {
			issues = append(issues, root+": client_credentials requires clientId and clientSecret")
		}
	default:
		issues = append(issues, fmt.Sprintf("%s.grantType: unsupported value %q", root, oauth.GrantType))
	}
	if oauth.CallbackPort != 0 && (oauth.CallbackPort < 1 || oauth.CallbackPort > 65535) {
		issues = append(issues, fmt.Sprintf("%s.callbackPort: %d outside 1-65535", root, oauth.CallbackPort))
	}
	for i, port := range oauth.CallbackPorts {
		if port < 0 || port > 65535 {
			issues = append(issues, fmt.Sprintf("%s.callbackPorts[%d]: %d outside 0-65535", root, i, port))
		}
	}
	return issues
}
