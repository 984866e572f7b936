package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/viant/mcpc/errs"
)

// expandEnv substitutes ${VAR} references in every string leaf of the
// catalogue. In strict mode any unset variable aborts the load listing all
// unset names; in lax mode unset variables expand to the empty string and a
// diagnostic goes to stderr.
func (c *Config) expandEnv(strict bool) error {
	missing := map[string]bool{}
	expand := func(value string) string {
		return os.Expand(value, func(name string) string {
			if resolved, ok := os.LookupEnv(name); ok {
				return resolved
			}
			missing[name] = true
			return ""
		})
	}
	for _, record := range c.Servers {
		record.Command = expand(record.Command)
		record.URL = expand(record.URL)
		record.Cwd = expand(record.Cwd)
		for i, arg := range record.Args {
			record.Args[i] = expand(arg)
		}
		for key, value := range record.Env {
			record.Env[key] = expand(value)
		}
		for key, value := range record.Headers {
			record.Headers[key] = expand(value)
		}
		for i, pattern := range record.AllowedTools {
			record.AllowedTools[i] = expand(pattern)
		}
		for i, pattern := range record.DisabledTools {
			record.DisabledTools[i] = expand(pattern)
		}
		if oauth := record.OAuth; oauth != nil {
			oauth.ClientID = expand(oauth.ClientID)
			oauth.ClientSecret = expand(oauth.ClientSecret)
			oauth.Scope = expand(oauth.Scope)
			oauth.OAuth2ConfigURL = expand(oauth.OAuth2ConfigURL)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	if strict {
		return errs.New(errs.MissingEnvVar, "unset environment variable(s): %s", strings.Join(names, ", ")).
			WithSuggestion("export the variable(s) or set MCPC_STRICT_ENV=false")
	}
	fmt.Fprintf(os.Stderr, "mcpc: warning: unset environment variable(s) expanded to empty: %s\n", strings.Join(names, ", "))
	return nil
}
