package cli

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/viant/mcpc/errs"
)

// callTarget is a parsed call invocation.
type callTarget struct {
	Server    string
	Tool      string
	Arguments map[string]interface{}
}

// parseCallTarget accepts both "<server> <tool> [<json>]" and
// "<server>/<tool> [<json>]"; JSON arguments default to standard input when
// omitted and stdin is not a terminal.
func parseCallTarget(args []string) (*callTarget, error) {
	if len(args) == 0 {
		return nil, errs.New(errs.MissingArgument, "call requires a server and a tool").
			WithSuggestion("usage: mcpc call <server> <tool> [<json>]")
	}
	target := &callTarget{}
	rest := args
	if strings.Contains(args[0], "/") {
		parts := strings.Split(args[0], "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, errs.New(errs.InvalidTarget, "invalid target %q", args[0]).
				WithSuggestion("use <server>/<tool> with exactly one slash")
		}
		target.Server, target.Tool = parts[0], parts[1]
		rest = args[1:]
	} else {
		if len(args) < 2 {
			return nil, errs.New(errs.MissingArgument, "call requires a tool name").
				WithSuggestion("usage: mcpc call <server> <tool> [<json>]")
		}
		target.Server, target.Tool = args[0], args[1]
		rest = args[2:]
	}
	if len(rest) > 1 {
		return nil, errs.New(errs.TooManyArguments, "call accepts at most one JSON argument").
			WithSuggestion("pass the arguments as a single quoted JSON object")
	}
	raw := ""
	if len(rest) == 1 {
		raw = rest[0]
	}
	arguments, err := readArguments(raw, os.Stdin)
	if err != nil {
		return nil, err
	}
	target.Arguments = arguments
	return target, nil
}

// readArguments resolves the JSON argument source: an explicit literal, "-"
// to force stdin, or stdin when piped; an interactive terminal with no
// argument means no arguments.
func readArguments(raw string, stdin *os.File) (map[string]interface{}, error) {
	if raw == "" || raw == "-" {
		fromPipe := raw == "-"
		if !fromPipe {
			if info, err := stdin.Stat(); err == nil && info.Mode()&os.ModeCharDevice == 0 {
				fromPipe = true
			}
		}
		if !fromPipe {
			return map[string]interface{}{}, nil
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidJSONArguments, err, "cannot read JSON arguments from stdin")
		}
		raw = strings.TrimSpace(string(data))
		if raw == "" {
			return map[string]interface{}{}, nil
		}
	}
	arguments := map[string]interface{}{}
	if err := json.Unmarshal([]byte(raw), &arguments); err != nil {
		return nil, errs.Wrap(errs.InvalidJSONArguments, err, "tool arguments are not a JSON object").
			WithDetails("%v", err).
			WithSuggestion("pass a JSON object such as '{\"path\": \"/tmp/x\"}'")
	}
	return arguments, nil
}
