// Package errs defines the coded error taxonomy shared by the CLI surface and
// the connection plane. Errors carry a stable type, an optional detail and a
// recovery suggestion so that machine callers (agents spawning the CLI) can
// recover deterministically.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Type identifies an error class.
type Type string

const (
	ConfigNotFound         Type = "CONFIG_NOT_FOUND"
	ConfigInvalidJSON      Type = "CONFIG_INVALID_JSON"
	ConfigValidationFailed Type = "CONFIG_VALIDATION_FAILED"
	MissingEnvVar          Type = "MISSING_ENV_VAR"

	ServerNotFound         Type = "SERVER_NOT_FOUND"
	ServerConnectionFailed Type = "SERVER_CONNECTION_FAILED"

	ToolNotFound        Type = "TOOL_NOT_FOUND"
	ToolDisabled        Type = "TOOL_DISABLED"
	ToolExecutionFailed Type = "TOOL_EXECUTION_FAILED"

	AmbiguousCommand     Type = "AMBIGUOUS_COMMAND"
	UnknownSubcommand    Type = "UNKNOWN_SUBCOMMAND"
	MissingArgument      Type = "MISSING_ARGUMENT"
	TooManyArguments     Type = "TOO_MANY_ARGUMENTS"
	UnknownOption        Type = "UNKNOWN_OPTION"
	InvalidTarget        Type = "INVALID_TARGET"
	InvalidJSONArguments Type = "INVALID_JSON_ARGUMENTS"

	OAuthConfigError Type = "OAUTH_CONFIG_ERROR"
	OAuthFlowError   Type = "OAUTH_FLOW_ERROR"
	AuthRequired     Type = "AUTH_REQUIRED"
)

// Exit codes used by the CLI.
const (
	ExitOK          = 0
	ExitClientError = 1
	ExitToolError   = 2
	ExitNetwork     = 3
	ExitAuth        = 4
	ExitInterrupted = 130
	ExitTerminated  = 143
)

// Error is a coded, user-facing error.
type Error struct {
	Type       Type
	Message    string
	Details    string
	Suggestion string
	cause      error
}

// New creates a coded error with a formatted message.
func New(kind Type, format string, args ...interface{}) *Error {
	return &Error{Type: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error preserving the underlying cause.
func Wrap(kind Type, cause error, format string, args ...interface{}) *Error {
	return &Error{Type: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WithDetails attaches a detail line.
func (e *Error) WithDetails(format string, args ...interface{}) *Error {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// WithSuggestion attaches a recovery suggestion.
func (e *Error) WithSuggestion(format string, args ...interface{}) *Error {
	e.Suggestion = fmt.Sprintf(format, args...)
	return e
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Format renders the canonical user-facing shape written to the error channel.
func (e *Error) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error [%s]: %s", e.Type, e.Message)
	if e.Details != "" {
		fmt.Fprintf(&b, "\n  Details: %s", e.Details)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "\n  Suggestion: %s", e.Suggestion)
	}
	return b.String()
}

// ExitCode maps an error to the process exit code contract.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var coded *Error
	if !errors.As(err, &coded) {
		return ExitClientError
	}
	switch coded.Type {
	case ServerConnectionFailed:
		return ExitNetwork
	case ToolExecutionFailed:
		return ExitToolError
	case OAuthConfigError, OAuthFlowError, AuthRequired:
		return ExitAuth
	default:
		return ExitClientError
	}
}

// Internal classifies failures that escaped the taxonomy; rendered verbatim.
const Internal Type = "ERROR"

// As extracts a coded error, or wraps a plain error into a generic one.
func As(err error) *Error {
	var coded *Error
	if errors.As(err, &coded) {
		return coded
	}
	return &Error{Type: Internal, Message: err.Error(), cause: err}
}

// IsType reports whether err carries the given error type.
func IsType(err error, kind Type) bool {
	var coded *Error
	return errors.As(err, &coded) && coded.Type == kind
}
