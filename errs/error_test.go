package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	testCases := []struct {
		err  error
		code int
	}{
		{nil, ExitOK},
		{New(ConfigNotFound, "missing"), ExitClientError},
		{New(ToolDisabled, "disabled"), ExitClientError},
		{New(ToolExecutionFailed, "boom"), ExitToolError},
		{New(ServerConnectionFailed, "refused"), ExitNetwork},
		{New(OAuthFlowError, "timeout"), ExitAuth},
		{New(AuthRequired, "auth"), ExitAuth},
		{errors.New("plain"), ExitClientError},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.code, ExitCode(testCase.err), "error: %v", testCase.err)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(ServerConnectionFailed, cause, "cannot connect to %s", "fs")
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsType(err, ServerConnectionFailed))

	// Wrapping the coded error again still exposes the type.
	outer := fmt.Errorf("outer: %w", err)
	assert.True(t, IsType(outer, ServerConnectionFailed))
	assert.Equal(t, ExitNetwork, ExitCode(outer))
}

func TestAsFallback(t *testing.T) {
	plain := errors.New("something odd")
	coded := As(plain)
	assert.Equal(t, Internal, coded.Type)
	assert.Equal(t, "something odd", coded.Message)
}
