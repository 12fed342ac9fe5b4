package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/chain"
	"github.com/roach88/chronicle/internal/datastore"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.SuccessWithRequest(map[string]string{"key": "Note:<n1>"}, "req-1")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Note:<n1>", "no HTML escaping")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "req-1", resp.RequestID)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error(ErrCodeConflict, "write conflict", nil))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeConflict, resp.Error.Code)
	assert.Equal(t, "write conflict", resp.Error.Message)
}

func TestOutputFormatter_TextUsesTexter(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(SaveResult{Key: "Note:n1", DataHash: "d", RevHash: "r", Changed: true}))
	assert.Equal(t, "Note:n1 changed data=d rev=r\n", buf.String())
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	require.NoError(t, formatter.Error(ErrCodeGeneric, "failed", map[string]string{"key": "Note:n1"}))
	assert.Contains(t, buf.String(), "Error [E001]: failed")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}

	formatter.VerboseLog("verified %d", 3)
	assert.Empty(t, out.String())
	assert.Equal(t, "verified 3\n", errOut.String())

	formatter.Verbose = false
	formatter.VerboseLog("hidden")
	assert.Equal(t, "verified 3\n", errOut.String())
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	cause := audit.Errorf(audit.CodeNotImplemented, nil, "no account")
	err := formatter.Fail(ExitCommandError, cause)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, buf.String(), "Error [E004]")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("wrapped: %w", WrapExitError(ExitFailure, "x", nil))))
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errors.New("x"), ErrCodeGeneric},
		{audit.Errorf(audit.CodeInvalidArgument, nil, "x"), ErrCodeInvalidArgument},
		{audit.Errorf(audit.CodePreconditionFailed, nil, "x"), ErrCodePreconditionFailed},
		{audit.Errorf(audit.CodeNotImplemented, nil, "x"), ErrCodeNotImplemented},
		{fmt.Errorf("get: %w", datastore.ErrNotFound), ErrCodeNotFound},
		{fmt.Errorf("commit: %w", datastore.ErrConflict), ErrCodeConflict},
		{&chain.BrokenLinkError{Index: 0, RevHash: "r", Reason: "x"}, ErrCodeBrokenChain},
		{fmt.Errorf("verify: %w", audit.ErrTampered), ErrCodeBrokenChain},
		{fmt.Errorf("%w: %w", errConfig, errors.New("x")), ErrCodeConfig},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorCode(tt.err), tt.err.Error())
	}
}
