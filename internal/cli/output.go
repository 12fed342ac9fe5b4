package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/chain"
	"github.com/roach88/chronicle/internal/datastore"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Verification failure (broken chain, tampered snapshot)
	ExitCommandError = 2 // Command error (bad arguments, unreadable config, store errors)
)

// Error codes reported in CLI responses.
const (
	ErrCodeGeneric            = "E001"
	ErrCodeInvalidArgument    = "E002"
	ErrCodePreconditionFailed = "E003"
	ErrCodeNotImplemented     = "E004"
	ErrCodeNotFound           = "E005"
	ErrCodeConflict           = "E006"
	ErrCodeConfig             = "E007"
	ErrCodeBrokenChain        = "E008"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode classifies err for CLI responses.
func ErrorCode(err error) string {
	var broken *chain.BrokenLinkError
	switch {
	case audit.IsInvalidArgument(err):
		return ErrCodeInvalidArgument
	case audit.IsPreconditionFailed(err):
		return ErrCodePreconditionFailed
	case audit.IsNotImplemented(err):
		return ErrCodeNotImplemented
	case errors.Is(err, datastore.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, datastore.ErrConflict):
		return ErrCodeConflict
	case errors.As(err, &broken):
		return ErrCodeBrokenChain
	case errors.Is(err, audit.ErrTampered):
		return ErrCodeBrokenChain
	case errors.Is(err, errConfig):
		return ErrCodeConfig
	default:
		return ErrCodeGeneric
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for diagnostic output (defaults to Writer)
	Verbose   bool
}

// Texter is implemented by results with their own human-readable form.
type Texter interface {
	Text(w io.Writer) error
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status    string    `json:"status"`               // "ok" or "error"
	Data      any       `json:"data,omitempty"`       // success payload
	Error     *CLIError `json:"error,omitempty"`      // error details
	RequestID string    `json:"request_id,omitempty"` // correlation id of the write, if any
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	return f.SuccessWithRequest(data, "")
}

// SuccessWithRequest is Success for results of a write correlated under
// requestID.
func (f *OutputFormatter) SuccessWithRequest(data any, requestID string) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetEscapeHTML(false)
		return enc.Encode(CLIResponse{Status: "ok", Data: data, RequestID: requestID})
	}

	if t, ok := data.(Texter); ok {
		return t.Text(f.Writer)
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns it as an ExitError with exitCode.
func (f *OutputFormatter) Fail(exitCode int, err error) error {
	if outErr := f.Error(ErrorCode(err), err.Error(), nil); outErr != nil {
		return outErr
	}
	return WrapExitError(exitCode, "command failed", err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
