package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/regress/internal/harness"
	"github.com/roach88/regress/internal/midi"
	"github.com/roach88/regress/internal/testdb"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // One or more cases failed
	ExitCommandError = 2 // Command error (bad path, malformed database, missing interpreter, etc.)
)

// Error codes reported in JSON responses.
const (
	CodeTestFailed  = "E_TEST_FAILED"
	CodeCommand     = "E_COMMAND"
	CodeDatabase    = "E_DATABASE"
	CodePath        = "E_PATH"
	CodeInterpreter = "E_INTERPRETER"
	CodeEventPort   = "E_EVENT_PORT"
	CodeEvent       = "E_EVENT"
	CodeTimeout     = "E_TIMEOUT"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
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

// GetExitCode extracts the exit code from an error. Errors that are not an
// ExitError come from argument parsing or aborted workflows and map to
// ExitCommandError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// errorCode classifies err for JSON responses.
func errorCode(err error) string {
	var (
		schemaErr  *testdb.SchemaError
		pathErr    *testdb.PathError
		launchErr  *harness.LaunchError
		unknownErr *midi.UnknownEventError
	)
	switch {
	case GetExitCode(err) == ExitFailure:
		return CodeTestFailed
	case errors.As(err, &schemaErr):
		return CodeDatabase
	case errors.As(err, &pathErr):
		return CodePath
	case errors.As(err, &launchErr), errors.Is(err, errInterpreterMissing):
		return CodeInterpreter
	case errors.Is(err, midi.ErrPortUnavailable), errors.Is(err, midi.ErrOverflow):
		return CodeEventPort
	case errors.As(err, &unknownErr):
		return CodeEvent
	case errors.Is(err, harness.ErrCaseTimeout):
		return CodeTimeout
	default:
		return CodeCommand
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for error text (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E_TEST_FAILED", "E_PATH", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// JSON reports whether output is machine-readable.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// Text returns the writer for human-readable progress. In JSON mode
// progress is dropped so stdout holds exactly one document.
func (f *OutputFormatter) Text() io.Writer {
	if f.JSON() {
		return io.Discard
	}
	return f.Writer
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.JSON() {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Failure outputs a result that carries an error, such as a run with
// failing cases. Text mode prints nothing; the workflow already did.
func (f *OutputFormatter) Failure(code, message string, data any) error {
	if !f.JSON() {
		return nil
	}
	return f.encode(CLIResponse{
		Status: "error",
		Data:   data,
		Error:  &CLIError{Code: code, Message: message},
	})
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.JSON() {
		return f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	w := f.GetErrWriter()
	fmt.Fprintf(w, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(w, "Details: %v\n", details)
	}
	return nil
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(resp)
}
