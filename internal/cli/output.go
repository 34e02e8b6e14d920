package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit codes. Probe failures never raise the exit code: a run
// that completes reports them through the summary and the report file.
const (
	ExitSuccess      = 0 // run completed, report written
	ExitFailure      = 1 // run-level failure: insufficient privilege, lock unexpectedly acquired
	ExitCommandError = 2 // environment fault: unreadable config, missing mount utility
)

// ExitError carries the process exit code alongside the message. Command
// implementations return it from RunE; main translates it via GetExitCode.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError builds an ExitError with no underlying cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code and context to an existing error.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode resolves the process exit code for err, walking wrapped
// errors. Anything that is not an ExitError maps to ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results in the operator-selected format.
type OutputFormatter struct {
	Format string // "json" | "text"
	Writer io.Writer
}

// Response is the JSON envelope wrapping every machine-readable result.
type Response struct {
	Status string         `json:"status"` // "ok" | "error"
	Data   interface{}    `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError mirrors an ExitError for JSON consumers.
type ResponseError struct {
	ExitCode int    `json:"exit_code"`
	Message  string `json:"message"`
}

// Success writes a completed result: the JSON envelope in json mode,
// plain text otherwise.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Failure writes an aborted run as an error envelope, so json consumers
// always receive well-formed output on stdout. In text mode it writes
// nothing; the process-level error printer owns the message there.
func (f *OutputFormatter) Failure(err error) error {
	if f.Format != "json" {
		return nil
	}
	return json.NewEncoder(f.Writer).Encode(Response{
		Status: "error",
		Error: &ResponseError{
			ExitCode: GetExitCode(err),
			Message:  err.Error(),
		},
	})
}
