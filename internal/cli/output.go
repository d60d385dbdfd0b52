package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes returned by simk.
const (
	ExitSuccess = 0
	// ExitFailure means the command ran and found a problem: invalid
	// content, failing scenarios, a world error during a run.
	ExitFailure = 1
	// ExitCommandError means the command could not do its job: bad
	// arguments, missing paths, an unreadable event log.
	ExitCommandError = 2
)

// ExitError carries the process exit code for an error returned by a
// command. main passes it to os.Exit through GetExitCode.
type ExitError struct {
	Code    int
	Message string
	Err     error // optional cause
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError wrapping err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code. Errors that are not
// ExitErrors count as failures.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the envelope of every --format json output.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
	RunID  string    `json:"run_id,omitempty"` // event log run the output refers to
}

// CLIError is the error part of a CLIResponse.
type CLIError struct {
	Code    string `json:"code"` // E001, E101, ...
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results as text or JSON. Diagnostics go
// to ErrWriter so they never end up inside a JSON document on Writer.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // defaults to Writer
	Verbose   bool
}

func (f *OutputFormatter) json() bool { return f.Format == "json" }

// respond writes r as one indented JSON document.
func (f *OutputFormatter) respond(r CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Success writes data as an "ok" response, or prints it as text.
func (f *OutputFormatter) Success(data any) error {
	if f.json() {
		return f.respond(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Fail writes an "error" response that carries a result alongside the
// first error, e.g. every failing scenario or validation error. It only
// writes in JSON mode; text output is the caller's.
func (f *OutputFormatter) Fail(data any, first CLIError) error {
	if !f.json() {
		return nil
	}
	return f.respond(CLIResponse{Status: "error", Data: data, Error: &first})
}

// Error writes a single error.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.json() {
		return f.respond(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// commandError reports a problem that kept a command from doing its job
// and returns the matching ExitCommandError.
func (f *OutputFormatter) commandError(code, message string) error {
	if err := f.Error(code, message, nil); err != nil {
		return err
	}
	return NewExitError(ExitCommandError, code+": "+message)
}

// VerboseLog prints a diagnostic line when Verbose is set.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.diagnostics(), format+"\n", args...)
	}
}

func (f *OutputFormatter) diagnostics() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
