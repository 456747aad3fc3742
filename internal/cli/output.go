package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the hub refused, discovery failed, or a renewal failed
	ExitCommandError = 2 // the command could not run: config, database, flags
)

// ExitError carries the exit code a command should terminate with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError with no cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError caused by err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the code of the first ExitError in err's chain, or
// ExitFailure when there is none.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		return ExitFailure
	}
	return exitErr.Code
}

// Envelope wraps every JSON document a command prints.
type Envelope struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   interface{}    `json:"data,omitempty"`
	Error  *EnvelopeError `json:"error,omitempty"`
}

// EnvelopeError describes a failed command. Code is a push error code such
// as "CONFIGURATION" or "HUB_REJECTED".
type EnvelopeError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// printer writes JSON envelopes to out and --verbose diagnostics to diag,
// so diagnostics never corrupt a JSON document.
type printer struct {
	out     io.Writer
	diag    io.Writer
	verbose bool
}

func newPrinter(cmd *cobra.Command, opts *RootOptions) *printer {
	return &printer{
		out:     cmd.OutOrStdout(),
		diag:    cmd.ErrOrStderr(),
		verbose: opts.Verbose,
	}
}

// ok prints data in an "ok" envelope.
func (p *printer) ok(data interface{}) error {
	return json.NewEncoder(p.out).Encode(Envelope{Status: "ok", Data: data})
}

// fail prints an "error" envelope. details may be nil.
func (p *printer) fail(code, message string, details interface{}) error {
	return json.NewEncoder(p.out).Encode(Envelope{
		Status: "error",
		Error:  &EnvelopeError{Code: code, Message: message, Details: details},
	})
}

// tracef prints one diagnostic line when --verbose is set.
func (p *printer) tracef(format string, args ...interface{}) {
	if !p.verbose {
		return
	}
	fmt.Fprintf(p.diag, format+"\n", args...)
}
