// Package errorsx is this gateway's error type, adapted from the CLI
// tool's pkg/errors: a typed error carrying an exit code and an
// optionally-wrapped underlying cause, retargeted at a headless daemon's
// exit codes and domain sentinels instead of a CLI's.
package errorsx

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// ExitCode is returned from main() on process exit, per spec.md §6.
type ExitCode int

const (
	ExitCodeSuccess       ExitCode = 0
	ExitCodeGeneral       ExitCode = 1
	ExitCodeConfig        ExitCode = 2
	ExitCodeDBUnavailable ExitCode = 3
)

// Error is a typed error carrying an exit code, a user-facing message,
// and (optionally) the underlying cause it wraps.
type Error struct {
	Code       ExitCode
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Underlying }

// New builds an Error with no underlying cause.
func New(code ExitCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error with an underlying cause.
func Wrap(code ExitCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Underlying: err}
}

// ConfigError reports a problem loading or validating configuration.
func ConfigError(message string, err error) *Error {
	return Wrap(ExitCodeConfig, message, err)
}

// DBUnavailableError reports that the local Gateway store could not be
// opened at startup — the one failure mode spec.md §6 calls out as
// fatal ("non-zero only on unrecoverable startup failure (cannot open
// DB)").
func DBUnavailableError(err error) *Error {
	return Wrap(ExitCodeDBUnavailable, "cannot open local gateway store", err)
}

// HandleReturn prints err to stderr (if non-nil) and returns the exit
// code the caller's main() should use, following the teacher's
// HandleReturn idiom (print, don't exit, so library code stays
// testable).
func HandleReturn(err error) ExitCode {
	if err == nil {
		return ExitCodeSuccess
	}

	code := ExitCodeGeneral
	message := err.Error()
	if e, ok := err.(*Error); ok {
		code = e.Code
		message = e.Message
		if e.Underlying != nil {
			message = fmt.Sprintf("%s: %v", e.Message, e.Underlying)
		}
	}

	red := color.New(color.FgRed, color.Bold)
	fmt.Fprintln(os.Stderr)
	red.Fprint(os.Stderr, "Error: ")
	fmt.Fprintln(os.Stderr, message)
	fmt.Fprintln(os.Stderr)

	return code
}
