// Package errors defines the error kinds shared by the habit core, the
// stores and the CLI.
package errors

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/julianstephens/streak/internal/logger"
)

// Kind sentinels. Match them with errors.Is.
var (
	ErrInvalidInput = stderrors.New("invalid input")
	ErrNotFound     = stderrors.New("not found")
	ErrConflict     = stderrors.New("conflict")
)

// Error carries a kind, the failing operation and an optional cause.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match against the error's kind as well as its cause.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func newError(kind error, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// InvalidInput builds an ErrInvalidInput error for op.
func InvalidInput(op, format string, args ...interface{}) error {
	return newError(ErrInvalidInput, op, format, args...)
}

// NotFound builds an ErrNotFound error for op.
func NotFound(op, format string, args ...interface{}) error {
	return newError(ErrNotFound, op, format, args...)
}

// Conflict builds an ErrConflict error for op.
func Conflict(op, format string, args ...interface{}) error {
	return newError(ErrConflict, op, format, args...)
}

// Wrap attaches kind and op to err. A nil err stays nil.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind sentinel of err, or nil for unclassified errors.
func KindOf(err error) error {
	for _, kind := range []error{ErrInvalidInput, ErrNotFound, ErrConflict} {
		if stderrors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Is and As re-export the standard helpers so callers need one import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

func Join(errs ...error) error { return stderrors.Join(errs...) }

// Format formats an error message with a consistent "Error: " prefix
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %v", err)
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// ExitCode maps an error kind to a process exit status.
func ExitCode(err error) int {
	switch KindOf(err) {
	case ErrInvalidInput:
		return 2
	case ErrNotFound:
		return 3
	case ErrConflict:
		return 4
	default:
		return 1
	}
}

// Fatal logs an error and exits the program with a kind-specific exit code
func Fatal(err error) {
	if err != nil {
		logger.Error("Command execution failed", "error", err)
		fmt.Fprintf(os.Stderr, "%s\n", Format(err))
		os.Exit(ExitCode(err))
	}
}
