// Package cli implements the partialdump command line.
package cli

import (
	"errors"
	"fmt"
	"os"

	"partialdump/internal/dump"
	"partialdump/internal/service"
)

// Exit codes.
const (
	ExitSuccess   = 0
	ExitGeneral   = 1
	ExitConfig    = 2
	ExitQuery     = 3
	ExitDBConnect = 4
	ExitPatch     = 5
)

// ExitError wraps an error with an exit code.
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

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitWithError prints the error and exits with the appropriate code.
func ExitWithError(err error) {
	exitErr := Classify(err)
	fmt.Fprintln(os.Stderr, "Error:", exitErr.Error())
	os.Exit(exitErr.Code)
}

// Classify maps err to an ExitError. Errors that already carry a code keep it.
func Classify(err error) *ExitError {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	var (
		tmplErr  *dump.TemplateFormatError
		patchErr *dump.PatchError
		queryErr *dump.QueryExecutionError
		connErr  *service.ConnectError
	)
	switch {
	case errors.As(err, &tmplErr):
		return ConfigError("invalid relation template", err)
	case errors.As(err, &patchErr):
		return PatchError("patch failed", err)
	case errors.As(err, &connErr):
		return DBConnectError("connecting to database", err)
	case errors.As(err, &queryErr):
		return QueryError("dump failed", err)
	default:
		return GeneralError("dump failed", err)
	}
}

// ConfigError creates an ExitError with ExitConfig code.
func ConfigError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitConfig, Message: msg, Err: err}
}

// QueryError creates an ExitError with ExitQuery code.
func QueryError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitQuery, Message: msg, Err: err}
}

// DBConnectError creates an ExitError with ExitDBConnect code.
func DBConnectError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitDBConnect, Message: msg, Err: err}
}

// PatchError creates an ExitError with ExitPatch code.
func PatchError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitPatch, Message: msg, Err: err}
}

// GeneralError creates an ExitError with ExitGeneral code.
func GeneralError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitGeneral, Message: msg, Err: err}
}
