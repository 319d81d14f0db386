package app

import (
	"errors"

	"textingest/internal/etl"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitSchemaError = 2
	ExitFatalIO     = 3
)

// exitError carries the exit code main should use for err.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }
func (e exitError) Unwrap() error { return e.err }
func (e exitError) ExitCode() int { return e.code }

// withExitCode classifies err: schema problems exit 2, unreadable input
// exits 3, anything else exits 1.
func withExitCode(err error) error {
	if err == nil {
		return nil
	}
	var (
		se *etl.SchemaError
		fe *etl.FatalIOError
	)
	switch {
	case errors.As(err, &se):
		return exitError{code: ExitSchemaError, err: err}
	case errors.As(err, &fe):
		return exitError{code: ExitFatalIO, err: err}
	default:
		return exitError{code: ExitFailure, err: err}
	}
}
