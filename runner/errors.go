package runner

import (
	"fmt"

	"github.com/evergreen-ci/lattice"
	"github.com/pkg/errors"
)

// PhaseError records the failure of one phase of one matrix entry's
// pipeline. Any phase failure is terminal for its entry; there is no
// retry. The phase name carries the failure's classification: an install
// failure is a dependency resolution problem, a script failure is a test
// failure, and anything else is a plain phase failure.
type PhaseError struct {
	Entry    string
	Phase    string
	Command  string
	ExitCode int
	cause    error
}

func newPhaseError(entry, phase, command string, exitCode int, cause error) *PhaseError {
	return &PhaseError{
		Entry:    entry,
		Phase:    phase,
		Command:  command,
		ExitCode: exitCode,
		cause:    cause,
	}
}

func (e *PhaseError) Error() string {
	msg := fmt.Sprintf("entry '%s' failed in phase '%s'", e.Entry, e.Phase)
	if e.Command != "" {
		msg = fmt.Sprintf("%s running '%s'", msg, e.Command)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.cause.Error())
	}
	return msg
}

// Cause supports errors.Cause unwrapping.
func (e *PhaseError) Cause() error { return e.cause }

// Unwrap supports the standard library's errors.Is/As unwrapping.
func (e *PhaseError) Unwrap() error { return e.cause }

// AsPhaseError extracts a PhaseError from anywhere in err's cause chain.
func AsPhaseError(err error) (*PhaseError, bool) {
	for err != nil {
		if pe, ok := err.(*PhaseError); ok {
			return pe, true
		}
		err = errors.Unwrap(err)
	}
	return nil, false
}

// IsDependencyResolutionError reports whether err represents a failure to
// resolve or install the package under test or its dependencies.
func IsDependencyResolutionError(err error) bool {
	pe, ok := AsPhaseError(err)
	return ok && pe.Phase == lattice.PhaseInstall
}

// IsTestFailure reports whether err represents a failing test suite.
func IsTestFailure(err error) bool {
	pe, ok := AsPhaseError(err)
	return ok && pe.Phase == lattice.PhaseScript
}
