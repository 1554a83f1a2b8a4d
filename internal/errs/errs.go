// Package errs defines the failure kinds surfaced by the motion judgment engine.
//
// Every error returned by the engine wraps exactly one of the kinds below so
// callers can tell "bad input" apart from "missing data" with errors.Is.
// Insufficient-signal outcomes are not errors; they are judgment 0.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks caller-correctable input problems.
	ErrValidation = errors.New("validation error")
	// ErrUnavailable marks missing or degenerate data the engine depends on.
	ErrUnavailable = errors.New("data unavailable")
)

// Validationf returns a validation error with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsUnavailable reports whether err is a data-availability failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
