package tripletnet

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error is a wrapper for specific types of errors for which there is no additional information
// necessary. These errors are defined as global variables and are usually returned wrapped, with
// context, by errors.Wrapf. errors.Cause recovers the kind.
type Error struct{ string }

func (err Error) Error() string {
	return err.string
}

// These are the kinds of errors that may be returned by this package and its subpackages.
var (
	// ErrConfiguration indicates invalid construction parameters. It is never recovered from.
	ErrConfiguration = Error{"invalid configuration"}

	// ErrInvariantViolation indicates a caller bug: an index or class out of range, or slices
	// that should have matching lengths but don't.
	ErrInvariantViolation = Error{"invariant violation"}

	// ErrNotFound is returned when a class or item that was asked for does not exist.
	ErrNotFound = Error{"not found"}

	// ErrDivisionUndefined is returned when an average is requested before anything has been
	// added to it.
	ErrDivisionUndefined = Error{"division undefined"}

	// ErrInsufficientHardCandidates is soft: fewer hard records were available than requested.
	// It is logged, never returned from regeneration.
	ErrInsufficientHardCandidates = Error{"insufficient hard candidates"}

	ErrRegisterDuplicate = Error{"name is already registered"}
	ErrRegisterNilReturn = Error{"function is nil"}
)

// NilArgError documents errors resulting from certain arguments provided to a function being nil.
type NilArgError struct{ string }

func (err NilArgError) Error() string {
	return err.string + " is nil"
}

// Cause returns ErrConfiguration: a missing collaborator is a construction mistake.
func (err NilArgError) Cause() error {
	return ErrConfiguration
}

// SizeMismatchError is returned when slices that describe the same batch have different lengths.
type SizeMismatchError struct {
	Expected, Given int
	Name            string
}

func (err SizeMismatchError) Error() string {
	return fmt.Sprintf("size mismatch in %s: expected %d, got %d", err.Name, err.Expected, err.Given)
}

// Cause returns ErrInvariantViolation, so that size mismatches are reported as the kind of error
// they are.
func (err SizeMismatchError) Cause() error {
	return ErrInvariantViolation
}

func configErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfiguration, format, args...)
}

func invariantErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvariantViolation, format, args...)
}

// IsConfiguration returns whether the root cause of err is ErrConfiguration.
func IsConfiguration(err error) bool {
	return errors.Cause(err) == ErrConfiguration
}

// IsInvariantViolation returns whether the root cause of err is ErrInvariantViolation.
func IsInvariantViolation(err error) bool {
	return errors.Cause(err) == ErrInvariantViolation
}

// IsNotFound returns whether the root cause of err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Cause(err) == ErrNotFound
}

// IsDivisionUndefined returns whether the root cause of err is ErrDivisionUndefined.
func IsDivisionUndefined(err error) bool {
	return errors.Cause(err) == ErrDivisionUndefined
}
