// Package errs defines the error kinds shared by the ranking engine.
//
// Every error returned across a package boundary carries exactly one kind so
// callers can branch with errors.Is without inspecting messages.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel kinds.
var (
	// ErrNotFound is returned when a required entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is returned for malformed or out-of-range input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDataIntegrity marks inconsistent source data. It is absorbed where it
	// is detected and only surfaces in logs, metrics and response flags.
	ErrDataIntegrity = errors.New("data integrity")
	// ErrUnexpected marks collaborator or storage failures.
	ErrUnexpected = errors.New("unexpected")
)

var kinds = []error{ErrNotFound, ErrInvalidArgument, ErrDataIntegrity, ErrUnexpected}

// Error annotates a kind with the failing operation and an optional cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewKind returns an error of the given kind without a cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind attaches a kind to err. A nil err yields nil.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap adds op context to err, keeping its kind when it already has one and
// classifying it as ErrUnexpected otherwise.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: KindOf(err), Err: err}
}

// Invalidf is shorthand for an ErrInvalidArgument with a formatted message.
func Invalidf(op, format string, args ...any) error {
	return &Error{Op: op, Kind: ErrInvalidArgument, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind carried by err, ErrUnexpected when none is found and
// nil for a nil err.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrUnexpected
}

// IsNotFound reports whether err is of kind ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalid reports whether err is of kind ErrInvalidArgument.
func IsInvalid(err error) bool { return errors.Is(err, ErrInvalidArgument) }
