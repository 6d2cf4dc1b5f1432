package seed

import "errors"

var (
	// ErrUnexpectedStatus is returned when the service answers with a status the run cannot use.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
	// ErrMismatch is returned when the published rankings disagree with the seeded statistics.
	ErrMismatch = errors.New("rankings mismatch")
	// ErrInvalidConfig is returned for unusable run parameters.
	ErrInvalidConfig = errors.New("invalid seed configuration")
)
