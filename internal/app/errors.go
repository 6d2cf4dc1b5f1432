package app

import "errors"

// Sentinel errors of the match intake.
var (
	// ErrBackpressure is returned when the match queue is full.
	ErrBackpressure = errors.New("match queue full")
	// ErrNotStarted is returned when matches arrive before Start or after Stop.
	ErrNotStarted = errors.New("service not running")
)
