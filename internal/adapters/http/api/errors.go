package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("malformed request body")
	ErrQueryParam  = errors.New("malformed query parameter")
	ErrMissingPath = errors.New("missing path parameter")
)
