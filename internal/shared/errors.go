package shared

import "errors"

var (
	// ErrMissingToken occurs when a bearer token is absent.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken occurs when a bearer token does not match the configured hash.
	ErrInvalidToken = errors.New("invalid bearer token")
)
