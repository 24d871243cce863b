package flowevents

import "errors"

// Sentinel errors for row decoding.
var (
	ErrMalformedRow = errors.New("malformed activity row")
)
