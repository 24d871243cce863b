package event

import "errors"

// Sentinel kinds for normalization errors.
var (
	ErrMalformedPayload = errors.New("malformed payload")
)
