package identity

import "errors"

// Sentinel kinds for hasher construction.
var (
	ErrMissingSecret = errors.New("hmac secret must be set")
)
