package source

import "errors"

// Sentinel errors for subscription setup.
var (
	ErrSubscriptionUnavailable = errors.New("subscription unavailable")
)
