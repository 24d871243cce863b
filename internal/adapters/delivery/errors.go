package delivery

import "errors"

// Sentinel kinds for delivery errors.
var (
	ErrDeliveryFailed  = errors.New("delivery failed")
	ErrUnroutableClass = errors.New("no endpoint for event class")
)
