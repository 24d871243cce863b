package filter

import "errors"

// Sentinel kinds for ignore-list configuration.
var (
	ErrInvalidRules = errors.New("invalid ignore-list rules")
)
