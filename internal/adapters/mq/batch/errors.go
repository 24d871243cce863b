package batch

import "errors"

// Sentinel errors for queue lifecycle handling.
var (
	ErrShutdownTimeout = errors.New("queue shutdown timed out")
)
