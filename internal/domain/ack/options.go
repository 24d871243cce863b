package ack

import "time"

// Option applies a configuration option to the Correlator.
type Option func(*Correlator)

// WithNackDelayWindow bounds the jittered redelivery delay applied on
// permanent failure.
func WithNackDelayWindow(min, max time.Duration) Option {
	return func(c *Correlator) {
		if min >= 0 && max >= min {
			c.nackDelayMin = min
			c.nackDelayMax = max
		}
	}
}
