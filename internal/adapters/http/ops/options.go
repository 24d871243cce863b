package ops

import "github.com/mozilla/fxa-amplitude-send/pkg/logger"

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for the server.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}
