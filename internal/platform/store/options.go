package store

import (
	"otprelay/internal/platform/logger"
)

// Option mutates Store during Open
type Option func(*Store) error

// WithLogger sets the logger used by subclients and the pg tracer
func WithLogger(log *logger.Logger) Option {
	return func(s *Store) error {
		if log != nil {
			s.Log = log
		}
		return nil
	}
}
