package repository

import (
	"time"

	"github.com/opencourts/courtmap/pkg/logger"
)

// Option applies a configuration option to the MemStore.
type Option func(*MemStore)

// WithLockWait sets the bounded wait for row lock acquisition.
func WithLockWait(d time.Duration) Option {
	return func(s *MemStore) {
		if d > 0 {
			s.lockWait = d
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *MemStore) {
		if l != nil {
			s.log = l
		}
	}
}

// PGOption applies a configuration option to the PGStore.
type PGOption func(*PGStore)

// WithPGLockTimeout sets the per-transaction lock_timeout used by WithLock.
func WithPGLockTimeout(d time.Duration) PGOption {
	return func(s *PGStore) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithPGLogger sets a custom logger for the store.
func WithPGLogger(l logger.Logger) PGOption {
	return func(s *PGStore) {
		if l != nil {
			s.log = l
		}
	}
}
