package config

import (
	"sync/atomic"

	"github.com/RyanBlaney/sonido-pitch/algorithms/tonal"
)

// Store publishes the current Config. Readers get an immutable snapshot;
// Update swaps in a new one atomically.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore creates a store holding cfg, or Default when cfg is nil
func NewStore(cfg *Config) *Store {
	if cfg == nil {
		cfg = Default()
	}
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Load returns the current snapshot. Callers must not modify it.
func (s *Store) Load() *Config {
	return s.current.Load()
}

// Update validates cfg and makes it current. An invalid config leaves the
// store unchanged.
func (s *Store) Update(cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	s.current.Store(cfg)
	return nil
}

// Detector returns the current detector configuration. It satisfies
// pipeline.ConfigSource.
func (s *Store) Detector() tonal.DetectorConfig {
	return s.current.Load().Detector
}
