package policy

import (
	"sync/atomic"

	"github.com/cexgate/cexgate/internal/pkg/metrics"
)

// Store holds the active policy snapshot. Readers get the snapshot with one
// atomic load and keep it for the duration of their call; Reload swaps in a
// brand-new snapshot and never mutates the old one, so in-flight evaluations
// are unaffected.
type Store struct {
	snap atomic.Pointer[Config]
}

func NewStore(cfg *Config) *Store {
	s := &Store{}
	if cfg == nil {
		cfg = &Config{}
	}
	s.snap.Store(cfg)
	return s
}

// Get returns the current snapshot. It never blocks.
func (s *Store) Get() *Config {
	return s.snap.Load()
}

// Reload parses and validates raw policy bytes and installs a new snapshot
// only on success. On failure the previously installed snapshot stays in
// effect and the error is returned to the caller that triggered the reload.
func (s *Store) Reload(raw []byte) error {
	cfg, err := Parse(raw)
	if err != nil {
		metrics.PolicyReloads.WithLabelValues("failure").Inc()
		return err
	}
	s.snap.Store(cfg)
	metrics.PolicyReloads.WithLabelValues("success").Inc()
	return nil
}
