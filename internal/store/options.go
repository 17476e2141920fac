package store

import (
	"time"

	"github.com/cadre-oss/patternmem/internal/event"
	"github.com/cadre-oss/patternmem/internal/resolver"
	"github.com/cadre-oss/patternmem/internal/snapshot"
	"github.com/cadre-oss/patternmem/internal/telemetry"
)

// Defaults applied when no option overrides them.
const (
	DefaultMaxPatterns = 100
	DefaultTTL         = 90 * 24 * time.Hour
)

// Option configures a Store.
type Option func(*Store)

// WithMaxPatterns sets the global capacity bound. Zero disables inserts.
func WithMaxPatterns(n int) Option {
	return func(s *Store) { s.maxPatterns = n }
}

// WithTTL sets the record time-to-live. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithResolver sets the resolver used by QueryResolved.
func WithResolver(r *resolver.Resolver) Option {
	return func(s *Store) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *telemetry.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithEventBus sets the bus lifecycle events are emitted on.
func WithEventBus(b *event.Bus) Option {
	return func(s *Store) { s.bus = b }
}

// WithSnapshotter enables persistence through Flush, Prune and Load.
func WithSnapshotter(snap snapshot.Snapshotter) Option {
	return func(s *Store) { s.snap = snap }
}

// WithDefaultStrategy sets the strategy QueryResolved uses when the caller
// passes an empty one.
func WithDefaultStrategy(st resolver.Strategy) Option {
	return func(s *Store) { s.strategy = st }
}

// WithTeamConfig sets the team preferences QueryResolved uses when the caller
// passes a zero TeamConfig.
func WithTeamConfig(tc resolver.TeamConfig) Option {
	return func(s *Store) { s.team = tc }
}
