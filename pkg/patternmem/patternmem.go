// Package patternmem provides a public API for the shared pattern memory.
//
// Agents share one Store, either in-process:
//
//	st := patternmem.NewStore(patternmem.WithMaxPatterns(500))
//	id, err := st.Insert(patternmem.Record{
//		Name:             "parameterized queries",
//		Category:         patternmem.CategorySecurity,
//		Confidence:       0.9,
//		ContextSignature: patternmem.Signature("go", "database"),
//		ContributorID:    "reviewer",
//	})
//
// or through an Engine built from patternmem.yaml, which adds persistence,
// hooks and metrics:
//
//	eng, err := patternmem.Open(".")
//	defer eng.Close()
//	defaults := eng.Session("form-filler").SuggestDefaults("component", ctx)
package patternmem

import (
	"fmt"

	"github.com/cadre-oss/patternmem/internal/config"
	perrors "github.com/cadre-oss/patternmem/internal/errors"
	"github.com/cadre-oss/patternmem/internal/event"
	"github.com/cadre-oss/patternmem/internal/pattern"
	"github.com/cadre-oss/patternmem/internal/resolver"
	"github.com/cadre-oss/patternmem/internal/session"
	"github.com/cadre-oss/patternmem/internal/snapshot"
	"github.com/cadre-oss/patternmem/internal/store"
	"github.com/cadre-oss/patternmem/internal/telemetry"
)

type (
	Record        = pattern.Record
	Category      = pattern.Category
	Strategy      = resolver.Strategy
	TeamConfig    = resolver.TeamConfig
	Weights       = resolver.Weights
	Result        = resolver.Result
	Store         = store.Store
	StoreOption   = store.Option
	Stats         = store.Stats
	PruneResult   = store.PruneResult
	Session       = session.Session
	SessionOption = session.Option
	Config        = config.Config
)

const (
	CategorySecurity     = pattern.CategorySecurity
	CategoryPerformance  = pattern.CategoryPerformance
	CategoryStyle        = pattern.CategoryStyle
	CategoryTesting      = pattern.CategoryTesting
	CategoryBestPractice = pattern.CategoryBestPractice

	HighestConfidence = resolver.HighestConfidence
	MostRecent        = resolver.MostRecent
	BestContextMatch  = resolver.BestContextMatch
	TeamPriority      = resolver.TeamPriority
	WeightedScore     = resolver.WeightedScore
)

// Sentinels for errors.Is.
var (
	ErrInvalidConfidence = perrors.ErrInvalidConfidence
	ErrDuplicateID       = perrors.ErrDuplicateID
	ErrNotFound          = perrors.ErrNotFound
	ErrOwnershipMismatch = perrors.ErrOwnershipMismatch
	ErrNoCandidates      = perrors.ErrNoCandidates
	ErrCapacityZero      = perrors.ErrCapacityZero
	ErrEmptyCandidateSet = perrors.ErrEmptyCandidateSet
	ErrUnknownStrategy   = perrors.ErrUnknownStrategy
	ErrConfigInvalid     = perrors.ErrConfigInvalid
	ErrSnapshotFailed    = perrors.ErrSnapshotFailed
)

// Store and session options.
var (
	WithMaxPatterns     = store.WithMaxPatterns
	WithTTL             = store.WithTTL
	WithClock           = store.WithClock
	WithResolver        = store.WithResolver
	WithDefaultStrategy = store.WithDefaultStrategy
	WithTeamConfig      = store.WithTeamConfig

	WithSessionStrategy  = session.WithStrategy
	WithSessionTeam      = session.WithTeamConfig
	WithChoiceConfidence = session.WithDefaultConfidence
	WithChoiceCategory   = session.WithCategory
)

// Suggestion returns the remediation hint carried by err, if any.
func Suggestion(err error) string {
	return perrors.Suggestion(err)
}

// Signature builds a normalized context signature from parts.
func Signature(parts ...string) string {
	return pattern.Signature(parts...)
}

// ParseStrategy converts a strategy name, rejecting unknown names.
func ParseStrategy(name string) (Strategy, error) {
	return resolver.ParseStrategy(name)
}

// NewStore creates an in-memory store.
func NewStore(opts ...StoreOption) *Store {
	return store.New(opts...)
}

// NewSession creates a session for agentID over st.
func NewSession(st *Store, agentID string, opts ...SessionOption) *Session {
	return session.New(st, agentID, opts...)
}

// Engine is a fully wired store: configuration, persistence, event hooks
// and metrics.
type Engine struct {
	Config  *Config
	Store   *Store
	Bus     *event.Bus
	Metrics *telemetry.Metrics
	Logger  *telemetry.Logger
}

// Open loads patternmem.yaml from dir and builds an Engine.
func Open(dir string) (*Engine, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return OpenConfig(cfg, telemetry.NewLogger(false))
}

// OpenConfig builds an Engine from cfg and restores the snapshot, if any.
func OpenConfig(cfg *Config, logger *telemetry.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}

	snap, err := snapshot.Open(cfg.Snapshot.Driver, cfg.Snapshot.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize snapshot: %w", err)
	}

	bus := event.NewBus(logger)
	if cfg.Hooks.Enabled {
		for _, hc := range cfg.Hooks.Hooks {
			h, err := event.Build(event.Spec{
				Name:     hc.Name,
				Type:     hc.Type,
				Events:   hc.Events,
				Blocking: hc.Blocking,
				Command:  hc.Command,
				URL:      hc.URL,
				Level:    hc.Level,
			}, logger)
			if err != nil {
				if snap != nil {
					snap.Close()
				}
				return nil, err
			}
			bus.Register(h)
		}
	}

	metrics := telemetry.NewMetrics()
	res := resolver.New()
	res.Weights = cfg.Weights

	opts := []store.Option{
		store.WithMaxPatterns(cfg.MaxPatterns),
		store.WithTTL(cfg.TTL()),
		store.WithResolver(res),
		store.WithDefaultStrategy(cfg.Strategy()),
		store.WithTeamConfig(cfg.TeamConfig()),
		store.WithLogger(logger),
		store.WithMetrics(metrics),
		store.WithEventBus(bus),
	}
	if snap != nil {
		opts = append(opts, store.WithSnapshotter(snap))
	}
	st := store.New(opts...)

	if _, err := st.Load(); err != nil {
		st.Close()
		return nil, err
	}

	return &Engine{
		Config:  cfg,
		Store:   st,
		Bus:     bus,
		Metrics: metrics,
		Logger:  logger,
	}, nil
}

// Session creates a session for agentID using the configured strategy,
// team priority and choice confidence.
func (e *Engine) Session(agentID string, opts ...SessionOption) *Session {
	base := append(e.SessionOptions(), session.WithLogger(e.Logger))
	return session.New(e.Store, agentID, append(base, opts...)...)
}

// SessionOptions returns the options Session applies, for callers that
// create sessions themselves.
func (e *Engine) SessionOptions() []SessionOption {
	return []session.Option{
		session.WithStrategy(e.Config.Strategy()),
		session.WithTeamConfig(e.Config.TeamConfig()),
		session.WithDefaultConfidence(e.Config.DefaultChoiceConfidence),
	}
}

// Close flushes and releases the engine.
func (e *Engine) Close() error {
	return e.Store.Close()
}
