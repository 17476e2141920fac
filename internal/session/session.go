// Package session gives one agent a form-filling view over the shared store:
// suggest defaults for a template from what earlier choices taught the store,
// and record new choices so later sessions can reuse them.
package session

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	perrors "github.com/cadre-oss/patternmem/internal/errors"
	"github.com/cadre-oss/patternmem/internal/pattern"
	"github.com/cadre-oss/patternmem/internal/resolver"
	"github.com/cadre-oss/patternmem/internal/store"
	"github.com/cadre-oss/patternmem/internal/telemetry"
)

// DefaultChoiceConfidence seeds records created by RecordChoice.
const DefaultChoiceConfidence = 0.6

// Session is a per-agent facade over a shared Store. Cached resolutions are
// read-only copies; the store stays the single source of truth.
type Session struct {
	store      *store.Store
	agentID    string
	strategy   resolver.Strategy
	team       resolver.TeamConfig
	confidence float64
	category   pattern.Category
	logger     *telemetry.Logger

	mu    sync.RWMutex
	cache map[string]resolution
	group singleflight.Group
}

// resolution is the cached outcome for one template signature.
type resolution struct {
	winnerID  string
	reasoning string
	defaults  map[string]string
}

// Option configures a Session.
type Option func(*Session)

// WithStrategy sets the strategy used for suggestions. Empty means the
// store default.
func WithStrategy(st resolver.Strategy) Option {
	return func(s *Session) { s.strategy = st }
}

// WithTeamConfig sets the team preferences used for suggestions.
func WithTeamConfig(tc resolver.TeamConfig) Option {
	return func(s *Session) { s.team = tc }
}

// WithDefaultConfidence sets the confidence RecordChoice seeds new records with.
func WithDefaultConfidence(c float64) Option {
	return func(s *Session) { s.confidence = c }
}

// WithCategory sets the category of records created by RecordChoice.
func WithCategory(c pattern.Category) Option {
	return func(s *Session) {
		if c != "" {
			s.category = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *telemetry.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a session for agentID backed by st.
func New(st *store.Store, agentID string, opts ...Option) *Session {
	s := &Session{
		store:      st,
		agentID:    agentID,
		confidence: DefaultChoiceConfidence,
		category:   pattern.CategoryBestPractice,
		logger:     telemetry.NewNopLogger(),
		cache:      make(map[string]resolution),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("agent", agentID)
	return s
}

// AgentID returns the agent this session acts for.
func (s *Session) AgentID() string { return s.agentID }

// SuggestDefaults returns form defaults for templateID in ctx, or nil when
// the store has nothing to offer. A nil result is the normal "no history
// yet" answer, not a failure.
func (s *Session) SuggestDefaults(templateID string, ctx map[string]string) map[string]string {
	sig := pattern.ContextSignature(templateID, ctx)

	if defaults, ok := s.cached(sig); ok {
		return defaults
	}

	v, err, _ := s.group.Do(sig, func() (interface{}, error) {
		res, err := s.store.QueryResolved(sig, s.strategy, s.team)
		if err != nil {
			return nil, err
		}
		r := resolution{
			winnerID:  res.WinnerID,
			reasoning: res.Reasoning,
			defaults:  copyValues(res.Winner.Payload),
		}
		s.mu.Lock()
		s.cache[sig] = r
		s.mu.Unlock()
		s.logger.Debug("Resolved template defaults",
			"template", templateID,
			"winner", res.WinnerID,
			"reasoning", res.Reasoning,
		)
		return r.defaults, nil
	})
	if err != nil {
		if !errors.Is(err, perrors.ErrNoCandidates) {
			s.logger.Warn("Failed to resolve template defaults", "template", templateID, "error", err)
		}
		return nil
	}
	return copyValues(v.(map[string]string))
}

// cached returns the cached defaults for sig while its winner is still live.
func (s *Session) cached(sig string) (map[string]string, bool) {
	s.mu.RLock()
	r, ok := s.cache[sig]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if _, err := s.store.Get(r.winnerID); err != nil {
		s.mu.Lock()
		if cur, ok := s.cache[sig]; ok && cur.winnerID == r.winnerID {
			delete(s.cache, sig)
		}
		s.mu.Unlock()
		return nil, false
	}
	return copyValues(r.defaults), true
}

// Explain returns the reasoning behind the cached suggestion for templateID
// in ctx, if any.
func (s *Session) Explain(templateID string, ctx map[string]string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.cache[pattern.ContextSignature(templateID, ctx)]
	return r.reasoning, ok
}

// RecordChoice stores the values the agent settled on for templateID in
// ctx as a new pattern owned by this session's agent.
func (s *Session) RecordChoice(templateID string, ctx map[string]string, values map[string]string) (string, error) {
	sig := pattern.ContextSignature(templateID, ctx)
	rec := pattern.Record{
		Name:             fmt.Sprintf("%s defaults", templateID),
		Category:         s.category,
		Confidence:       s.confidence,
		ContextSignature: sig,
		ContributorID:    s.agentID,
		Payload:          copyValues(values),
	}

	id, err := s.store.Insert(rec)
	if err != nil {
		return "", err
	}
	s.Forget(templateID, ctx)
	s.logger.Debug("Recorded template choice", "template", templateID, "id", id)
	return id, nil
}

// Forget drops the cached suggestion for templateID in ctx.
func (s *Session) Forget(templateID string, ctx map[string]string) {
	sig := pattern.ContextSignature(templateID, ctx)
	s.mu.Lock()
	delete(s.cache, sig)
	s.mu.Unlock()
	s.group.Forget(sig)
}

// copyValues never returns nil, so a winner without values still reads as
// "history exists" rather than "no history".
func copyValues(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
