// Package store implements the shared pattern memory agents write to and
// query from.
//
// A single mutex guards the index, the usage counters and eviction, so the
// capacity bound holds at every observable instant even under concurrent
// inserts. Work that can block (hooks, snapshot writes, resolution) happens
// after the lock is released, on copies.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	perrors "github.com/cadre-oss/patternmem/internal/errors"
	"github.com/cadre-oss/patternmem/internal/event"
	"github.com/cadre-oss/patternmem/internal/eviction"
	"github.com/cadre-oss/patternmem/internal/pattern"
	"github.com/cadre-oss/patternmem/internal/resolver"
	"github.com/cadre-oss/patternmem/internal/snapshot"
	"github.com/cadre-oss/patternmem/internal/telemetry"
)

// Store is a concurrent, bounded pattern memory keyed by context signature.
type Store struct {
	mu      sync.Mutex
	records map[string]*pattern.Record
	bySig   map[string]map[string]struct{}
	evict   *eviction.Manager
	version uint64

	maxPatterns int
	ttl         time.Duration
	now         func() time.Time
	resolver    *resolver.Resolver
	strategy    resolver.Strategy
	team        resolver.TeamConfig

	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	bus     *event.Bus

	snap       snapshot.Snapshotter
	flushMu    sync.Mutex
	flushedVer uint64
}

// Stats summarizes the live contents of the store.
type Stats struct {
	TotalPatterns         int             `json:"total_patterns"`
	PatternsByCategory    map[string]int  `json:"patterns_by_category"`
	PatternsByContributor map[string]int  `json:"patterns_by_contributor"`
	EvictionCountLifetime int64           `json:"eviction_count_lifetime"`
	Evictions             eviction.Counts `json:"evictions"`
	MaxPatterns           int             `json:"max_patterns"`
	TTL                   string          `json:"ttl"`
}

// New creates a store.
func New(opts ...Option) *Store {
	s := &Store{
		records:     make(map[string]*pattern.Record),
		bySig:       make(map[string]map[string]struct{}),
		maxPatterns: DefaultMaxPatterns,
		ttl:         DefaultTTL,
		now:         time.Now,
		resolver:    resolver.New(),
		strategy:    resolver.DefaultStrategy,
		logger:      telemetry.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.evict = eviction.NewManager(s.maxPatterns, s.ttl)
	return s
}

// MaxPatterns returns the capacity bound.
func (s *Store) MaxPatterns() int { return s.maxPatterns }

// TTL returns the record time-to-live.
func (s *Store) TTL() time.Duration { return s.ttl }

// Size returns the number of records physically held, expired ones included.
// It never exceeds MaxPatterns.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Insert validates rec and adds it, evicting least recently used records if
// the store is full. The returned id is the caller's or a generated one.
func (s *Store) Insert(rec pattern.Record) (string, error) {
	now := s.now()

	s.mu.Lock()
	id, evs, err := s.insertLocked(rec, now, false)
	size := len(s.records)
	s.mu.Unlock()

	if err != nil {
		s.metrics.IncInsert(perrors.AsCode(err))
		return "", err
	}
	s.metrics.IncInsert("ok")
	s.metrics.SetPatterns(size)
	s.emit(evs...)
	s.logger.Debug("Pattern inserted", "id", id, "size", size)
	if rec.Category != "" && !rec.Category.Known() {
		s.logger.Debug("Pattern uses a custom category", "id", id, "category", string(rec.Category))
	}
	return id, nil
}

// insertLocked performs the insert with s.mu held. With restore set the
// record keeps its timestamps and usage count.
func (s *Store) insertLocked(rec pattern.Record, now time.Time, restore bool) (string, []event.Event, error) {
	if err := rec.Validate(); err != nil {
		return "", nil, err
	}
	if err := s.evict.CheckCapacity(); err != nil {
		return "", nil, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if existing, ok := s.records[rec.ID]; ok && !s.evict.Expired(existing, now) {
		return "", nil, perrors.Newf(perrors.CodeDuplicateID, "pattern %s already exists", rec.ID).
			WithSuggestion("Omit the id to have one generated, or use supersede to replace your own pattern")
	}

	evs := s.sweepLocked(now)
	evs = append(evs, s.evictLocked(now)...)

	stored := rec.Clone()
	stored.ContextSignature = pattern.NormalizeSignature(rec.ContextSignature)
	if !restore {
		stored.CreatedAt = now
		stored.LastUsedAt = now
		stored.UsageCount = 0
	} else if stored.LastUsedAt.Before(stored.CreatedAt) {
		stored.LastUsedAt = stored.CreatedAt
	}
	s.putLocked(&stored)

	return stored.ID, append(evs, event.NewEvent(event.PatternInserted, now, map[string]interface{}{
		"id":                stored.ID,
		"name":              stored.Name,
		"category":          string(stored.Category),
		"confidence":        stored.Confidence,
		"context_signature": stored.ContextSignature,
		"contributor_id":    stored.ContributorID,
	})), nil
}

// sweepLocked physically removes every expired record.
func (s *Store) sweepLocked(now time.Time) []event.Event {
	ids := s.evict.SweepExpired(s.records, now)
	if len(ids) == 0 {
		return nil
	}
	evs := make([]event.Event, 0, len(ids))
	for _, id := range ids {
		rec := s.deleteLocked(id)
		evs = append(evs, event.NewEvent(event.PatternExpired, now, map[string]interface{}{
			"id":             id,
			"contributor_id": rec.ContributorID,
			"created_at":     rec.CreatedAt,
		}))
	}
	s.evict.Record(eviction.ReasonExpired, len(ids))
	s.metrics.AddRemovals(string(eviction.ReasonExpired), len(ids))
	return evs
}

// evictLocked removes least recently used records until one more insert
// fits. Callers sweep expired records first so only live ones are counted.
func (s *Store) evictLocked(now time.Time) []event.Event {
	n := s.evict.Overflow(len(s.records))
	if n == 0 {
		return nil
	}
	live := make([]*pattern.Record, 0, len(s.records))
	for _, rec := range s.records {
		live = append(live, rec)
	}
	victims := s.evict.SelectLRU(live, n)
	evs := make([]event.Event, 0, len(victims))
	for _, id := range victims {
		rec := s.deleteLocked(id)
		evs = append(evs, event.NewEvent(event.PatternEvicted, now, map[string]interface{}{
			"id":             id,
			"contributor_id": rec.ContributorID,
			"last_used_at":   rec.LastUsedAt,
		}))
	}
	s.evict.Record(eviction.ReasonLRU, len(victims))
	s.metrics.AddRemovals(string(eviction.ReasonLRU), len(victims))
	return evs
}

func (s *Store) putLocked(rec *pattern.Record) {
	s.records[rec.ID] = rec
	ids, ok := s.bySig[rec.ContextSignature]
	if !ok {
		ids = make(map[string]struct{})
		s.bySig[rec.ContextSignature] = ids
	}
	ids[rec.ID] = struct{}{}
	s.version++
}

func (s *Store) deleteLocked(id string) *pattern.Record {
	rec, ok := s.records[id]
	if !ok {
		return nil
	}
	delete(s.records, id)
	if ids, ok := s.bySig[rec.ContextSignature]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.bySig, rec.ContextSignature)
		}
	}
	s.version++
	return rec
}

// collectLocked touches every live record matching signature and returns
// copies taken before the touch, sorted by id.
func (s *Store) collectLocked(signature string, now time.Time) []pattern.Record {
	ids := s.bySig[pattern.NormalizeSignature(signature)]
	out := make([]pattern.Record, 0, len(ids))
	for id := range ids {
		rec := s.records[id]
		if s.evict.Expired(rec, now) {
			continue
		}
		out = append(out, rec.Clone())
		rec.Touch(now)
	}
	if len(out) > 0 {
		s.version++
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Query returns the live candidates for signature, sorted by id. Each
// returned record has been touched. No match is an empty slice.
func (s *Store) Query(signature string) []pattern.Record {
	now := s.now()

	s.mu.Lock()
	out := s.collectLocked(signature, now)
	s.mu.Unlock()

	for i := range out {
		out[i].Touch(now)
	}
	s.metrics.IncQuery(len(out) > 0)
	return out
}

// QueryResolved queries signature and picks one winner. An empty strategy
// means the store default; a zero team means the store's team config.
// Candidates are resolved as they were before this query touched them.
func (s *Store) QueryResolved(signature string, strategy resolver.Strategy, team resolver.TeamConfig) (resolver.Result, error) {
	if strategy == "" {
		strategy = s.strategy
	}
	strategy, err := resolver.ParseStrategy(string(strategy))
	if err != nil {
		return resolver.Result{}, err
	}
	if team == (resolver.TeamConfig{}) {
		team = s.team
	}
	if team.CurrentContext == "" {
		team.CurrentContext = pattern.NormalizeSignature(signature)
	}

	now := s.now()
	s.mu.Lock()
	candidates := s.collectLocked(signature, now)
	s.mu.Unlock()

	s.metrics.IncQuery(len(candidates) > 0)
	if len(candidates) == 0 {
		return resolver.Result{}, perrors.Newf(perrors.CodeNoCandidates,
			"no live patterns for signature %q", pattern.NormalizeSignature(signature))
	}

	res, err := s.resolver.Resolve(candidates, strategy, team, now)
	if err != nil {
		return resolver.Result{}, err
	}
	res.Winner.Touch(now)
	s.metrics.IncResolution(string(strategy))
	s.emit(event.NewEvent(event.PatternResolved, now, map[string]interface{}{
		"winner_id":  res.WinnerID,
		"strategy":   string(res.StrategyUsed),
		"reasoning":  res.Reasoning,
		"candidates": len(candidates),
	}))
	return res, nil
}

// Supersede atomically replaces oldID with rec. The replacement must come
// from the same contributor. It gets a fresh id unless rec carries one,
// a new created_at, and the old record's usage count.
func (s *Store) Supersede(oldID string, rec pattern.Record) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	now := s.now()

	s.mu.Lock()
	old, ok := s.records[oldID]
	if !ok || s.evict.Expired(old, now) {
		s.mu.Unlock()
		return "", perrors.Newf(perrors.CodeNotFound, "pattern %s not found", oldID)
	}
	if rec.ContributorID != old.ContributorID {
		s.mu.Unlock()
		return "", perrors.Newf(perrors.CodeOwnershipMismatch,
			"pattern %s belongs to %q, not %q", oldID, old.ContributorID, rec.ContributorID).
			WithSuggestion("Insert a new pattern instead; conflicts are settled at query time")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ID != oldID {
		if existing, ok := s.records[rec.ID]; ok && !s.evict.Expired(existing, now) {
			s.mu.Unlock()
			return "", perrors.Newf(perrors.CodeDuplicateID, "pattern %s already exists", rec.ID)
		}
	}

	usage := old.UsageCount
	s.deleteLocked(oldID)
	s.deleteLocked(rec.ID)

	stored := rec.Clone()
	stored.ContextSignature = pattern.NormalizeSignature(rec.ContextSignature)
	stored.CreatedAt = now
	stored.LastUsedAt = now
	stored.UsageCount = usage
	s.putLocked(&stored)
	size := len(s.records)
	s.mu.Unlock()

	s.metrics.AddRemovals("superseded", 1)
	s.metrics.SetPatterns(size)
	s.emit(event.NewEvent(event.PatternSuperseded, now, map[string]interface{}{
		"old_id":         oldID,
		"id":             stored.ID,
		"contributor_id": stored.ContributorID,
	}))
	return stored.ID, nil
}

// Remove deletes id. It reports false if id was absent or already expired.
func (s *Store) Remove(id string) bool {
	now := s.now()

	s.mu.Lock()
	rec := s.deleteLocked(id)
	size := len(s.records)
	s.mu.Unlock()

	if rec == nil || s.evict.Expired(rec, now) {
		return false
	}
	s.metrics.AddRemovals("removed", 1)
	s.metrics.SetPatterns(size)
	s.emit(event.NewEvent(event.PatternRemoved, now, map[string]interface{}{
		"id":             id,
		"contributor_id": rec.ContributorID,
	}))
	return true
}

// Get returns a copy of id without touching it.
func (s *Store) Get(id string) (pattern.Record, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || s.evict.Expired(rec, now) {
		return pattern.Record{}, perrors.Newf(perrors.CodeNotFound, "pattern %s not found", id)
	}
	return rec.Clone(), nil
}

// Stats summarizes live records.
func (s *Store) Stats() Stats {
	now := s.now()
	st := Stats{
		PatternsByCategory:    make(map[string]int),
		PatternsByContributor: make(map[string]int),
		MaxPatterns:           s.maxPatterns,
		TTL:                   s.ttl.String(),
	}

	s.mu.Lock()
	for _, rec := range s.records {
		if s.evict.Expired(rec, now) {
			continue
		}
		st.TotalPatterns++
		st.PatternsByCategory[string(rec.Category)]++
		st.PatternsByContributor[rec.ContributorID]++
	}
	s.mu.Unlock()

	st.Evictions = s.evict.Counts()
	st.EvictionCountLifetime = st.Evictions.Total()
	return st
}

func (s *Store) emit(evs ...event.Event) {
	for _, ev := range evs {
		if err := s.bus.Emit(ev); err != nil {
			s.logger.Warn("Event hook failed", "event", string(ev.Type), "error", err)
		}
	}
}
