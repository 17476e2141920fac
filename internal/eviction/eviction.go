// Package eviction decides which pattern records leave the store, either
// because they outlived the TTL or because the store is at capacity.
//
// The Manager holds policy and lifetime counters only. It never owns
// records; the store passes its records in while holding its own lock.
package eviction

import (
	"sort"
	"sync/atomic"
	"time"

	perrors "github.com/cadre-oss/patternmem/internal/errors"
	"github.com/cadre-oss/patternmem/internal/pattern"
)

// Reason explains why a record was removed.
type Reason string

const (
	ReasonExpired Reason = "expired"
	ReasonLRU     Reason = "lru"
)

// Counts are lifetime removal totals.
type Counts struct {
	Expired int64 `json:"expired"`
	LRU     int64 `json:"lru"`
}

// Total returns the sum of all removals.
func (c Counts) Total() int64 {
	return c.Expired + c.LRU
}

// Manager applies TTL and capacity policy.
type Manager struct {
	maxPatterns int
	ttl         time.Duration

	expired atomic.Int64
	lru     atomic.Int64
}

// NewManager creates a manager. A ttl of zero disables expiry.
func NewManager(maxPatterns int, ttl time.Duration) *Manager {
	return &Manager{maxPatterns: maxPatterns, ttl: ttl}
}

// MaxPatterns returns the capacity bound.
func (m *Manager) MaxPatterns() int { return m.maxPatterns }

// TTL returns the time-to-live.
func (m *Manager) TTL() time.Duration { return m.ttl }

// CheckCapacity rejects inserts into a zero-capacity store.
func (m *Manager) CheckCapacity() error {
	if m.maxPatterns <= 0 {
		return perrors.New(perrors.CodeCapacityZero, "store capacity is zero; inserts are disabled").
			WithSuggestion("Set max_patterns to a positive value")
	}
	return nil
}

// Expired reports whether rec is past its TTL at now.
func (m *Manager) Expired(rec *pattern.Record, now time.Time) bool {
	return m.ttl > 0 && rec.Age(now) > m.ttl
}

// SweepExpired returns the ids of every expired record, sorted.
func (m *Manager) SweepExpired(records map[string]*pattern.Record, now time.Time) []string {
	var ids []string
	for id, rec := range records {
		if m.Expired(rec, now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Overflow returns how many live records must go so that one more insert
// keeps the store within capacity.
func (m *Manager) Overflow(live int) int {
	if n := live - (m.maxPatterns - 1); n > 0 {
		return n
	}
	return 0
}

// SelectLRU picks n victims among live records: oldest last_used_at first,
// then oldest created_at, then smallest id.
func (m *Manager) SelectLRU(live []*pattern.Record, n int) []string {
	if n <= 0 || len(live) == 0 {
		return nil
	}
	ordered := make([]*pattern.Record, len(live))
	copy(ordered, live)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.LastUsedAt.Equal(b.LastUsedAt) {
			return a.LastUsedAt.Before(b.LastUsedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	n = min(n, len(ordered))
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = ordered[i].ID
	}
	return ids
}

// Record adds n removals for reason to the lifetime counters.
func (m *Manager) Record(reason Reason, n int) {
	switch reason {
	case ReasonExpired:
		m.expired.Add(int64(n))
	case ReasonLRU:
		m.lru.Add(int64(n))
	}
}

// Counts returns the lifetime removal counters.
func (m *Manager) Counts() Counts {
	return Counts{Expired: m.expired.Load(), LRU: m.lru.Load()}
}
