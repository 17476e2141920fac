package store

import (
	"context"
	"sort"
	"time"

	perrors "github.com/cadre-oss/patternmem/internal/errors"
	"github.com/cadre-oss/patternmem/internal/event"
	"github.com/cadre-oss/patternmem/internal/eviction"
	"github.com/cadre-oss/patternmem/internal/pattern"
)

// PruneResult reports what a Prune removed.
type PruneResult struct {
	ExpiredRemoved int `json:"expired_removed"`
	LRURemoved     int `json:"lru_removed"`
}

// Prune physically removes expired records and, if the store somehow holds
// more than MaxPatterns, trims it by LRU. It then flushes the snapshot if the
// store changed since the last flush; flush failures are logged, not returned.
func (s *Store) Prune() PruneResult {
	now := s.now()

	s.mu.Lock()
	evs := s.sweepLocked(now)
	res := PruneResult{ExpiredRemoved: len(evs)}
	if over := len(s.records) - s.maxPatterns; over > 0 {
		live := make([]*pattern.Record, 0, len(s.records))
		for _, rec := range s.records {
			live = append(live, rec)
		}
		for _, id := range s.evict.SelectLRU(live, over) {
			rec := s.deleteLocked(id)
			evs = append(evs, event.NewEvent(event.PatternEvicted, now, map[string]interface{}{
				"id":             id,
				"contributor_id": rec.ContributorID,
				"last_used_at":   rec.LastUsedAt,
			}))
			res.LRURemoved++
		}
		s.evict.Record(eviction.ReasonLRU, res.LRURemoved)
		s.metrics.AddRemovals(string(eviction.ReasonLRU), res.LRURemoved)
	}
	size := len(s.records)
	s.mu.Unlock()

	s.metrics.SetPatterns(size)
	s.emit(evs...)
	if res.ExpiredRemoved > 0 || res.LRURemoved > 0 {
		s.logger.Info("Pruned patterns", "expired", res.ExpiredRemoved, "lru", res.LRURemoved, "size", size)
	}

	if s.Dirty() {
		if err := s.Flush(); err != nil {
			s.logger.Warn("Snapshot flush after prune failed", "error", err)
		}
	}
	return res
}

// Flush writes a snapshot of every live record. The copy is taken under the
// lock; the write happens outside it. Without a snapshotter Flush is a no-op.
func (s *Store) Flush() error {
	if s.snap == nil {
		return nil
	}

	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	now := s.now()
	s.mu.Lock()
	ver := s.version
	records := make([]pattern.Record, 0, len(s.records))
	for _, rec := range s.records {
		if !s.evict.Expired(rec, now) {
			records = append(records, rec.Clone())
		}
	}
	s.mu.Unlock()
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	if err := s.snap.Save(records); err != nil {
		s.metrics.IncSnapshot("error")
		s.emit(event.NewEvent(event.SnapshotFailed, now, map[string]interface{}{
			"error": err.Error(),
		}))
		return perrors.Wrap(perrors.CodeSnapshotFailed, "failed to write snapshot", err)
	}

	s.mu.Lock()
	s.flushedVer = ver
	s.mu.Unlock()

	s.metrics.IncSnapshot("ok")
	s.emit(event.NewEvent(event.SnapshotFlushed, now, map[string]interface{}{
		"records": len(records),
	}))
	s.logger.Debug("Snapshot flushed", "records", len(records))
	return nil
}

// Dirty reports whether the store changed since the last successful flush.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version != s.flushedVer
}

// Load replays the snapshot through the insert path. Records keep their
// timestamps and usage counts; expired, invalid or duplicate records are
// skipped. A zero-capacity store loads nothing and leaves the snapshot
// untouched. It returns the number of records restored.
func (s *Store) Load() (int, error) {
	if s.snap == nil {
		return 0, nil
	}
	records, err := s.snap.Load()
	if err != nil {
		return 0, perrors.Wrap(perrors.CodeSnapshotFailed, "failed to read snapshot", err)
	}

	// Oldest use first, so LRU eviction during replay keeps the most recent.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].LastUsedAt.Before(records[j].LastUsedAt)
	})

	if s.maxPatterns == 0 {
		if len(records) > 0 {
			s.logger.Warn("Snapshot not loaded into zero-capacity store", "records", len(records))
		}
		return 0, nil
	}

	now := s.now()
	loaded, skipped := 0, 0
	s.mu.Lock()
	for _, rec := range records {
		if s.evict.Expired(&rec, now) {
			skipped++
			continue
		}
		if _, _, err := s.insertLocked(rec, now, true); err != nil {
			s.logger.Warn("Skipping snapshot record", "id", rec.ID, "error", err)
			skipped++
			continue
		}
		loaded++
	}
	s.flushedVer = s.version
	size := len(s.records)
	s.mu.Unlock()

	s.metrics.SetPatterns(size)
	s.logger.Info("Snapshot loaded", "loaded", loaded, "skipped", skipped, "size", size)
	return loaded, nil
}

// Run prunes every interval until ctx is done, flushing the snapshot when
// the store is dirty. A final flush runs on shutdown.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.Dirty() {
				if err := s.Flush(); err != nil {
					s.logger.Warn("Final snapshot flush failed", "error", err)
				}
			}
			return nil
		case <-ticker.C:
			s.Prune()
		}
	}
}

// Close flushes pending changes, waits for in-flight hooks and releases the
// snapshotter.
func (s *Store) Close() error {
	var err error
	if s.Dirty() {
		err = s.Flush()
	}
	s.bus.Wait()
	if s.snap != nil {
		if cerr := s.snap.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
