package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	perrors "github.com/cadre-oss/patternmem/internal/errors"
	"github.com/cadre-oss/patternmem/internal/event"
	"github.com/cadre-oss/patternmem/internal/pattern"
	"github.com/cadre-oss/patternmem/internal/snapshot"
	"github.com/cadre-oss/patternmem/internal/store"
	"github.com/cadre-oss/patternmem/internal/testutil"
)

func TestStore_FlushAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.ndjson")
	snap, err := snapshot.NewFileSnapshotter(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := testutil.NewTestHarness(t, store.WithSnapshotter(snap))
	r := rec("p1", "sig", 0.7)
	r.Payload = map[string]string{"framework": "react"}
	h.Store.Insert(r)
	h.Store.Insert(rec("p2", "sig", 0.4))
	h.Advance(time.Hour)
	h.Store.Query("sig")

	if !h.Store.Dirty() {
		t.Fatal("expected store to be dirty before flush")
	}
	if err := h.Store.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if h.Store.Dirty() {
		t.Fatal("expected store to be clean after flush")
	}
	h.AssertEventEmitted(event.SnapshotFlushed)

	restored := testutil.NewTestHarness(t, store.WithSnapshotter(snap))
	restored.Clock.Set(h.Clock.Now())
	n, err := restored.Store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 records loaded, got %d", n)
	}

	got, err := restored.Store.Get("p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UsageCount != 1 {
		t.Fatalf("expected usage 1 to survive, got %d", got.UsageCount)
	}
	if !got.CreatedAt.Equal(testutil.BaseTime) {
		t.Fatalf("expected created_at %v, got %v", testutil.BaseTime, got.CreatedAt)
	}
	if got.Payload["framework"] != "react" {
		t.Fatalf("expected payload to survive, got %v", got.Payload)
	}
	if restored.Store.Dirty() {
		t.Fatal("expected freshly loaded store to be clean")
	}
}

func TestStore_LoadDropsExpiredAndInvalid(t *testing.T) {
	snap := &testutil.MockSnapshotter{Records: []pattern.Record{
		{ID: "fresh", ContextSignature: "sig", Confidence: 0.5, CreatedAt: testutil.BaseTime, LastUsedAt: testutil.BaseTime},
		{ID: "stale", ContextSignature: "sig", Confidence: 0.5, CreatedAt: testutil.BaseTime.Add(-100 * day), LastUsedAt: testutil.BaseTime},
		{ID: "broken", ContextSignature: "sig", Confidence: 1.5, CreatedAt: testutil.BaseTime, LastUsedAt: testutil.BaseTime},
		{ID: "fresh", ContextSignature: "sig", Confidence: 0.9, CreatedAt: testutil.BaseTime, LastUsedAt: testutil.BaseTime},
	}}

	h := testutil.NewTestHarness(t, store.WithSnapshotter(snap), store.WithTTL(90*day))
	n, err := h.Store.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 record loaded, got %d", n)
	}
	got, _ := h.Store.Get("fresh")
	if got.Confidence != 0.5 {
		t.Fatalf("expected first copy of duplicate to win, got %v", got.Confidence)
	}
}

func TestStore_LoadRespectsCapacity(t *testing.T) {
	var records []pattern.Record
	for i, id := range []string{"a", "b", "c", "d"} {
		at := testutil.BaseTime.Add(time.Duration(i) * time.Minute)
		records = append(records, pattern.Record{ID: id, ContextSignature: id, Confidence: 0.5, CreatedAt: at, LastUsedAt: at})
	}
	snap := &testutil.MockSnapshotter{Records: records}

	h := testutil.NewTestHarness(t, store.WithSnapshotter(snap), store.WithMaxPatterns(2))
	h.Advance(time.Hour)
	if _, err := h.Store.Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Store.Size() != 2 {
		t.Fatalf("expected size 2, got %d", h.Store.Size())
	}
	for _, id := range []string{"c", "d"} {
		if _, err := h.Store.Get(id); err != nil {
			t.Errorf("expected most recently used %s to survive, got %v", id, err)
		}
	}
}

func TestStore_LoadIntoZeroCapacity(t *testing.T) {
	snap := &testutil.MockSnapshotter{Records: []pattern.Record{
		{ID: "a", ContextSignature: "a", Confidence: 0.5, CreatedAt: testutil.BaseTime, LastUsedAt: testutil.BaseTime},
	}}
	h := testutil.NewTestHarness(t, store.WithSnapshotter(snap), store.WithMaxPatterns(0))

	n, err := h.Store.Load()
	if err != nil || n != 0 {
		t.Fatalf("expected nothing loaded without error, got %d, %v", n, err)
	}
	if err := h.Store.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.SaveCount() != 0 || len(snap.Records) != 1 {
		t.Fatalf("expected snapshot left untouched, got %d saves and %d records", snap.SaveCount(), len(snap.Records))
	}
}

func TestStore_FlushFailure(t *testing.T) {
	snap := &testutil.MockSnapshotter{ShouldFail: true}
	h := testutil.NewTestHarness(t, store.WithSnapshotter(snap))
	h.Store.Insert(rec("p1", "sig", 0.5))

	err := h.Store.Flush()
	if !errors.Is(err, perrors.ErrSnapshotFailed) {
		t.Fatalf("expected SNAPSHOT_FAILED, got %v", err)
	}
	if !h.Store.Dirty() {
		t.Fatal("expected store to stay dirty after failed flush")
	}
	h.AssertEventEmitted(event.SnapshotFailed)
	snap.ShouldFail = false
}

func TestStore_PruneFlushes(t *testing.T) {
	snap := &testutil.MockSnapshotter{}
	h := testutil.NewTestHarness(t, store.WithSnapshotter(snap), store.WithTTL(day))
	h.Store.Insert(rec("old", "sig", 0.5))
	h.Advance(2 * day)
	h.Store.Insert(rec("new", "sig", 0.5))

	h.Store.Prune()
	if snap.SaveCount() != 1 {
		t.Fatalf("expected 1 save, got %d", snap.SaveCount())
	}
	if len(snap.Records) != 1 || snap.Records[0].ID != "new" {
		t.Fatalf("expected only live records in snapshot, got %+v", snap.Records)
	}
}

func TestStore_PruneSkipsFlushWhenClean(t *testing.T) {
	snap := &testutil.MockSnapshotter{}
	h := testutil.NewTestHarness(t, store.WithSnapshotter(snap))
	h.Store.Insert(rec("p1", "sig", 0.5))

	h.Store.Prune()
	h.Store.Prune()
	h.Store.Prune()
	if snap.SaveCount() != 1 {
		t.Fatalf("expected only the first prune to write, got %d saves", snap.SaveCount())
	}

	h.Store.Insert(rec("p2", "sig", 0.5))
	h.Store.Prune()
	if snap.SaveCount() != 2 {
		t.Fatalf("expected a write after a new insert, got %d saves", snap.SaveCount())
	}
}

func TestStore_FlushWithoutSnapshotter(t *testing.T) {
	h := testutil.NewTestHarness(t)
	h.Store.Insert(rec("p1", "sig", 0.5))
	if err := h.Store.Flush(); err != nil {
		t.Fatalf("expected no-op flush, got %v", err)
	}
	if n, err := h.Store.Load(); n != 0 || err != nil {
		t.Fatalf("expected no-op load, got %d, %v", n, err)
	}
}

func TestStore_RunFlushesOnShutdown(t *testing.T) {
	snap := &testutil.MockSnapshotter{}
	h := testutil.NewTestHarness(t, store.WithSnapshotter(snap))
	h.Store.Insert(rec("p1", "sig", 0.5))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Store.Run(ctx, time.Hour) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if snap.SaveCount() != 1 {
		t.Fatalf("expected final flush, got %d saves", snap.SaveCount())
	}
}

func TestStore_CloseFlushesAndClosesSnapshotter(t *testing.T) {
	snap := &testutil.MockSnapshotter{}
	s := store.New(store.WithSnapshotter(snap))
	s.Insert(rec("p1", "sig", 0.5))

	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.SaveCount() != 1 || !snap.Closed {
		t.Fatalf("expected flush and close, got saves=%d closed=%v", snap.SaveCount(), snap.Closed)
	}
}
