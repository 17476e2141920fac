package store_test

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	perrors "github.com/cadre-oss/patternmem/internal/errors"
	"github.com/cadre-oss/patternmem/internal/event"
	"github.com/cadre-oss/patternmem/internal/pattern"
	"github.com/cadre-oss/patternmem/internal/resolver"
	"github.com/cadre-oss/patternmem/internal/store"
	"github.com/cadre-oss/patternmem/internal/testutil"
)

const day = 24 * time.Hour

func rec(id, sig string, conf float64) pattern.Record {
	return testutil.NewRecord(id, sig, pattern.CategoryStyle, conf, "agent-a")
}

func TestStore_InsertStampsRecord(t *testing.T) {
	h := testutil.NewTestHarness(t)

	in := rec("", "TypeScript | Config", 0.8)
	in.UsageCount = 42
	id, err := h.Store.Insert(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}

	got, err := h.Store.Get(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.CreatedAt.Equal(testutil.BaseTime) || !got.LastUsedAt.Equal(testutil.BaseTime) {
		t.Fatalf("expected timestamps stamped at %v, got %v / %v", testutil.BaseTime, got.CreatedAt, got.LastUsedAt)
	}
	if got.UsageCount != 0 {
		t.Fatalf("expected usage 0, got %d", got.UsageCount)
	}
	if got.ContextSignature != "typescript|config" {
		t.Fatalf("expected normalized signature, got %q", got.ContextSignature)
	}
	h.AssertEventEmitted(event.PatternInserted)
}

func TestStore_InsertRejectsInvalidConfidence(t *testing.T) {
	h := testutil.NewTestHarness(t)

	for _, c := range []float64{-0.01, 1.01, math.NaN(), math.Inf(1)} {
		_, err := h.Store.Insert(rec("bad", "sig", c))
		if !errors.Is(err, perrors.ErrInvalidConfidence) {
			t.Errorf("confidence %v: expected INVALID_CONFIDENCE, got %v", c, err)
		}
	}
	if h.Store.Size() != 0 {
		t.Fatalf("expected empty store, got %d", h.Store.Size())
	}
	h.AssertNoEvent(event.PatternInserted)
}

func TestStore_InsertBoundaryConfidence(t *testing.T) {
	h := testutil.NewTestHarness(t)
	for i, c := range []float64{0, 1} {
		if _, err := h.Store.Insert(rec(fmt.Sprintf("p%d", i), "sig", c)); err != nil {
			t.Fatalf("confidence %v: unexpected error: %v", c, err)
		}
	}
}

func TestStore_InsertDuplicateID(t *testing.T) {
	h := testutil.NewTestHarness(t)

	if _, err := h.Store.Insert(rec("p1", "sig", 0.5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := h.Store.Insert(rec("p1", "other", 0.9))
	if !errors.Is(err, perrors.ErrDuplicateID) {
		t.Fatalf("expected DUPLICATE_ID, got %v", err)
	}
	got, _ := h.Store.Get("p1")
	if got.ContextSignature != "sig" {
		t.Fatal("original record was modified")
	}
}

func TestStore_InsertReusesExpiredID(t *testing.T) {
	h := testutil.NewTestHarness(t, store.WithTTL(day))

	h.Store.Insert(rec("p1", "sig", 0.5))
	h.Advance(2 * day)
	if _, err := h.Store.Insert(rec("p1", "sig", 0.7)); err != nil {
		t.Fatalf("expected expired id to be reusable, got %v", err)
	}
}

func TestStore_CapacityZero(t *testing.T) {
	h := testutil.NewTestHarness(t, store.WithMaxPatterns(0))

	_, err := h.Store.Insert(rec("p1", "sig", 0.5))
	if !errors.Is(err, perrors.ErrCapacityZero) {
		t.Fatalf("expected CAPACITY_ZERO, got %v", err)
	}
	if !perrors.IsValidation(err) {
		t.Fatal("expected capacity error to be a validation error")
	}
	if h.Store.Size() != 0 {
		t.Fatalf("expected empty store, got %d", h.Store.Size())
	}
}

func TestStore_SizeNeverExceedsMax(t *testing.T) {
	const max = 5
	h := testutil.NewTestHarness(t, store.WithMaxPatterns(max))

	for i := 0; i < 50; i++ {
		if _, err := h.Store.Insert(rec(fmt.Sprintf("p%02d", i), fmt.Sprintf("sig-%d", i%3), 0.5)); err != nil {
			t.Fatalf("insert %d: unexpected error: %v", i, err)
		}
		if size := h.Store.Size(); size > max {
			t.Fatalf("after insert %d: size %d exceeds max %d", i, size, max)
		}
		h.Advance(time.Second)
	}
	if got := h.Store.Stats().EvictionCountLifetime; got != 45 {
		t.Fatalf("expected 45 evictions, got %d", got)
	}
}

func TestStore_LRUEvictsUntouched(t *testing.T) {
	const n = 4
	h := testutil.NewTestHarness(t, store.WithMaxPatterns(n))

	for i := 0; i < n; i++ {
		h.Store.Insert(rec(fmt.Sprintf("p%d", i), fmt.Sprintf("sig-%d", i), 0.5))
	}
	h.Advance(time.Minute)
	for i := 1; i < n; i++ {
		h.Store.Query(fmt.Sprintf("sig-%d", i))
	}

	if _, err := h.Store.Insert(rec("new", "sig-new", 0.5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := h.Store.Get("p0"); !errors.Is(err, perrors.ErrNotFound) {
		t.Fatalf("expected p0 to be evicted, got %v", err)
	}
	for i := 1; i < n; i++ {
		if _, err := h.Store.Get(fmt.Sprintf("p%d", i)); err != nil {
			t.Errorf("expected p%d to survive, got %v", i, err)
		}
	}
	h.AssertEventEmitted(event.PatternEvicted)
	if got := h.Store.Stats().Evictions.LRU; got != 1 {
		t.Fatalf("expected 1 lru eviction, got %d", got)
	}
}

func TestStore_LRUTieBreaksOnCreatedAtThenID(t *testing.T) {
	h := testutil.NewTestHarness(t, store.WithMaxPatterns(3))

	// b and a share timestamps; c is newer.
	h.Store.Insert(rec("b", "s1", 0.5))
	h.Store.Insert(rec("a", "s2", 0.5))
	h.Advance(time.Second)
	h.Store.Insert(rec("c", "s3", 0.5))

	h.Store.Insert(rec("d", "s4", 0.5))
	if _, err := h.Store.Get("a"); err == nil {
		t.Fatal("expected a (smallest id among oldest) to be evicted")
	}
	if _, err := h.Store.Get("b"); err != nil {
		t.Fatalf("expected b to survive, got %v", err)
	}
}

func TestStore_TTLHidesExpired(t *testing.T) {
	h := testutil.NewTestHarness(t, store.WithTTL(90*day))

	h.Store.Insert(rec("p1", "sig", 0.9))
	h.Advance(91 * day)

	if got := h.Store.Query("sig"); len(got) != 0 {
		t.Fatalf("expected no candidates, got %d", len(got))
	}
	_, err := h.Store.QueryResolved("sig", "", resolver.TeamConfig{})
	if !errors.Is(err, perrors.ErrNoCandidates) {
		t.Fatalf("expected NO_CANDIDATES, got %v", err)
	}
	if _, err := h.Store.Get("p1"); !errors.Is(err, perrors.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND for expired record, got %v", err)
	}
	if h.Store.Stats().TotalPatterns != 0 {
		t.Fatal("expected stats to exclude expired records")
	}

	// Still physically present until pruned.
	if h.Store.Size() != 1 {
		t.Fatalf("expected 1 physical record, got %d", h.Store.Size())
	}
	res := h.Store.Prune()
	if res.ExpiredRemoved != 1 || res.LRURemoved != 0 {
		t.Fatalf("expected {1 0}, got %+v", res)
	}
	if h.Store.Size() != 0 {
		t.Fatalf("expected empty store after prune, got %d", h.Store.Size())
	}
	h.AssertEventEmitted(event.PatternExpired)

	// Prune is idempotent.
	if res := h.Store.Prune(); res.ExpiredRemoved != 0 {
		t.Fatalf("expected nothing left to prune, got %+v", res)
	}
}

func TestStore_TTLBoundaryIsExclusive(t *testing.T) {
	h := testutil.NewTestHarness(t, store.WithTTL(day))

	h.Store.Insert(rec("p1", "sig", 0.9))
	h.Advance(day)
	if got := h.Store.Query("sig"); len(got) != 1 {
		t.Fatalf("expected record exactly at ttl to be live, got %d", len(got))
	}
}

func TestStore_ZeroTTLNeverExpires(t *testing.T) {
	h := testutil.NewTestHarness(t, store.WithTTL(0))

	h.Store.Insert(rec("p1", "sig", 0.9))
	h.Advance(10000 * day)
	if got := h.Store.Query("sig"); len(got) != 1 {
		t.Fatalf("expected record to survive, got %d", len(got))
	}
}

func TestStore_InsertSweepsExpiredBeforeEvicting(t *testing.T) {
	h := testutil.NewTestHarness(t, store.WithMaxPatterns(2), store.WithTTL(day))

	h.Store.Insert(rec("old", "s1", 0.5))
	h.Advance(2 * day)
	h.Store.Insert(rec("live", "s2", 0.5))
	h.Store.Insert(rec("new", "s3", 0.5))

	for _, id := range []string{"live", "new"} {
		if _, err := h.Store.Get(id); err != nil {
			t.Fatalf("expected %s to survive, got %v", id, err)
		}
	}
	counts := h.Store.Stats().Evictions
	if counts.Expired != 1 || counts.LRU != 0 {
		t.Fatalf("expected 1 expired and 0 lru, got %+v", counts)
	}
}

func TestStore_QueryTouches(t *testing.T) {
	h := testutil.NewTestHarness(t)

	h.Store.Insert(rec("p2", "sig", 0.5))
	h.Store.Insert(rec("p1", "sig", 0.6))
	h.Store.Insert(rec("other", "nope", 0.6))
	h.Advance(time.Hour)

	got := h.Store.Query("SIG")
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].ID != "p1" || got[1].ID != "p2" {
		t.Fatalf("expected results sorted by id, got %s, %s", got[0].ID, got[1].ID)
	}
	for _, r := range got {
		if r.UsageCount != 1 {
			t.Errorf("%s: expected usage 1, got %d", r.ID, r.UsageCount)
		}
		if !r.LastUsedAt.Equal(testutil.BaseTime.Add(time.Hour)) {
			t.Errorf("%s: expected last_used_at bumped, got %v", r.ID, r.LastUsedAt)
		}
	}

	stored, _ := h.Store.Get("p1")
	if stored.UsageCount != 1 {
		t.Fatalf("expected stored usage 1, got %d", stored.UsageCount)
	}
	if got := h.Store.Query("missing"); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", got)
	}
}

func TestStore_QueryResultsAreCopies(t *testing.T) {
	h := testutil.NewTestHarness(t)
	r := rec("p1", "sig", 0.5)
	r.Payload = map[string]string{"k": "v"}
	h.Store.Insert(r)

	got := h.Store.Query("sig")
	got[0].Payload["k"] = "changed"
	got[0].Confidence = 0.1

	stored, _ := h.Store.Get("p1")
	if stored.Payload["k"] != "v" || stored.Confidence != 0.5 {
		t.Fatal("mutating a query result changed the stored record")
	}
}

func TestStore_ConcurrentQueriesDoNotLoseUpdates(t *testing.T) {
	h := testutil.NewTestHarness(t)
	h.Store.Insert(rec("p1", "sig", 0.5))

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				h.Store.Query("sig")
			}
		}()
	}
	wg.Wait()

	got, _ := h.Store.Get("p1")
	if got.UsageCount != workers*perWorker {
		t.Fatalf("expected usage %d, got %d", workers*perWorker, got.UsageCount)
	}
}

func TestStore_ConcurrentInsertsRespectBound(t *testing.T) {
	const max = 10
	h := testutil.NewTestHarness(t, store.WithMaxPatterns(max))

	var wg sync.WaitGroup
	var mu sync.Mutex
	maxSeen := 0
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				r := testutil.NewRecord("", fmt.Sprintf("sig-%d", i%4), pattern.CategoryTesting, 0.5, fmt.Sprintf("agent-%d", w))
				if _, err := h.Store.Insert(r); err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				size := h.Store.Size()
				mu.Lock()
				if size > maxSeen {
					maxSeen = size
				}
				mu.Unlock()
				h.Store.Query(fmt.Sprintf("sig-%d", i%4))
			}
		}(w)
	}
	wg.Wait()

	if maxSeen > max {
		t.Fatalf("observed size %d above max %d", maxSeen, max)
	}
	if h.Store.Size() != max {
		t.Fatalf("expected store full at %d, got %d", max, h.Store.Size())
	}
}

func TestStore_QueryResolvedSoleCandidate(t *testing.T) {
	h := testutil.NewTestHarness(t)
	h.Store.Insert(rec("only", "sig", 0.7))

	res, err := h.Store.QueryResolved("sig", resolver.HighestConfidence, resolver.TeamConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.WinnerID != "only" || res.Reasoning != "sole candidate" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Scores["only"] != 0.7 {
		t.Fatalf("expected score 0.7, got %v", res.Scores["only"])
	}
	h.AssertEventEmitted(event.PatternResolved)
}

func TestStore_QueryResolvedTeamPriority(t *testing.T) {
	h := testutil.NewTestHarness(t)
	h.Store.Insert(testutil.NewRecord("style", "sig", pattern.CategoryStyle, 0.8, "a"))
	h.Store.Insert(testutil.NewRecord("sec", "sig", pattern.CategorySecurity, 0.6, "b"))

	res, err := h.Store.QueryResolved("sig", resolver.TeamPriority, resolver.TeamConfig{PriorityCategory: pattern.CategorySecurity})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.WinnerID != "sec" {
		t.Fatalf("expected sec to win, got %s (%s)", res.WinnerID, res.Reasoning)
	}
}

func TestStore_QueryResolvedUsesStoreDefaults(t *testing.T) {
	h := testutil.NewTestHarness(t,
		store.WithDefaultStrategy(resolver.TeamPriority),
		store.WithTeamConfig(resolver.TeamConfig{Priority: resolver.PriorityTesting}),
	)
	h.Store.Insert(testutil.NewRecord("style", "sig", pattern.CategoryStyle, 0.9, "a"))
	h.Store.Insert(testutil.NewRecord("test", "sig", pattern.CategoryTesting, 0.2, "b"))

	res, err := h.Store.QueryResolved("sig", "", resolver.TeamConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StrategyUsed != resolver.TeamPriority {
		t.Fatalf("expected team_priority, got %s", res.StrategyUsed)
	}
	if res.WinnerID != "test" {
		t.Fatalf("expected test to win, got %s", res.WinnerID)
	}
}

func TestStore_QueryResolvedUnknownStrategy(t *testing.T) {
	h := testutil.NewTestHarness(t)
	h.Store.Insert(rec("p1", "sig", 0.5))

	_, err := h.Store.QueryResolved("sig", resolver.Strategy("coin_flip"), resolver.TeamConfig{})
	if !errors.Is(err, perrors.ErrUnknownStrategy) {
		t.Fatalf("expected UNKNOWN_STRATEGY, got %v", err)
	}
	got, _ := h.Store.Get("p1")
	if got.UsageCount != 0 {
		t.Fatal("expected rejected resolution not to touch records")
	}
}

func TestStore_QueryResolvedDeterministicTie(t *testing.T) {
	h := testutil.NewTestHarness(t)
	h.Store.Insert(rec("pat_005", "react|component", 0.8))
	h.Store.Insert(rec("pat_001", "react|component", 0.8))

	first, err := h.Store.QueryResolved("react|component", resolver.WeightedScore, resolver.TeamConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.WinnerID != "pat_001" {
		t.Fatalf("expected pat_001 on id tie-break, got %s", first.WinnerID)
	}
	// Both were touched together, so the tie persists.
	second, _ := h.Store.QueryResolved("react|component", resolver.WeightedScore, resolver.TeamConfig{})
	if second.WinnerID != first.WinnerID {
		t.Fatalf("expected stable winner, got %s then %s", first.WinnerID, second.WinnerID)
	}
}

func TestStore_Supersede(t *testing.T) {
	h := testutil.NewTestHarness(t)
	h.Store.Insert(rec("v1", "sig", 0.5))
	h.Store.Query("sig")
	h.Store.Query("sig")
	h.Advance(time.Hour)

	next := rec("", "sig", 0.9)
	id, err := h.Store.Supersede("v1", next)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "v1" || id == "" {
		t.Fatalf("expected fresh id, got %q", id)
	}
	if _, err := h.Store.Get("v1"); !errors.Is(err, perrors.ErrNotFound) {
		t.Fatalf("expected v1 to be gone, got %v", err)
	}
	got, _ := h.Store.Get(id)
	if got.Confidence != 0.9 || got.UsageCount != 2 {
		t.Fatalf("expected confidence 0.9 and usage 2, got %v / %d", got.Confidence, got.UsageCount)
	}
	if !got.CreatedAt.Equal(testutil.BaseTime.Add(time.Hour)) {
		t.Fatalf("expected created_at restamped, got %v", got.CreatedAt)
	}
	if h.Store.Size() != 1 {
		t.Fatalf("expected size 1, got %d", h.Store.Size())
	}
	h.AssertEventEmitted(event.PatternSuperseded)
}

func TestStore_SupersedeKeepsID(t *testing.T) {
	h := testutil.NewTestHarness(t)
	h.Store.Insert(rec("v1", "sig", 0.5))

	id, err := h.Store.Supersede("v1", rec("v1", "sig", 0.7))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "v1" {
		t.Fatalf("expected id v1, got %s", id)
	}
	got, _ := h.Store.Get("v1")
	if got.Confidence != 0.7 {
		t.Fatalf("expected confidence 0.7, got %v", got.Confidence)
	}
}

func TestStore_SupersedeOwnershipMismatch(t *testing.T) {
	h := testutil.NewTestHarness(t)
	h.Store.Insert(rec("v1", "sig", 0.5))

	intruder := testutil.NewRecord("", "sig", pattern.CategoryStyle, 0.9, "agent-b")
	_, err := h.Store.Supersede("v1", intruder)
	if !errors.Is(err, perrors.ErrOwnershipMismatch) {
		t.Fatalf("expected OWNERSHIP_MISMATCH, got %v", err)
	}
	got, err := h.Store.Get("v1")
	if err != nil {
		t.Fatalf("expected original intact, got %v", err)
	}
	if got.Confidence != 0.5 || got.ContributorID != "agent-a" {
		t.Fatalf("original record changed: %+v", got)
	}
	if h.Store.Size() != 1 {
		t.Fatalf("expected size 1, got %d", h.Store.Size())
	}
}

func TestStore_SupersedeErrors(t *testing.T) {
	h := testutil.NewTestHarness(t, store.WithTTL(day))
	h.Store.Insert(rec("v1", "sig", 0.5))
	h.Store.Insert(rec("v2", "sig", 0.5))

	if _, err := h.Store.Supersede("missing", rec("", "sig", 0.5)); !errors.Is(err, perrors.ErrNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
	if _, err := h.Store.Supersede("v1", rec("", "sig", 2)); !errors.Is(err, perrors.ErrInvalidConfidence) {
		t.Errorf("expected INVALID_CONFIDENCE, got %v", err)
	}
	if _, err := h.Store.Supersede("v1", rec("v2", "sig", 0.5)); !errors.Is(err, perrors.ErrDuplicateID) {
		t.Errorf("expected DUPLICATE_ID, got %v", err)
	}
	if h.Store.Size() != 2 {
		t.Fatalf("expected failed supersedes to leave size 2, got %d", h.Store.Size())
	}

	h.Advance(2 * day)
	if _, err := h.Store.Supersede("v1", rec("", "sig", 0.5)); !errors.Is(err, perrors.ErrNotFound) {
		t.Errorf("expected NOT_FOUND for expired record, got %v", err)
	}
}

func TestStore_Remove(t *testing.T) {
	h := testutil.NewTestHarness(t)
	h.Store.Insert(rec("p1", "sig", 0.5))

	if !h.Store.Remove("p1") {
		t.Fatal("expected first remove to report true")
	}
	if h.Store.Remove("p1") {
		t.Fatal("expected second remove to report false")
	}
	if len(h.Store.Query("sig")) != 0 {
		t.Fatal("expected removed record to be gone from the signature index")
	}
	if h.EventCount(event.PatternRemoved) != 1 {
		t.Fatalf("expected 1 removed event, got %d", h.EventCount(event.PatternRemoved))
	}
}

func TestStore_Stats(t *testing.T) {
	h := testutil.NewTestHarness(t)
	h.Store.Insert(testutil.NewRecord("a", "s", pattern.CategorySecurity, 0.5, "agent-1"))
	h.Store.Insert(testutil.NewRecord("b", "s", pattern.CategorySecurity, 0.5, "agent-2"))
	h.Store.Insert(testutil.NewRecord("c", "s", pattern.Category("custom"), 0.5, "agent-1"))

	st := h.Store.Stats()
	if st.TotalPatterns != 3 {
		t.Fatalf("expected 3 patterns, got %d", st.TotalPatterns)
	}
	if st.PatternsByCategory["security"] != 2 || st.PatternsByCategory["custom"] != 1 {
		t.Fatalf("unexpected category counts: %v", st.PatternsByCategory)
	}
	if st.PatternsByContributor["agent-1"] != 2 || st.PatternsByContributor["agent-2"] != 1 {
		t.Fatalf("unexpected contributor counts: %v", st.PatternsByContributor)
	}
	if st.EvictionCountLifetime != 0 {
		t.Fatalf("expected no evictions, got %d", st.EvictionCountLifetime)
	}
	if st.MaxPatterns != store.DefaultMaxPatterns {
		t.Fatalf("expected max %d, got %d", store.DefaultMaxPatterns, st.MaxPatterns)
	}
}

func TestStore_Metrics(t *testing.T) {
	h := testutil.NewTestHarness(t)
	h.Store.Insert(rec("p1", "sig", 0.5))
	h.Store.Insert(rec("p1", "sig", 0.5))
	h.Store.Query("sig")
	h.Store.Query("missing")

	summary := h.Metrics.GetSummary()
	if summary["patternmem_inserts_total.ok"] != 1 {
		t.Errorf("expected 1 ok insert, got %v", summary["patternmem_inserts_total.ok"])
	}
	if summary["patternmem_inserts_total.DUPLICATE_ID"] != 1 {
		t.Errorf("expected 1 duplicate insert, got %v", summary["patternmem_inserts_total.DUPLICATE_ID"])
	}
	if summary["patternmem_queries_total.hit"] != 1 || summary["patternmem_queries_total.miss"] != 1 {
		t.Errorf("unexpected query counts: %v", summary)
	}
	if summary["patternmem_patterns"] != 1 {
		t.Errorf("expected patterns gauge 1, got %v", summary["patternmem_patterns"])
	}
}
