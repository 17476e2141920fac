package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cadre-oss/patternmem/internal/pattern"
)

func sampleRecords() []pattern.Record {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []pattern.Record{
		{
			ID:               "pat_001",
			Name:             "strict mode",
			Category:         pattern.CategoryStyle,
			Confidence:       0.8,
			ContextSignature: "typescript|config",
			ContributorID:    "agent-a",
			CreatedAt:        base,
			LastUsedAt:       base.Add(time.Hour),
			UsageCount:       3,
			Examples:         []string{"tsconfig.json"},
			Payload:          map[string]string{"strict": "true"},
		},
		{
			ID:               "pat_002",
			Name:             "parameterized queries",
			Category:         pattern.CategorySecurity,
			Confidence:       0.95,
			ContextSignature: "sql|queries",
			ContributorID:    "agent-b",
			CreatedAt:        base.Add(2 * time.Hour),
			LastUsedAt:       base.Add(2 * time.Hour),
		},
	}
}

func assertRoundTrip(t *testing.T, s Snapshotter) {
	t.Helper()
	want := sampleRecords()
	if err := s.Save(want); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Errorf("record %d: expected id %s, got %s", i, want[i].ID, got[i].ID)
		}
		if got[i].Confidence != want[i].Confidence {
			t.Errorf("record %d: expected confidence %v, got %v", i, want[i].Confidence, got[i].Confidence)
		}
		if !got[i].CreatedAt.Equal(want[i].CreatedAt) {
			t.Errorf("record %d: expected created_at %v, got %v", i, want[i].CreatedAt, got[i].CreatedAt)
		}
		if !got[i].LastUsedAt.Equal(want[i].LastUsedAt) {
			t.Errorf("record %d: expected last_used_at %v, got %v", i, want[i].LastUsedAt, got[i].LastUsedAt)
		}
		if got[i].UsageCount != want[i].UsageCount {
			t.Errorf("record %d: expected usage %d, got %d", i, want[i].UsageCount, got[i].UsageCount)
		}
		if got[i].Category != want[i].Category {
			t.Errorf("record %d: expected category %s, got %s", i, want[i].Category, got[i].Category)
		}
	}
	if got[0].Payload["strict"] != "true" {
		t.Errorf("expected payload to survive, got %v", got[0].Payload)
	}
	if len(got[0].Examples) != 1 || got[0].Examples[0] != "tsconfig.json" {
		t.Errorf("expected examples to survive, got %v", got[0].Examples)
	}

	// A second save replaces rather than appends.
	if err := s.Save(want[:1]); err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	got, err = s.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record after replace, got %d", len(got))
	}
}

func TestFileSnapshotter_RoundTrip(t *testing.T) {
	s, err := NewFileSnapshotter(filepath.Join(t.TempDir(), "nested", "patterns.ndjson"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()
	assertRoundTrip(t, s)
}

func TestFileSnapshotter_MissingFileIsEmpty(t *testing.T) {
	s, err := NewFileSnapshotter(filepath.Join(t.TempDir(), "patterns.ndjson"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	records, err := s.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestFileSnapshotter_OneRecordPerLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.ndjson")
	s, err := NewFileSnapshotter(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Save(sampleRecords()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("readdir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, found %d entries", len(entries))
	}
}

func TestFileSnapshotter_CorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.ndjson")
	if err := os.WriteFile(path, []byte("{\"id\":\"ok\"}\nnot json\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	s, _ := NewFileSnapshotter(path)
	if _, err := s.Load(); err == nil {
		t.Fatal("expected error for corrupt line")
	}
}

func TestFileSnapshotter_RequiresPath(t *testing.T) {
	if _, err := NewFileSnapshotter(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSQLiteSnapshotter_RoundTrip(t *testing.T) {
	s, err := NewSQLiteSnapshotter(filepath.Join(t.TempDir(), "patterns.db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()
	assertRoundTrip(t, s)
}

func TestSQLiteSnapshotter_InMemory(t *testing.T) {
	s, err := NewSQLiteSnapshotter(":memory:")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()
	assertRoundTrip(t, s)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(DriverNone, "")
	if err != nil || s != nil {
		t.Fatalf("expected nil snapshotter for none driver, got %v, %v", s, err)
	}

	s, err = Open(DriverNDJSON, filepath.Join(dir, "p.ndjson"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.(*FileSnapshotter); !ok {
		t.Fatalf("expected *FileSnapshotter, got %T", s)
	}

	s, err = Open(DriverSQLite, filepath.Join(dir, "p.db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteSnapshotter); !ok {
		t.Fatalf("expected *SQLiteSnapshotter, got %T", s)
	}

	if _, err := Open("postgres", "x"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
