package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/cadre-oss/patternmem/internal/pattern"
	"github.com/cadre-oss/patternmem/internal/telemetry"
)

// BaseTime is the fixed start of every fake clock.
var BaseTime = time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

// FakeClock is a manually advanced clock safe for concurrent use.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock frozen at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// MockSnapshotter is an in-memory snapshot.Snapshotter.
type MockSnapshotter struct {
	mu         sync.Mutex
	Records    []pattern.Record
	Saves      int
	ShouldFail bool
	FailErr    error
	Closed     bool
}

func (m *MockSnapshotter) Save(records []pattern.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saves++
	if m.ShouldFail {
		if m.FailErr != nil {
			return m.FailErr
		}
		return fmt.Errorf("mock snapshot error")
	}
	m.Records = make([]pattern.Record, len(records))
	for i, r := range records {
		m.Records[i] = r.Clone()
	}
	return nil
}

func (m *MockSnapshotter) Load() ([]pattern.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]pattern.Record, len(m.Records))
	for i, r := range m.Records {
		out[i] = r.Clone()
	}
	return out, nil
}

func (m *MockSnapshotter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// SaveCount returns how many times Save was called.
func (m *MockSnapshotter) SaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Saves
}

// TestLogger returns a logger suitable for tests (verbose, no file output).
func TestLogger() *telemetry.Logger {
	return telemetry.NewLogger(true)
}

// NewRecord returns a valid record for tests.
func NewRecord(id, signature string, category pattern.Category, confidence float64, contributor string) pattern.Record {
	return pattern.Record{
		ID:               id,
		Name:             id,
		Category:         category,
		Confidence:       confidence,
		ContextSignature: signature,
		ContributorID:    contributor,
	}
}
