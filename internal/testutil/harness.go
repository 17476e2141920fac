package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/cadre-oss/patternmem/internal/event"
	"github.com/cadre-oss/patternmem/internal/store"
	"github.com/cadre-oss/patternmem/internal/telemetry"
)

// TestHarness provides everything needed for store-level tests:
// a store on a fake clock, an event bus, metrics and captured events.
type TestHarness struct {
	T        *testing.T
	Store    *store.Store
	Clock    *FakeClock
	EventBus *event.Bus
	Logger   *telemetry.Logger
	Metrics  *telemetry.Metrics

	mu     sync.Mutex
	events []event.Event
}

// NewTestHarness creates a harness. Extra options are applied after the
// harness defaults, so they can override capacity or TTL.
func NewTestHarness(t *testing.T, opts ...store.Option) *TestHarness {
	t.Helper()

	logger := TestLogger()
	bus := event.NewBus(logger)
	clock := NewFakeClock(BaseTime)
	metrics := telemetry.NewMetrics()

	h := &TestHarness{
		T:        t,
		Clock:    clock,
		EventBus: bus,
		Logger:   logger,
		Metrics:  metrics,
	}

	// Capture events via a hook
	bus.Register(&eventCapture{harness: h})

	base := []store.Option{
		store.WithClock(clock.Now),
		store.WithEventBus(bus),
		store.WithLogger(logger),
		store.WithMetrics(metrics),
	}
	h.Store = store.New(append(base, opts...)...)
	t.Cleanup(func() { h.Store.Close() })
	return h
}

// Advance moves the harness clock forward.
func (h *TestHarness) Advance(d time.Duration) {
	h.Clock.Advance(d)
}

// Events returns a copy of every captured event.
func (h *TestHarness) Events() []event.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]event.Event, len(h.events))
	copy(out, h.events)
	return out
}

// AssertEventEmitted checks that an event with the given type was emitted.
func (h *TestHarness) AssertEventEmitted(eventType event.EventType) {
	h.T.Helper()
	if h.EventCount(eventType) == 0 {
		h.T.Errorf("expected event %q to be emitted", eventType)
	}
}

// AssertNoEvent checks that an event type was NOT emitted.
func (h *TestHarness) AssertNoEvent(eventType event.EventType) {
	h.T.Helper()
	if h.EventCount(eventType) > 0 {
		h.T.Errorf("expected event %q NOT to be emitted, but it was", eventType)
	}
}

// EventCount returns the number of events with the given type.
func (h *TestHarness) EventCount(eventType event.EventType) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	count := 0
	for _, e := range h.events {
		if e.Type == eventType {
			count++
		}
	}
	return count
}

// eventCapture is a blocking hook that records events.
type eventCapture struct {
	harness *TestHarness
}

func (c *eventCapture) Name() string                 { return "test-capture" }
func (c *eventCapture) Matches(event.EventType) bool { return true } // match all
func (c *eventCapture) IsBlocking() bool             { return true } // sync for tests

func (c *eventCapture) Handle(ev event.Event) error {
	c.harness.mu.Lock()
	defer c.harness.mu.Unlock()
	c.harness.events = append(c.harness.events, ev)
	return nil
}
