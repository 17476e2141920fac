package event

import (
	"errors"
	"fmt"
	"sync"
)

// Bus dispatches store events to registered hooks.
//
// The store emits only after releasing its lock, so hooks never delay other
// agents. Dispatch rules:
//  1. Blocking hooks run in registration order before Emit returns.
//  2. Non-blocking hooks run in their own goroutines.
//  3. Blocking hook failures are joined into the returned error; the
//     remaining hooks still run because the store change is already committed.
//  4. Non-blocking failures and panics are logged as warnings.
//  5. A nil Bus is safe to use; every method is a no-op.
type Bus struct {
	mu      sync.RWMutex
	hooks   []Hook
	enabled bool
	logger  Logger
	wg      sync.WaitGroup
}

// Logger is the minimal logging surface the bus needs.
type Logger interface {
	Warn(msg string, keyvals ...interface{})
}

// NewBus creates an enabled event bus. Pass nil logger for silent operation.
func NewBus(logger Logger) *Bus {
	return &Bus{enabled: true, logger: logger}
}

// Register adds a hook to the bus.
func (b *Bus) Register(h Hook) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, h)
}

// Len returns the number of registered hooks.
func (b *Bus) Len() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.hooks)
}

// SetEnabled controls whether the bus dispatches events.
func (b *Bus) SetEnabled(enabled bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = enabled
}

// Emit dispatches ev to every matching hook.
func (b *Bus) Emit(ev Event) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	if !b.enabled {
		b.mu.RUnlock()
		return nil
	}
	hooks := make([]Hook, len(b.hooks))
	copy(hooks, b.hooks)
	b.mu.RUnlock()

	var errs []error
	for _, h := range hooks {
		if !h.Matches(ev.Type) {
			continue
		}
		if h.IsBlocking() {
			if err := h.Handle(ev); err != nil {
				errs = append(errs, fmt.Errorf("blocking hook %s failed: %w", h.Name(), err))
			}
			continue
		}

		b.wg.Add(1)
		go func(hook Hook) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil && b.logger != nil {
					b.logger.Warn("Non-blocking hook panicked",
						"hook", hook.Name(),
						"event", string(ev.Type),
						"panic", r,
					)
				}
			}()
			if err := hook.Handle(ev); err != nil && b.logger != nil {
				b.logger.Warn("Non-blocking hook failed",
					"hook", hook.Name(),
					"event", string(ev.Type),
					"error", err,
				)
			}
		}(h)
	}

	if len(errs) == 1 {
		return errs[0]
	}
	if len(errs) > 1 {
		return fmt.Errorf("%d blocking hooks failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// Wait blocks until every in-flight non-blocking hook has returned.
func (b *Bus) Wait() {
	if b == nil {
		return
	}
	b.wg.Wait()
}
