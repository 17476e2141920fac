// Package snapshot persists point-in-time copies of the pattern store.
//
// Snapshots are written from a copy taken under the store lock, so the
// write itself never blocks Insert or Query callers.
package snapshot

import (
	"fmt"

	"github.com/cadre-oss/patternmem/internal/pattern"
)

// Snapshotter saves and restores the full record set.
type Snapshotter interface {
	// Save atomically replaces the persisted snapshot with records.
	Save(records []pattern.Record) error

	// Load returns the persisted records, or none if nothing was saved yet.
	Load() ([]pattern.Record, error)

	// Close releases any resources held by the snapshotter.
	Close() error
}

// Drivers understood by Open.
const (
	DriverNone   = "none"
	DriverNDJSON = "ndjson"
	DriverSQLite = "sqlite"
)

// Open creates a snapshotter for driver at path. The none driver (or an
// empty driver) returns nil, meaning the store is purely in-memory.
func Open(driver, path string) (Snapshotter, error) {
	switch driver {
	case DriverNone, "":
		return nil, nil
	case DriverNDJSON:
		f, err := NewFileSnapshotter(path)
		if err != nil {
			return nil, err
		}
		return f, nil
	case DriverSQLite:
		s, err := NewSQLiteSnapshotter(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create sqlite snapshotter: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported snapshot driver: %s", driver)
	}
}
