package snapshot

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cadre-oss/patternmem/internal/pattern"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSnapshotter stores the snapshot in a SQLite table. Each Save
// replaces the table contents inside one transaction.
type SQLiteSnapshotter struct {
	db *sql.DB
}

// NewSQLiteSnapshotter opens (or creates) the SQLite database at path.
func NewSQLiteSnapshotter(path string) (*SQLiteSnapshotter, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	// A single connection keeps :memory: databases alive across calls.
	db.SetMaxOpenConns(1)

	s := &SQLiteSnapshotter{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate snapshot database: %w", err)
	}
	return s, nil
}

func (s *SQLiteSnapshotter) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS patterns (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		confidence REAL NOT NULL,
		context_signature TEXT NOT NULL,
		contributor_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		last_used_at DATETIME NOT NULL,
		usage_count INTEGER NOT NULL DEFAULT 0,
		examples TEXT,
		payload TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_patterns_signature ON patterns(context_signature);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save replaces every stored record with records.
func (s *SQLiteSnapshotter) Save(records []pattern.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM patterns"); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO patterns (id, name, category, confidence, context_signature, contributor_id, created_at, last_used_at, usage_count, examples, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		examples, err := marshalNullable(r.Examples, len(r.Examples) > 0)
		if err != nil {
			return fmt.Errorf("marshal examples for %s: %w", r.ID, err)
		}
		payload, err := marshalNullable(r.Payload, len(r.Payload) > 0)
		if err != nil {
			return fmt.Errorf("marshal payload for %s: %w", r.ID, err)
		}
		if _, err := stmt.Exec(r.ID, r.Name, string(r.Category), r.Confidence, r.ContextSignature,
			r.ContributorID, r.CreatedAt.UTC(), r.LastUsedAt.UTC(), r.UsageCount, examples, payload); err != nil {
			return fmt.Errorf("insert %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// Load returns every stored record ordered by id.
func (s *SQLiteSnapshotter) Load() ([]pattern.Record, error) {
	rows, err := s.db.Query(`
		SELECT id, name, category, confidence, context_signature, contributor_id, created_at, last_used_at, usage_count, examples, payload
		FROM patterns
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []pattern.Record
	for rows.Next() {
		var r pattern.Record
		var category string
		var createdAt, lastUsedAt time.Time
		var examples, payload sql.NullString
		if err := rows.Scan(&r.ID, &r.Name, &category, &r.Confidence, &r.ContextSignature,
			&r.ContributorID, &createdAt, &lastUsedAt, &r.UsageCount, &examples, &payload); err != nil {
			return nil, err
		}
		r.Category = pattern.Category(category)
		r.CreatedAt = createdAt
		r.LastUsedAt = lastUsedAt
		if examples.Valid && examples.String != "" {
			if err := json.Unmarshal([]byte(examples.String), &r.Examples); err != nil {
				return nil, fmt.Errorf("unmarshal examples for %s: %w", r.ID, err)
			}
		}
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &r.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload for %s: %w", r.ID, err)
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteSnapshotter) Close() error {
	return s.db.Close()
}

func marshalNullable(v any, present bool) (*string, error) {
	if !present {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := string(data)
	return &out, nil
}
