// Package pattern defines the record stored by the pattern memory and the
// signature helpers used to key and compare records.
package pattern

import (
	"math"
	"time"

	perrors "github.com/cadre-oss/patternmem/internal/errors"
)

// Category tags what a pattern is about. The set is open: unknown values are
// stored as-is and never special-cased by built-in strategies.
type Category string

const (
	CategorySecurity     Category = "security"
	CategoryPerformance  Category = "performance"
	CategoryStyle        Category = "style"
	CategoryTesting      Category = "testing"
	CategoryBestPractice Category = "best_practice"
)

// KnownCategories lists the built-in categories.
var KnownCategories = []Category{
	CategorySecurity,
	CategoryPerformance,
	CategoryStyle,
	CategoryTesting,
	CategoryBestPractice,
}

// Known reports whether c is one of the built-in categories.
func (c Category) Known() bool {
	for _, k := range KnownCategories {
		if c == k {
			return true
		}
	}
	return false
}

// Record is a learned pattern contributed by an agent.
type Record struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Category         Category          `json:"category"`
	Confidence       float64           `json:"confidence"`
	ContextSignature string            `json:"context_signature"`
	ContributorID    string            `json:"contributor_id"`
	CreatedAt        time.Time         `json:"created_at"`
	LastUsedAt       time.Time         `json:"last_used_at"`
	UsageCount       int64             `json:"usage_count"`
	Examples         []string          `json:"examples,omitempty"`
	Payload          map[string]string `json:"payload,omitempty"`
}

// Validate checks the structural invariants of a record. Semantic
// correctness of the pattern is the contributor's concern.
func (r *Record) Validate() error {
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		return perrors.Newf(perrors.CodeInvalidConfidence,
			"confidence %v for pattern %q is outside [0, 1]", r.Confidence, r.Name).
			WithSuggestion("Clamp the confidence reported by the agent to the range 0.0-1.0")
	}
	return nil
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	if r.Examples != nil {
		out.Examples = make([]string, len(r.Examples))
		copy(out.Examples, r.Examples)
	}
	if r.Payload != nil {
		out.Payload = make(map[string]string, len(r.Payload))
		for k, v := range r.Payload {
			out.Payload[k] = v
		}
	}
	return out
}

// Touch records a use of the pattern at now.
// Callers must hold whatever lock guards the record.
func (r *Record) Touch(now time.Time) {
	r.UsageCount++
	if now.After(r.LastUsedAt) {
		r.LastUsedAt = now
	}
}

// Age returns how long ago the record was created.
func (r *Record) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}
