package resolver

import (
	"strings"

	perrors "github.com/cadre-oss/patternmem/internal/errors"
	"github.com/cadre-oss/patternmem/internal/pattern"
)

// Strategy names a scoring function used to pick one winner among candidates.
type Strategy string

const (
	HighestConfidence Strategy = "highest_confidence"
	MostRecent        Strategy = "most_recent"
	BestContextMatch  Strategy = "best_context_match"
	TeamPriority      Strategy = "team_priority"
	WeightedScore     Strategy = "weighted_score"

	DefaultStrategy = WeightedScore
)

// Strategies lists every built-in strategy.
var Strategies = []Strategy{
	HighestConfidence,
	MostRecent,
	BestContextMatch,
	TeamPriority,
	WeightedScore,
}

// Valid reports whether s is a built-in strategy.
func (s Strategy) Valid() bool {
	for _, known := range Strategies {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStrategy converts a strategy name to a Strategy. Unknown names are an
// error; there is no silent fallback to the default.
func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(strings.ToLower(strings.TrimSpace(name)))
	if !s.Valid() {
		return "", unknownStrategy(name)
	}
	return s, nil
}

func unknownStrategy(name string) error {
	return perrors.Newf(perrors.CodeUnknownStrategy, "unknown resolution strategy %q", name).
		WithSuggestion("Use one of highest_confidence, most_recent, best_context_match, team_priority, weighted_score")
}

// Named team priorities and the category each one favors.
const (
	PriorityBalanced    = "balanced"
	PrioritySecurity    = "security"
	PriorityReadability = "readability"
	PriorityPerformance = "performance"
	PriorityTesting     = "testing"
	PriorityQuality     = "quality"
)

var priorityCategories = map[string]pattern.Category{
	PriorityBalanced:    "",
	PrioritySecurity:    pattern.CategorySecurity,
	PriorityReadability: pattern.CategoryStyle,
	PriorityPerformance: pattern.CategoryPerformance,
	PriorityTesting:     pattern.CategoryTesting,
	PriorityQuality:     pattern.CategoryBestPractice,
}

// TeamConfig carries the team preferences that apply to one resolution call.
type TeamConfig struct {
	// Priority is a named priority such as "security" or "readability".
	Priority string `json:"priority,omitempty"`
	// PriorityCategory, when set, overrides the category implied by Priority.
	PriorityCategory pattern.Category `json:"priority_category,omitempty"`
	// CurrentContext is the signature best_context_match compares against.
	CurrentContext string `json:"current_context,omitempty"`
}

// Category returns the category favored by the team, or "" for balanced.
// Unknown priority names are treated as a category name.
func (tc TeamConfig) Category() pattern.Category {
	if tc.PriorityCategory != "" {
		return tc.PriorityCategory
	}
	p := strings.ToLower(strings.TrimSpace(tc.Priority))
	if cat, ok := priorityCategories[p]; ok {
		return cat
	}
	return pattern.Category(p)
}

// Weights are the coefficients used by the weighted and team strategies.
type Weights struct {
	Confidence    float64 `yaml:"confidence" json:"confidence"`
	SecurityBonus float64 `yaml:"security_bonus" json:"security_bonus"`
	CategoryBonus float64 `yaml:"category_bonus" json:"category_bonus"`
	Recency       float64 `yaml:"recency" json:"recency"`
	TeamMatch     float64 `yaml:"team_match" json:"team_match"`
	TeamOther     float64 `yaml:"team_other" json:"team_other"`
}

// DefaultWeights returns the stock coefficients.
func DefaultWeights() Weights {
	return Weights{
		Confidence:    0.4,
		SecurityBonus: 0.3,
		CategoryBonus: 0.1,
		Recency:       0.2,
		TeamMatch:     0.9,
		TeamOther:     0.5,
	}
}
