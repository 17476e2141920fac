// Package resolver picks a single winning pattern among candidates that share
// a context signature.
//
// Resolution is a pure function of the candidate set, strategy, team
// configuration and the supplied time. It never reads the clock, never uses
// randomness and never mutates its inputs, so it needs no locking.
package resolver

import (
	"fmt"
	"sort"
	"time"

	perrors "github.com/cadre-oss/patternmem/internal/errors"
	"github.com/cadre-oss/patternmem/internal/pattern"
)

// Result is the outcome of a resolution.
type Result struct {
	WinnerID     string             `json:"winner_id"`
	Winner       pattern.Record     `json:"winner"`
	Reasoning    string             `json:"reasoning"`
	Scores       map[string]float64 `json:"scores"`
	StrategyUsed Strategy           `json:"strategy_used"`
}

// Resolver scores candidates with configurable weights and similarity.
type Resolver struct {
	Weights    Weights
	Similarity pattern.SimilarityFunc
}

// New returns a Resolver with default weights and similarity.
func New() *Resolver {
	return &Resolver{Weights: DefaultWeights(), Similarity: pattern.Similarity}
}

// Resolve picks the winner among candidates using strategy.
func (r *Resolver) Resolve(candidates []pattern.Record, strategy Strategy, team TeamConfig, now time.Time) (Result, error) {
	if len(candidates) == 0 {
		return Result{}, perrors.New(perrors.CodeEmptyCandidateSet, "resolve called with no candidates")
	}
	if !strategy.Valid() {
		return Result{}, unknownStrategy(string(strategy))
	}

	if len(candidates) == 1 {
		c := candidates[0]
		return Result{
			WinnerID:     c.ID,
			Winner:       c.Clone(),
			Reasoning:    "sole candidate",
			Scores:       map[string]float64{c.ID: c.Confidence},
			StrategyUsed: strategy,
		}, nil
	}

	scores := r.score(candidates, strategy, team, now)
	ranked := rank(candidates, scores)
	winner := ranked[0]

	return Result{
		WinnerID:     winner.ID,
		Winner:       winner.Clone(),
		Reasoning:    r.explain(winner, ranked, scores, strategy, team),
		Scores:       scores,
		StrategyUsed: strategy,
	}, nil
}

// MustResolve is Resolve for callers that treat an empty candidate set or an
// unknown strategy as a bug. It panics on error.
func (r *Resolver) MustResolve(candidates []pattern.Record, strategy Strategy, team TeamConfig, now time.Time) Result {
	res, err := r.Resolve(candidates, strategy, team, now)
	if err != nil {
		panic(err)
	}
	return res
}

func (r *Resolver) score(candidates []pattern.Record, strategy Strategy, team TeamConfig, now time.Time) map[string]float64 {
	scores := make(map[string]float64, len(candidates))
	switch strategy {
	case HighestConfidence:
		for _, c := range candidates {
			scores[c.ID] = c.Confidence
		}
	case MostRecent:
		// Seconds since the oldest candidate; absolute Unix seconds lose
		// sub-microsecond differences in a float64.
		oldest := candidates[0].CreatedAt
		for _, c := range candidates[1:] {
			if c.CreatedAt.Before(oldest) {
				oldest = c.CreatedAt
			}
		}
		for _, c := range candidates {
			scores[c.ID] = c.CreatedAt.Sub(oldest).Seconds()
		}
	case BestContextMatch:
		sim := r.Similarity
		if sim == nil {
			sim = pattern.Similarity
		}
		for _, c := range candidates {
			scores[c.ID] = pattern.Clamp01(sim(team.CurrentContext, c.ContextSignature))
		}
	case TeamPriority:
		favored := team.Category()
		for _, c := range candidates {
			if favored != "" && c.Category == favored {
				scores[c.ID] = r.Weights.TeamMatch
			} else {
				scores[c.ID] = r.Weights.TeamOther
			}
		}
	case WeightedScore:
		recency := normalizedRecency(candidates)
		for _, c := range candidates {
			scores[c.ID] = c.Confidence*r.Weights.Confidence + r.categoryBonus(c) + r.Weights.Recency*recency[c.ID]
		}
	}
	return scores
}

// categoryBonus is the fixed weighted_score bonus. It does not depend on the
// team; team preferences only drive team_priority.
func (r *Resolver) categoryBonus(c pattern.Record) float64 {
	if c.Category == pattern.CategorySecurity {
		return r.Weights.SecurityBonus
	}
	return r.Weights.CategoryBonus
}

// normalizedRecency maps the most recently used candidate to 1 and the least
// recently used to 0. If all were used at the same instant, all map to 1.
func normalizedRecency(candidates []pattern.Record) map[string]float64 {
	oldest, newest := candidates[0].LastUsedAt, candidates[0].LastUsedAt
	for _, c := range candidates[1:] {
		if c.LastUsedAt.Before(oldest) {
			oldest = c.LastUsedAt
		}
		if c.LastUsedAt.After(newest) {
			newest = c.LastUsedAt
		}
	}

	out := make(map[string]float64, len(candidates))
	span := newest.Sub(oldest)
	for _, c := range candidates {
		if span <= 0 {
			out[c.ID] = 1
			continue
		}
		out[c.ID] = float64(c.LastUsedAt.Sub(oldest)) / float64(span)
	}
	return out
}

// rank orders candidates best first: score, then last_used_at, then
// usage_count, then smallest id.
func rank(candidates []pattern.Record, scores map[string]float64) []pattern.Record {
	ranked := make([]pattern.Record, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if sa, sb := scores[a.ID], scores[b.ID]; sa != sb {
			return sa > sb
		}
		if !a.LastUsedAt.Equal(b.LastUsedAt) {
			return a.LastUsedAt.After(b.LastUsedAt)
		}
		if a.UsageCount != b.UsageCount {
			return a.UsageCount > b.UsageCount
		}
		return a.ID < b.ID
	})
	return ranked
}

func (r *Resolver) explain(winner pattern.Record, ranked []pattern.Record, scores map[string]float64, strategy Strategy, team TeamConfig) string {
	score := scores[winner.ID]
	runnerUp := ranked[1]
	if scores[runnerUp.ID] == score {
		return fmt.Sprintf("%s wins with score %.3f (%s); tie broken by %s",
			winner.ID, score, strategy, tieBreaker(winner, runnerUp))
	}

	var factor string
	switch strategy {
	case HighestConfidence:
		factor = fmt.Sprintf("highest confidence %.2f", winner.Confidence)
	case MostRecent:
		factor = "created most recently at " + winner.CreatedAt.UTC().Format(time.RFC3339)
	case BestContextMatch:
		factor = fmt.Sprintf("closest context match to %q", team.CurrentContext)
	case TeamPriority:
		if fav := team.Category(); fav != "" && winner.Category == fav {
			factor = fmt.Sprintf("category %s matches team priority", winner.Category)
		} else {
			factor = "no candidate matches team priority"
		}
	case WeightedScore:
		switch {
		case winner.Category == pattern.CategorySecurity && runnerUp.Category != pattern.CategorySecurity:
			factor = "security category bonus"
		case winner.Confidence > runnerUp.Confidence:
			factor = fmt.Sprintf("confidence %.2f", winner.Confidence)
		default:
			factor = "more recent use"
		}
	}
	return fmt.Sprintf("%s wins with score %.3f (%s): %s", winner.ID, score, strategy, factor)
}

func tieBreaker(winner, runnerUp pattern.Record) string {
	switch {
	case !winner.LastUsedAt.Equal(runnerUp.LastUsedAt):
		return "more recent last use"
	case winner.UsageCount != runnerUp.UsageCount:
		return "higher usage count"
	default:
		return "smallest id"
	}
}
