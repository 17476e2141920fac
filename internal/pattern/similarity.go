package pattern

// SimilarityFunc scores how alike two context signatures are, in [0, 1].
type SimilarityFunc func(a, b string) float64

// Similarity is the default SimilarityFunc: one minus the token-level edit
// distance normalized by the longer token list.
func Similarity(a, b string) float64 {
	ta, tb := tokens(a), tokens(b)
	longest := max(len(ta), len(tb))
	if longest == 0 {
		return 1
	}
	return Clamp01(1 - float64(levenshtein(ta, tb))/float64(longest))
}

// Clamp01 clamps v to [0, 1].
func Clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func levenshtein(a, b []string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
