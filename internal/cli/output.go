package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/cadre-oss/patternmem/internal/pattern"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRecord(w io.Writer, rec pattern.Record) {
	fmt.Fprintf(w, "%s  %s  (%s, confidence %.2f)\n", rec.ID, rec.Name, rec.Category, rec.Confidence)
	fmt.Fprintf(w, "   Signature:   %s\n", rec.ContextSignature)
	fmt.Fprintf(w, "   Contributor: %s\n", rec.ContributorID)
	fmt.Fprintf(w, "   Created:     %s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "   Last used:   %s (%d uses)\n", rec.LastUsedAt.Format(time.RFC3339), rec.UsageCount)
	if len(rec.Payload) > 0 {
		fmt.Fprintf(w, "   Payload:     %s\n", formatValues(rec.Payload))
	}
	for _, ex := range rec.Examples {
		fmt.Fprintf(w, "   Example:     %s\n", ex)
	}
}

func formatValues(m map[string]string) string {
	return strings.Join(sortedPairs(m), ", ")
}

func sortedPairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+m[k])
	}
	return pairs
}

// signatureArg derives the signature from a positional argument and an
// optional --context map.
func signatureArg(arg string, ctx map[string]string) string {
	if len(ctx) == 0 {
		return pattern.NormalizeSignature(arg)
	}
	return pattern.ContextSignature(arg, ctx)
}
