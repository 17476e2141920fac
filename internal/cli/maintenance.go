package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/patternmem/pkg/patternmem"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop expired patterns and flush the snapshot",
	RunE:  runPrune,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	RunE:  runStats,
}

func runPrune(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *patternmem.Engine) error {
		res := eng.Store.Prune()
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d expired, %d over capacity.\n", res.ExpiredRemoved, res.LRURemoved)
		return nil
	})
}

func runStats(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *patternmem.Engine) error {
		st := eng.Store.Stats()
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), st)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Pattern Store:")
		fmt.Fprintln(out, "--------------")
		fmt.Fprintf(out, "Patterns:  %d / %d\n", st.TotalPatterns, st.MaxPatterns)
		fmt.Fprintf(out, "TTL:       %s\n", st.TTL)
		fmt.Fprintf(out, "Evictions: %d (%d expired, %d lru)\n",
			st.EvictionCountLifetime, st.Evictions.Expired, st.Evictions.LRU)
		printCounts(cmd, "By category", st.PatternsByCategory)
		printCounts(cmd, "By contributor", st.PatternsByContributor)
		return nil
	})
}

func printCounts(cmd *cobra.Command, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(out, "  %-20s %d\n", k, counts[k])
	}
}
