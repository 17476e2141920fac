package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/patternmem/internal/pattern"
	"github.com/cadre-oss/patternmem/internal/resolver"
	"github.com/cadre-oss/patternmem/pkg/patternmem"
)

var (
	queryContext    map[string]string
	resolveStrategy string
	resolvePriority string
	resolvePriorCat string
	resolveCurrent  string
)

var queryCmd = &cobra.Command{
	Use:   "query <signature>",
	Short: "List patterns recorded for a context",
	Long: `List the live patterns for a context signature. Every match counts
as a use and refreshes its recency.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <signature>",
	Short: "Pick the winning pattern for a context",
	Long: `Resolve competing patterns for a context signature.

Strategies: highest_confidence, most_recent, best_context_match,
team_priority, weighted_score.

Examples:
  patternmem resolve "go|http"
  patternmem resolve handler --context framework=gin --strategy team_priority --priority security`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	for _, cmd := range []*cobra.Command{queryCmd, resolveCmd} {
		cmd.Flags().StringToStringVar(&queryContext, "context", nil, "context key=value pairs")
	}
	resolveCmd.Flags().StringVarP(&resolveStrategy, "strategy", "s", "", "resolution strategy (default from config)")
	resolveCmd.Flags().StringVar(&resolvePriority, "priority", "", "team priority: balanced, security, readability, performance, testing, quality")
	resolveCmd.Flags().StringVar(&resolvePriorCat, "priority-category", "", "category favoured by team_priority")
	resolveCmd.Flags().StringVar(&resolveCurrent, "current", "", "context compared by best_context_match (default is the signature)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *patternmem.Engine) error {
		records := eng.Store.Query(signatureArg(args[0], queryContext))
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), records)
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No patterns found.")
			return nil
		}
		for _, rec := range records {
			printRecord(cmd.OutOrStdout(), rec)
			fmt.Fprintln(cmd.OutOrStdout())
		}
		return nil
	})
}

func runResolve(cmd *cobra.Command, args []string) error {
	team := resolver.TeamConfig{
		Priority:         resolvePriority,
		PriorityCategory: pattern.Category(resolvePriorCat),
		CurrentContext:   resolveCurrent,
	}
	return withEngine(func(eng *patternmem.Engine) error {
		res, err := eng.Store.QueryResolved(signatureArg(args[0], queryContext), resolver.Strategy(resolveStrategy), team)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), res)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Winner: %s (%s)\n", res.WinnerID, res.StrategyUsed)
		fmt.Fprintf(out, "Reason: %s\n\n", res.Reasoning)
		printRecord(out, res.Winner)
		if len(res.Scores) > 1 {
			fmt.Fprintln(out, "\nScores:")
			for _, id := range sortedKeys(res.Scores) {
				fmt.Fprintf(out, "  %-36s %.4f\n", id, res.Scores[id])
			}
		}
		return nil
	})
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
