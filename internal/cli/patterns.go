package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/patternmem/internal/pattern"
	"github.com/cadre-oss/patternmem/pkg/patternmem"
)

var (
	recID          string
	recName        string
	recCategory    string
	recConfidence  float64
	recContributor string
	recContext     map[string]string
	recPayload     map[string]string
	recExamples    []string
)

var insertCmd = &cobra.Command{
	Use:   "insert <signature>",
	Short: "Insert a pattern",
	Long: `Insert a pattern under a context signature.

Examples:
  patternmem insert "go|http" --contributor agent-a --confidence 0.8 --payload router=chi
  patternmem insert handler --context framework=gin --category security --contributor agent-b`,
	Args: cobra.ExactArgs(1),
	RunE: runInsert,
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a pattern",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var supersedeCmd = &cobra.Command{
	Use:   "supersede <old-id> <signature>",
	Short: "Replace a pattern with a revised version",
	Long: `Replace a pattern owned by the contributor with a revised version.
The usage count carries over; timestamps restart.`,
	Args: cobra.ExactArgs(2),
	RunE: runSupersede,
}

var removeCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a pattern",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	for _, cmd := range []*cobra.Command{insertCmd, supersedeCmd} {
		cmd.Flags().StringVar(&recID, "id", "", "pattern id (generated when empty)")
		cmd.Flags().StringVar(&recName, "name", "", "pattern name")
		cmd.Flags().StringVar(&recCategory, "category", string(pattern.CategoryBestPractice), "security, performance, style, testing or best_practice")
		cmd.Flags().Float64Var(&recConfidence, "confidence", 0.5, "confidence in [0, 1]")
		cmd.Flags().StringVar(&recContributor, "contributor", "", "contributing agent id")
		cmd.Flags().StringToStringVar(&recContext, "context", nil, "context key=value pairs")
		cmd.Flags().StringToStringVar(&recPayload, "payload", nil, "payload key=value pairs")
		cmd.Flags().StringArrayVar(&recExamples, "example", nil, "example snippet (repeatable)")
		cmd.MarkFlagRequired("contributor")
	}
}

func recordFromFlags(sigArg string) pattern.Record {
	return pattern.Record{
		ID:               recID,
		Name:             recName,
		Category:         pattern.Category(recCategory),
		Confidence:       recConfidence,
		ContextSignature: signatureArg(sigArg, recContext),
		ContributorID:    recContributor,
		Examples:         recExamples,
		Payload:          recPayload,
	}
}

func runInsert(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *patternmem.Engine) error {
		id, err := eng.Store.Insert(recordFromFlags(args[0]))
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), map[string]string{"id": id})
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	})
}

func runGet(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *patternmem.Engine) error {
		rec, err := eng.Store.Get(args[0])
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), rec)
		}
		printRecord(cmd.OutOrStdout(), rec)
		return nil
	})
}

func runSupersede(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *patternmem.Engine) error {
		id, err := eng.Store.Supersede(args[0], recordFromFlags(args[1]))
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), map[string]string{"id": id, "superseded": args[0]})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Superseded %s with %s\n", args[0], id)
		return nil
	})
}

func runRemove(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *patternmem.Engine) error {
		removed := eng.Store.Remove(args[0])
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), map[string]bool{"removed": removed})
		}
		if !removed {
			fmt.Fprintf(cmd.OutOrStdout(), "Pattern %s not found.\n", args[0])
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	})
}
