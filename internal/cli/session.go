package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/patternmem/pkg/patternmem"
)

var (
	sessionAgent   string
	sessionContext map[string]string
	sessionValues  map[string]string
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <template>",
	Short: "Suggest form defaults for a template",
	Long: `Suggest defaults for a template from what other agents chose in the
same context.

Examples:
  patternmem suggest handler --agent scaffolder --context framework=gin`,
	Args: cobra.ExactArgs(1),
	RunE: runSuggest,
}

var recordCmd = &cobra.Command{
	Use:   "record <template>",
	Short: "Record the values chosen for a template",
	Long: `Record the values an agent settled on for a template so later
suggestions can reuse them.

Examples:
  patternmem record handler --agent scaffolder --context framework=gin --value router=chi`,
	Args: cobra.ExactArgs(1),
	RunE: runRecord,
}

func init() {
	for _, cmd := range []*cobra.Command{suggestCmd, recordCmd} {
		cmd.Flags().StringVar(&sessionAgent, "agent", "cli", "agent id")
		cmd.Flags().StringToStringVar(&sessionContext, "context", nil, "context key=value pairs")
	}
	recordCmd.Flags().StringToStringVar(&sessionValues, "value", nil, "chosen key=value pairs")
	recordCmd.MarkFlagRequired("value")
}

func runSuggest(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *patternmem.Engine) error {
		sess := eng.Session(sessionAgent)
		defaults := sess.SuggestDefaults(args[0], sessionContext)
		if jsonOut {
			if defaults == nil {
				defaults = map[string]string{}
			}
			return printJSON(cmd.OutOrStdout(), defaults)
		}
		out := cmd.OutOrStdout()
		if defaults == nil {
			fmt.Fprintln(out, "No suggestions yet.")
			return nil
		}
		for _, kv := range sortedPairs(defaults) {
			fmt.Fprintln(out, kv)
		}
		if reason, ok := sess.Explain(args[0], sessionContext); ok && verbose {
			fmt.Fprintf(out, "\n%s\n", reason)
		}
		return nil
	})
}

func runRecord(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *patternmem.Engine) error {
		id, err := eng.Session(sessionAgent).RecordChoice(args[0], sessionContext, sessionValues)
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
