// File: cmd/results.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stapply-ai/evals/internal/observability"
	"github.com/stapply-ai/evals/internal/results"
)

// newResultsCmd creates the `results` command group.
func newResultsCmd() *cobra.Command {
	resultsCmd := &cobra.Command{
		Use:   "results",
		Short: "Inspects recorded evaluation results",
	}
	resultsCmd.AddCommand(newResultsListCmd())
	resultsCmd.AddCommand(newResultsLatestCmd())
	return resultsCmd
}

// parseOptionalEval resolves an optional eval-name argument. No argument
// means all evaluations.
func parseOptionalEval(args []string) (results.EvalName, error) {
	if len(args) == 0 {
		return "", nil
	}
	return results.ParseEvalName(args[0])
}

func openStore() (*results.Store, error) {
	return results.NewStore(appCfg.Results.Dir, observability.GetLogger())
}

func newResultsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [eval]",
		Short: "Lists recorded result files, oldest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eval, err := parseOptionalEval(args)
			if err != nil {
				return err
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			files, err := store.List(eval)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No results recorded.")
				return nil
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
}

func newResultsLatestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest [eval]",
		Short: "Prints the path of the most recent result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eval, err := parseOptionalEval(args)
			if err != nil {
				return err
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			latest, err := store.Latest(eval)
			if err != nil {
				return err
			}
			if latest == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No results recorded.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), latest)
			return nil
		},
	}
}
