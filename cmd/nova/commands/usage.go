package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show per-model token usage totals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if app.usage == nil {
				return fmt.Errorf("usage tracking unavailable")
			}
			totals, err := app.usage.Totals()
			if err != nil {
				return err
			}
			if len(totals) == 0 {
				fmt.Println("No completions recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tCOMPLETIONS\tPROMPT\tCOMPLETION\tTOTAL")
			for _, row := range totals {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", row.Model, row.Completions, row.PromptTokens, row.CompletionTokens, row.PromptTokens+row.CompletionTokens)
			}
			return w.Flush()
		},
	}
}
