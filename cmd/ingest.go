package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"jobmate/discovery-service/internal/model"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion and print its report",
	Long: `Run one ingestion and print its report as JSON.

Without --keywords the queries are derived from the active search configs,
exactly like the scheduled job. --location and --max-results then replace
the location and result limit of every derived query.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		b, err := newBase(ctx, cmd)
		if err != nil {
			return err
		}
		p, err := newPipeline(ctx, b)
		if err != nil {
			b.close()
			return err
		}
		defer p.close()

		flags := cmd.Flags()
		names, _ := flags.GetStringSlice("source")
		keywords, _ := flags.GetString("keywords")
		location, _ := flags.GetString("location")
		maxResults, _ := flags.GetInt("max-results")

		sources := make([]model.Source, len(names))
		for i, n := range names {
			sources[i] = model.Source(n)
		}

		q := model.Query{Keywords: keywords, Location: location, MaxResults: maxResults}
		report, err := p.scheduler.TriggerIngestion(ctx, sources, q)
		if err != nil {
			return fmt.Errorf("run ingestion: %w", err)
		}
		return printJSON(cmd, report)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringSliceP("source", "s", nil, "restrict the run to these sources (default all registered)")
	ingestCmd.Flags().StringP("keywords", "k", "", "run this query instead of the search configs")
	ingestCmd.Flags().StringP("location", "l", "", "location for the run's queries")
	ingestCmd.Flags().Int("max-results", 0, "per-source result limit (default INGEST_MAX_RESULTS)")
}

func printJSON(cmd *cobra.Command, v any) error {
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(pretty))
	return nil
}
