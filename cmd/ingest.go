package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ortiz-cia/precios-cli/internal/pipeline"
	"github.com/ortiz-cia/precios-cli/internal/source"
)

var ingestDate string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest one day of prices from every source",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		day := time.Now().UTC()
		if ingestDate != "" {
			d, err := parseDay(ingestDate)
			if err != nil {
				return err
			}
			day = d
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		orch := pipeline.New(st, []source.Source{newMarketForm(), newProxyFeed()})
		summary, err := orch.Run(ctx, day)
		if err != nil {
			return err
		}

		if err := printJSON(summary); err != nil {
			return err
		}

		for _, report := range summary.Sources {
			if report.Error == "" && !report.StructuralMismatch {
				return nil
			}
		}
		return eris.New("every source failed")
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDate, "date", "", "day to ingest (dd/mm/yyyy, default today)")
	rootCmd.AddCommand(ingestCmd)
}
