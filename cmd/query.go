package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ortiz-cia/precios-cli/internal/model"
	"github.com/ortiz-cia/precios-cli/internal/store"
)

var (
	queryTable    string
	queryFrom     string
	queryTo       string
	queryKind     string
	queryCategory string
	queryBreed    string
	queryWeight   string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query stored prices over a date range",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		table := store.Table(queryTable)
		if table != store.TableSlaughter && table != store.TableRestocking {
			return eris.Errorf("unknown table %q, want %s or %s", queryTable, store.TableSlaughter, store.TableRestocking)
		}

		from, err := parseDay(queryFrom)
		if err != nil {
			return err
		}
		to, err := parseDay(queryTo)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := st.QueryRange(ctx, table, from, to, store.Filters{
			Kind:        model.SourceKind(queryKind),
			Category:    queryCategory,
			Breed:       queryBreed,
			WeightRange: queryWeight,
		})
		if err != nil {
			return err
		}
		return printJSON(records)
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryTable, "table", string(store.TableSlaughter), "table to query (slaughter or restocking)")
	queryCmd.Flags().StringVar(&queryFrom, "from", "", "range start (dd/mm/yyyy)")
	queryCmd.Flags().StringVar(&queryTo, "to", "", "range end (dd/mm/yyyy)")
	queryCmd.Flags().StringVar(&queryKind, "kind", "", "filter by source kind")
	queryCmd.Flags().StringVar(&queryCategory, "category", "", "filter by category label")
	queryCmd.Flags().StringVar(&queryBreed, "breed", "", "filter by breed")
	queryCmd.Flags().StringVar(&queryWeight, "weight", "", "filter by weight range")
	_ = queryCmd.MarkFlagRequired("from")
	_ = queryCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(queryCmd)
}
