package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ortiz-cia/precios-cli/internal/pipeline"
)

var (
	backfillSource string
	backfillWindow string
	backfillFrom   string
	backfillTo     string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Replay a source's history into the store",
	Long: `With --source restocking (the default), queries the price proxy's monthly
trend series for every configured category. With --source slaughter,
replays the market report form for every auction day (Tue-Fri) in the
--from/--to range. Either way the configured write policy applies, so
re-running a backfill is safe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		orch := pipeline.New(st, nil)

		switch backfillSource {
		case "restocking":
			if backfillWindow != "" {
				cfg.ProxyFeed.HistoryWindow = backfillWindow
			}
			summary, err := orch.RunBackfill(ctx, newProxyFeed(), time.Now().UTC())
			if err != nil {
				return err
			}
			return printJSON(summary)
		case "slaughter":
			if backfillFrom == "" || backfillTo == "" {
				return eris.New("--from and --to are required with --source slaughter")
			}
			from, err := parseDay(backfillFrom)
			if err != nil {
				return err
			}
			to, err := parseDay(backfillTo)
			if err != nil {
				return err
			}
			if to.Before(from) {
				return eris.Errorf("--to %s is before --from %s", backfillTo, backfillFrom)
			}
			summary, err := orch.RunRange(ctx, newMarketForm(), from, to)
			if err != nil {
				return err
			}
			return printJSON(summary)
		default:
			return eris.Errorf("unknown backfill source %q, want restocking or slaughter", backfillSource)
		}
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillSource, "source", "restocking", "source to replay: restocking or slaughter")
	backfillCmd.Flags().StringVar(&backfillWindow, "window", "", `restocking history lookback, e.g. "3 years" (default from config)`)
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "first day of the slaughter replay (dd/mm/yyyy or yyyy-mm-dd)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "last day of the slaughter replay (dd/mm/yyyy or yyyy-mm-dd)")
	rootCmd.AddCommand(backfillCmd)
}
