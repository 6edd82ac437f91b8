package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"partialdump/internal/storage"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent dump runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := resolveString(dumpHistory, cfg.History)
		if path == "" {
			return ConfigError("no run history configured (set history in the config or --history)", nil)
		}
		db, err := storage.New(path)
		if err != nil {
			return GeneralError("opening run history", err)
		}
		defer db.Close()

		runs, err := storage.NewRunStore(db).ListRuns(historyLimit)
		if err != nil {
			return GeneralError("listing runs", err)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STARTED\tSTATUS\tDURATION\tSELECTS\tFETCHED\tDUMPED\tOUTPUT\tERROR")
		for _, r := range runs {
			duration := "-"
			if !r.FinishedAt.IsZero() {
				duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
				r.StartedAt.Local().Format(time.DateTime), r.Status, duration,
				r.Queries, r.Fetched, r.Emitted, r.Output, r.Error)
		}
		return tw.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
	historyCmd.Flags().StringVar(&dumpHistory, "history", "", "sqlite file holding the run history")
}
