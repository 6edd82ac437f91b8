package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"partialdump/internal/config"
	"partialdump/internal/service"
	"partialdump/internal/storage"
)

var (
	dumpOutput      string
	dumpQueries     []string
	dumpSchemaMap   []string
	dumpBatchSize   int
	dumpFKRelations bool
	dumpHistory     string
	dumpProgress    bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the closure of the seed queries as INSERT statements",
	Long: `Run the seed queries, follow the relation templates and write every
reachable row once, in dependency order, as INSERT statements.`,
	Example: `  # Dump with partialdump.yaml from the current directory
  partialdump dump -o dump.sql

  # Override the seed queries
  partialdump dump -q 'SELECT * FROM person WHERE id = 1'

  # Follow the foreign keys of the source schema and show progress
  partialdump dump --fk-relations --progress -o dump.sql`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return validationError(err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts, closeStore, err := serviceOptions(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		w, path, err := service.OpenOutput(cfg.Output, time.Now())
		if err != nil {
			return GeneralError("opening output", err)
		}
		defer w.Close()

		snap, err := service.NewDumpService(cfg, resolveString(configPath, "manual"), opts...).Run(ctx, w, path)
		if err != nil {
			return Classify(err)
		}
		logger.Info("dump complete", "output", path, "dumped", snap.Emitted, "selects", snap.Queries)
		return nil
	},
}

func init() {
	addDumpFlags(dumpCmd)
	dumpCmd.Flags().BoolVar(&dumpProgress, "progress", false, "print a progress line on stderr")
}

// addDumpFlags registers the flags that shape a dump run.
func addDumpFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&dumpOutput, "output", "o", "", "output file, - for stdout ({{.Timestamp}} and {{.Date}} are expanded)")
	f.StringArrayVarP(&dumpQueries, "query", "Q", nil, "seed query (repeatable, replaces the configured queries)")
	f.StringArrayVar(&dumpSchemaMap, "schema-map", nil, "rename a schema in the output, source:target (repeatable)")
	f.IntVar(&dumpBatchSize, "batch-size", 0, "records resolved together against the relation templates")
	f.BoolVar(&dumpFKRelations, "fk-relations", false, "add the source foreign keys as pre-requisites")
	f.StringVar(&dumpHistory, "history", "", "sqlite file recording the run history")
}

func applyDumpOverrides(c *config.Config, changed func(string) bool) {
	if changed("output") {
		c.Output = dumpOutput
	}
	if changed("query") {
		c.Queries = dumpQueries
	}
	if changed("schema-map") {
		c.SchemaMap = dumpSchemaMap
	}
	if changed("batch-size") {
		c.BatchSize = dumpBatchSize
	}
	if changed("fk-relations") {
		c.FKRelations = dumpFKRelations
	}
	if changed("history") {
		c.History = dumpHistory
	}
}

// serviceOptions wires the run history and the progress printer.
func serviceOptions(c *config.Config) ([]service.Option, func(), error) {
	opts := []service.Option{service.WithLogger(logger)}
	closeStore := func() {}

	if c.History != "" {
		db, err := storage.New(c.History)
		if err != nil {
			return nil, nil, GeneralError("opening run history", err)
		}
		closeStore = func() { _ = db.Close() }
		opts = append(opts, service.WithRunStore(storage.NewRunStore(db)))
	}
	if dumpProgress && !quiet {
		opts = append(opts, service.WithEmitter(&service.ProgressPrinter{W: os.Stderr}))
	}
	return opts, closeStore, nil
}

func validationError(err error) error {
	exitErr := Classify(err)
	if exitErr.Code == ExitGeneral {
		return ConfigError("invalid configuration", err)
	}
	return exitErr
}

// withTimeout bounds shutdown waits.
func withTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}
