package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"partialdump/internal/config"
	"partialdump/internal/domain"
)

var (
	// Global state set during PersistentPreRunE
	cfg        *config.Config
	configPath string
	logger     *slog.Logger

	// Persistent flags
	cfgFile string
	verbose int
	quiet   bool

	// Source overrides, applied on top of the loaded config when set
	srcFlags sourceFlags
)

type sourceFlags struct {
	driver         string
	host           string
	port           int
	user           string
	password       string
	database       string
	sslmode        string
	maxConnections int
	maxQPS         float64
}

var rootCmd = &cobra.Command{
	Use:   "partialdump",
	Short: "Relation-driven partial SQL dumps",
	Long: `partialdump - relation-driven partial SQL dumps

partialdump runs seed queries against a live database, follows user-defined
relation templates to every row the seeds depend on, and writes the resulting
closure as INSERT statements, each row exactly once and in dependency order.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for help/completion/version commands
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "version" {
			return nil
		}
		if cmd.HasParent() && cmd.Parent() == secretCmd {
			return nil
		}

		var err error
		cfg, configPath, err = loadEffectiveConfig(cfgFile, cmd.Flags())
		if err != nil {
			return ConfigError("loading configuration", err)
		}
		logger = newLogger(cfg.LogLevel)
		slog.SetDefault(logger)
		return nil
	},
	SilenceUsage:  true, // Don't show usage on errors
	SilenceErrors: true, // We handle errors ourselves
}

// Command group IDs
const (
	groupDump    = "dump"
	groupUtility = "utility"
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: auto-discover partialdump.yaml)")
	pf.CountVarP(&verbose, "verbose", "v", "increase verbosity (can be repeated)")
	pf.BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")

	pf.StringVar(&srcFlags.driver, "driver", "", fmt.Sprintf("source driver %v", domain.Drivers))
	pf.StringVar(&srcFlags.host, "host", "", "source host (sqlite: database file)")
	pf.IntVar(&srcFlags.port, "port", 0, "source port")
	pf.StringVarP(&srcFlags.user, "user", "u", "", "source user")
	pf.StringVarP(&srcFlags.password, "password", "p", "", "source password (see also source.password_secret)")
	pf.StringVarP(&srcFlags.database, "database", "d", "", "source database")
	pf.StringVar(&srcFlags.sslmode, "sslmode", "", "source TLS mode")
	pf.IntVar(&srcFlags.maxConnections, "max-connections", 0, "connection pool size and query concurrency ceiling")
	pf.Float64Var(&srcFlags.maxQPS, "max-qps", 0, "maximum queries started per second (0: unlimited)")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupDump, Title: "Dump:"},
		&cobra.Group{ID: groupUtility, Title: "Utility:"},
	)

	dumpCmd.GroupID = groupDump
	scheduleCmd.GroupID = groupDump
	relationsCmd.GroupID = groupDump
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(relationsCmd)

	historyCmd.GroupID = groupUtility
	configCmd.GroupID = groupUtility
	versionCmd.GroupID = groupUtility
	secretCmd.GroupID = groupUtility
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(secretCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ExitWithError(err)
	}
}

// loadEffectiveConfig loads the config and applies the flags that were set.
func loadEffectiveConfig(path string, flags *pflag.FlagSet) (*config.Config, string, error) {
	c, p, err := config.LoadConfig(path)
	if err != nil {
		return nil, p, err
	}
	applyOverrides(c, flags)
	return c, p, nil
}

func applyOverrides(c *config.Config, flags *pflag.FlagSet) {
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}
	if changed("driver") {
		c.Source.Driver = domain.DatabaseDriver(srcFlags.driver)
	}
	if changed("host") {
		c.Source.Host = srcFlags.host
	}
	if changed("port") {
		c.Source.Port = srcFlags.port
	}
	if changed("user") {
		c.Source.User = srcFlags.user
	}
	if changed("password") {
		c.Source.Password = srcFlags.password
	}
	if changed("database") {
		c.Source.Database = srcFlags.database
	}
	if changed("sslmode") {
		c.Source.SSLMode = srcFlags.sslmode
	}
	if changed("max-connections") {
		c.Source.MaxConnections = srcFlags.maxConnections
	}
	if changed("max-qps") {
		c.MaxQPS = srcFlags.maxQPS
		c.Source.MaxQPS = 0
	}
	applyDumpOverrides(c, changed)
}

// newLogger builds the stderr logger. -v flags win over log_level.
func newLogger(configured string) *slog.Logger {
	level := slog.LevelWarn
	switch strings.ToLower(configured) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	switch {
	case quiet:
		level = slog.LevelError
	case verbose == 1:
		level = slog.LevelInfo
	case verbose >= 2:
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// resolveString returns the first non-empty string from the provided values.
// Used to implement precedence: flag > config > default.
func resolveString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
