package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/swimport/internal/engine"
)

// EnvPrefix prefixes the environment variables that override flag
// defaults: --stuck-after reads SWIMPORT_STUCK_AFTER.
const EnvPrefix = "SWIMPORT"

// Environment variables providing flag defaults.
const (
	EnvDatabase   = EnvPrefix + "_DB"
	EnvGraph      = EnvPrefix + "_GRAPH"
	EnvWorkers    = EnvPrefix + "_WORKERS"
	EnvStuckAfter = EnvPrefix + "_STUCK_AFTER"
)

// DefaultDatabase is the queue database used when neither --db nor
// SWIMPORT_DB is set.
const DefaultDatabase = "swimport.db"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	Database   string
	Graph      string // CUE graph file; empty selects the built-in graph
	Workers    int
	StuckAfter time.Duration
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the swimport CLI.
// The environment is read when a command runs, so godotenv must have
// loaded .env by then.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "swimport",
		Short: "swimport - depth-ordered import queue for swimming results",
		Long: `Queue swimming-competition import facts and resolve them depth by depth.

Each record climbs the entity dependency graph one depth per pass, from
seasons, teams and swimmers down to results and laps, and commits its own
entity once every prerequisite is resolved.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(v); err != nil {
				return err
			}
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Workers < 1 {
				return fmt.Errorf("invalid workers %d: must be at least 1", opts.Workers)
			}
			if opts.StuckAfter <= 0 {
				return fmt.Errorf("invalid stuck-after %s: must be positive", opts.StuckAfter)
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.Database, "db", DefaultDatabase, "path to the SQLite queue database [$"+EnvDatabase+"]")
	flags.StringVar(&opts.Graph, "graph", "", "CUE dependency graph (built-in swimming graph if empty) [$"+EnvGraph+"]")
	flags.IntVar(&opts.Workers, "workers", engine.DefaultWorkers, "parallel solvers per depth group [$"+EnvWorkers+"]")
	flags.DurationVar(&opts.StuckAfter, "stuck-after", engine.DefaultStuckAfter, "stall time before a record is reported stuck [$"+EnvStuckAfter+"]")

	// Only flags with an environment variable are bound. An explicit flag
	// wins over the environment, which wins over the flag default.
	for _, name := range []string{"db", "graph", "workers", "stuck-after"} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	cmd.AddCommand(NewEnqueueCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewPassCommand(opts))
	cmd.AddCommand(NewDigestCommand(opts))
	cmd.AddCommand(NewStuckCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewGraphCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// load resolves the bound flags against the environment.
func (o *RootOptions) load(v *viper.Viper) error {
	workers, err := cast.ToIntE(v.Get("workers"))
	if err != nil {
		return fmt.Errorf("invalid workers: %w", err)
	}
	stuckAfter, err := cast.ToDurationE(v.Get("stuck-after"))
	if err != nil {
		return fmt.Errorf("invalid stuck-after: %w", err)
	}
	o.Database = v.GetString("db")
	o.Graph = v.GetString("graph")
	o.Workers = workers
	o.StuckAfter = stuckAfter
	return nil
}

// formatter builds the output formatter for a command.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// logger returns a text logger on w at Info, or Debug with --verbose.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
