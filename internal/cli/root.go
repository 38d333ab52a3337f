package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the CLI reads, e.g.
// VIEWSYNC_DB or VIEWSYNC_LOG_LEVEL.
const EnvPrefix = "VIEWSYNC"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string // SQLite database path
	MaxSteps int    // per-flow recompute quota; 0 means the engine default
	LogLevel string // debug | info | warn | error

	config *viper.Viper
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the viewsync CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{config: newConfig()})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "viewsync",
		Short: "viewsync - denormalized views kept in sync",
		Long: `viewsync maintains denormalized copies of documents. Views declared in CUE
copy a source collection into a target collection, enriched with fields looked
up from other collections, and keep the copies current as documents change.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.Verbose = opts.config.GetBool("verbose")
			opts.Format = opts.config.GetString("format")
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			opts.Database = opts.config.GetString("db")
			opts.MaxSteps = opts.config.GetInt("max-steps")
			opts.LogLevel = opts.config.GetString("log-level")
			if opts.MaxSteps < 0 {
				return fmt.Errorf("invalid max-steps %d: must be non-negative", opts.MaxSteps)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	cmd.PersistentFlags().String("format", "text", "output format (json|text)")
	cmd.PersistentFlags().String("db", "viewsync.db", "path to SQLite database")
	cmd.PersistentFlags().Int("max-steps", 0, "maximum recomputes per propagation flow (0 = engine default)")
	cmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")

	for _, name := range []string{"verbose", "format", "db", "max-steps", "log-level"} {
		if err := opts.config.BindPFlag(name, cmd.PersistentFlags().Lookup(name)); err != nil {
			slog.Error("Error binding flag", "flag", name, "error", err)
		}
	}

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewRefreshCommand(opts))
	cmd.AddCommand(NewRefreshAllCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// newConfig reads VIEWSYNC_* environment variables; flags bound to the same
// keys take precedence when set.
func newConfig() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Logger builds the diagnostic logger for a command. --verbose forces debug;
// otherwise the level comes from --log-level / VIEWSYNC_LOG_LEVEL, defaulting
// to warn so that command output stays readable.
func (o *RootOptions) Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: o.level()}))
}

func (o *RootOptions) level() slog.Level {
	if o.Verbose {
		return slog.LevelDebug
	}
	switch strings.ToLower(o.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
