package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/seamlezz/livebridge/bridge"
	"github.com/seamlezz/livebridge/config"
	"github.com/seamlezz/livebridge/driver/sqlite"
	"github.com/seamlezz/livebridge/host"
	"github.com/seamlezz/livebridge/subscription"
)

// Exit codes.
const (
	exitFailure      = 1 // a statement or the guest failed
	exitCommandError = 2 // bad flags, config or database
)

// exitError carries the process exit code of a failed command.
type exitError struct {
	err  error
	code int
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{err: err, code: code}
}

func exitCode(err error) int {
	var e *exitError
	if errors.As(err, &e) {
		return e.code
	}
	return exitFailure
}

var formats = []string{"text", "json", "yaml"}

// rootOptions holds the global flags and the state PersistentPreRunE
// builds from them.
type rootOptions struct {
	cfg        *config.Config
	logger     *zap.Logger
	level      zap.AtomicLevel
	configPath string
	format     string
	verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "livebridge",
		Short:         "Queries and live subscriptions for sandboxed guests",
		Long:          "livebridge runs SQL queries and LIVE SELECT subscriptions against a SQLite database, directly or on behalf of a WASM guest.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !slices.Contains(formats, opts.format) {
				return withExitCode(exitCommandError, fmt.Errorf("invalid format %q: must be one of %v", opts.format, formats))
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return withExitCode(exitCommandError, err)
			}
			opts.cfg = cfg
			opts.logger, opts.level = newLogger(cfg, opts.verbose, cmd.ErrOrStderr())
			installLogger(opts.logger)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: ./livebridge.yaml or ~/.config/livebridge)")
	cmd.PersistentFlags().StringVarP(&opts.format, "format", "o", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newQueryCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newServeCommand(opts))

	return cmd
}

// newLogger builds a console logger on w at the configured level. Verbose
// switches to the development encoder at debug level.
func newLogger(cfg *config.Config, verbose bool, w io.Writer) (*zap.Logger, zap.AtomicLevel) {
	level := cfg.Level()
	enc := zap.NewProductionEncoderConfig()
	if verbose {
		level.SetLevel(zapcore.DebugLevel)
		enc = zap.NewDevelopmentEncoderConfig()
	}
	enc.EncodeTime = zapcore.TimeEncoderOfLayout(time.TimeOnly)

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	return zap.New(core).Named("livebridge"), level
}

func installLogger(l *zap.Logger) {
	sqlite.SetLogger(l.Named("sqlite"))
	subscription.SetLogger(l.Named("subscription"))
	bridge.SetLogger(l.Named("bridge"))
	host.SetLogger(l.Named("host"))
}

// open connects to the configured database.
func open(cfg *config.Config) (*sqlite.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	db, err := sqlite.Open(dsn, sqlite.WithBusyTimeout(5*time.Second), sqlite.WithForeignKeys())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dsn, err)
	}
	return db, nil
}

// openBridge connects to the configured database and wraps it in a bridge.
func openBridge(cfg *config.Config) (*bridge.Bridge, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, withExitCode(exitCommandError, err)
	}
	return bridge.New(db, bridge.WithEventBuffer(cfg.EventBuffer)), nil
}
