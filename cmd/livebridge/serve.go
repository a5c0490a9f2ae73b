package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seamlezz/livebridge/bridge"
	"github.com/seamlezz/livebridge/config"
	"github.com/seamlezz/livebridge/driver"
	"github.com/seamlezz/livebridge/host"
)

type serveOptions struct {
	guest       string
	export      string
	memoryPages uint32
	watch       bool
	stats       bool
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve [--guest file.wasm] [-- guest args...]",
		Short: "Run a WASM guest against the call interface",
		Long: `Instantiate a WASM guest that imports ` + host.Package + `, bind its
imports to this process's database and call its entry export.

With --watch the config file is reloaded while the guest runs: a changed
log level applies at once and a changed database is swapped in for later
calls. Subscriptions already running stay on the previous database, which
is closed when the guest returns.`,
		Example: `  livebridge serve --guest app.wasm
  livebridge serve -c livebridge.yaml --watch -- --verbose`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			guest := cfg.Guest
			if opts.guest != "" {
				guest = opts.guest
			}
			if guest == "" {
				return withExitCode(exitCommandError, fmt.Errorf("no guest: pass --guest or set guest in the config"))
			}
			export := cfg.Export
			if opts.export != "" {
				export = opts.export
			}
			if opts.watch && root.configPath == "" {
				return withExitCode(exitCommandError, fmt.Errorf("--watch needs --config"))
			}

			wasm, err := afero.ReadFile(config.Fs, guest)
			if err != nil {
				return withExitCode(exitCommandError, fmt.Errorf("read guest: %w", err))
			}

			b, err := openBridge(cfg)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer b.Shutdown(context.WithoutCancel(ctx))

			h := host.New(b)
			defer h.Close()

			runnerOpts := []host.RunnerOption{
				host.WithStdout(cmd.OutOrStdout()),
				host.WithStderr(cmd.ErrOrStderr()),
				host.WithArgs(append([]string{filepath.Base(guest)}, args...)...),
			}
			if opts.memoryPages > 0 {
				runnerOpts = append(runnerOpts, host.WithMemoryLimitPages(opts.memoryPages))
			}
			r, err := host.NewRunner(ctx, h, runnerOpts...)
			if err != nil {
				return err
			}
			defer r.Close(context.WithoutCancel(ctx))

			if opts.watch {
				watchCtx, stop := context.WithCancel(ctx)
				rl := &reloader{bridge: b, cfg: cfg, level: root.level, logger: root.logger, pinLevel: root.verbose}
				done := make(chan struct{})
				defer func() {
					stop()
					<-done
					rl.close()
				}()
				go func() {
					defer close(done)
					err := config.Watch(watchCtx, root.configPath, rl.apply, config.OnError(func(err error) {
						root.logger.Warn("config reload failed", zap.Error(err))
					}))
					if err != nil && watchCtx.Err() == nil {
						root.logger.Error("config watch stopped", zap.Error(err))
					}
				}()
			}

			root.logger.Info("running guest", zap.String("guest", guest), zap.String("export", export))
			runErr := r.Run(ctx, wasm, export)

			if opts.stats {
				if err := newRenderer(cmd.OutOrStdout(), root.format).Stats(b.Stats()); err != nil {
					return err
				}
			}
			return withExitCode(exitFailure, runErr)
		},
	}

	cmd.Flags().StringVarP(&opts.guest, "guest", "g", "", "guest module (overrides the config)")
	cmd.Flags().StringVarP(&opts.export, "export", "e", "", "export to call (overrides the config)")
	cmd.Flags().Uint32Var(&opts.memoryPages, "memory-pages", 0, "limit guest memory to this many 64KiB pages")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "reload the config file while the guest runs")
	cmd.Flags().BoolVar(&opts.stats, "stats", true, "print call counters when the guest returns")

	return cmd
}

// reloader applies reloaded configs to a running bridge. Drivers it swaps
// out stay open for the subscriptions started on them until close.
type reloader struct {
	bridge   *bridge.Bridge
	cfg      *config.Config
	logger   *zap.Logger
	retired  []driver.Driver
	level    zap.AtomicLevel
	pinLevel bool // --verbose wins over the file
}

func (r *reloader) apply(next *config.Config) {
	if lvl := next.Level().Level(); !r.pinLevel && lvl != r.level.Level() {
		r.level.SetLevel(lvl)
		r.logger.Info("log level changed", zap.Stringer("level", lvl))
	}

	if !r.cfg.SameConnection(next) {
		db, err := open(next)
		if err != nil {
			r.logger.Warn("keep current database", zap.Error(err))
			return
		}
		r.retired = append(r.retired, r.bridge.Swap(db))
		r.logger.Info("database switched",
			zap.String("namespace", next.Namespace),
			zap.String("database", next.Database))
	}
	r.cfg = next
}

func (r *reloader) close() {
	for _, d := range r.retired {
		if err := d.Close(); err != nil {
			r.logger.Warn("close previous database", zap.Error(err))
		}
	}
	r.retired = nil
}
