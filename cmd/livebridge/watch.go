package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/seamlezz/livebridge/bridge"
	lberrors "github.com/seamlezz/livebridge/errors"
	"github.com/seamlezz/livebridge/stream"
)

type watchOptions struct {
	params      []string
	limit       int
	interactive bool
}

func newWatchCommand(root *rootOptions) *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch <live query>",
		Short: "Subscribe to a live query and print its events",
		Long: `Start a LIVE SELECT subscription and print every event it produces.

Live queries see the writes of their own connection, so watch reads
statements from stdin, one per line, and runs them on the same bridge.
With -i an interactive monitor takes their place.`,
		Example: `  livebridge watch "LIVE SELECT * FROM person"
  livebridge watch "LIVE SELECT name FROM person WHERE age > $min" -p min=18 -n 10
  livebridge watch -i "LIVE SELECT * FROM person"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.limit < 0 {
				return withExitCode(exitCommandError, fmt.Errorf("--limit must not be negative"))
			}
			ps, err := parseParams(opts.params)
			if err != nil {
				return withExitCode(exitCommandError, err)
			}
			if opts.interactive && !term.IsTerminal(int(os.Stdout.Fd())) {
				return withExitCode(exitCommandError, fmt.Errorf("interactive mode needs a terminal"))
			}

			b, err := openBridge(root.cfg)
			if err != nil {
				return err
			}
			defer b.Shutdown(context.WithoutCancel(cmd.Context()))

			ctx := cmd.Context()
			id, s, err := b.Subscribe(ctx, args[0], ps)
			if err != nil {
				return err
			}
			defer func() {
				if err := b.Cancel(id); err != nil && !errors.Is(err, lberrors.ErrSubscriptionNotFound) {
					root.logger.Warn("cancel subscription", zap.Uint64("subscription_id", id), zap.Error(err))
				}
			}()

			if opts.interactive {
				return runMonitor(ctx, b, s, args[0], opts.limit)
			}
			w := &watcher{
				bridge: b,
				stream: s,
				render: newRenderer(cmd.OutOrStdout(), root.format),
				limit:  opts.limit,
			}
			return w.run(ctx, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringArrayVarP(&opts.params, "param", "p", nil, "bind a parameter (name=value, repeatable)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "stop after this many events (0 = no limit)")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "interactive monitor")

	return cmd
}

// watcher prints the events of one stream while running the statements it
// reads from its input on the same bridge.
type watcher struct {
	bridge *bridge.Bridge
	stream *stream.Adapter
	render *renderer
	mu     sync.Mutex
	limit  int
	done   bool
}

func (w *watcher) run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go w.exec(ctx, in)

	for n := 0; w.limit == 0 || n < w.limit; n++ {
		ev, ok, err := w.stream.Next(ctx)
		if err != nil {
			break
		}
		if !ok {
			break
		}
		if err := w.write(func(r *renderer) error { return r.Event(ev) }); err != nil {
			return err
		}
	}

	w.mu.Lock()
	w.done = true
	w.mu.Unlock()
	w.stream.Cancel()

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// exec runs each non-empty input line as a query.
func (w *watcher) exec(ctx context.Context, in io.Reader) {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		out, err := w.bridge.Query(ctx, line, nil)
		_ = w.write(func(r *renderer) error {
			if err != nil {
				return r.Error(err)
			}
			return r.Outcomes(out)
		})
	}
}

// write serializes output and drops it once the event loop has finished.
func (w *watcher) write(fn func(*renderer) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return nil
	}
	return fn(w.render)
}
