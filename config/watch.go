package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/go-homedir"
)

// DefaultDebounce is how long Watch waits after the last change before
// reloading.
const DefaultDebounce = 250 * time.Millisecond

// WatchOption configures Watch.
type WatchOption func(*watchOptions)

type watchOptions struct {
	onError  func(error)
	debounce time.Duration
}

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatchOption {
	return func(o *watchOptions) { o.debounce = d }
}

// OnError receives reload and watcher errors. By default they are dropped.
func OnError(fn func(error)) WatchOption {
	return func(o *watchOptions) { o.onError = fn }
}

// Watch reloads the config file at path whenever it changes and calls fn
// with each configuration that loads and validates. It watches the file's
// directory so editors that replace the file are seen. Watch blocks until
// ctx is done.
func Watch(ctx context.Context, path string, fn func(*Config), opts ...WatchOption) error {
	o := watchOptions{debounce: DefaultDebounce, onError: func(error) {}}
	for _, opt := range opts {
		opt(&o)
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return configError("path", err)
	}
	file, err := filepath.Abs(expanded)
	if err != nil {
		return configError("path", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(file)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(file), err)
	}

	timer := time.NewTimer(o.debounce)
	timer.Stop()
	var reload <-chan time.Time

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			name, err := filepath.Abs(ev.Name)
			if err != nil || name != file {
				continue
			}
			timer.Reset(o.debounce)
			reload = timer.C

		case <-reload:
			reload = nil
			cfg, err := Load(file)
			if err != nil {
				o.onError(err)
				continue
			}
			fn(cfg)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			o.onError(err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
