package host

import (
	"context"
	stderrors "errors"
	"io"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/seamlezz/livebridge/errors"
)

const (
	wasiModule = "wasi_snapshot_preview1"
	initExport = "_initialize"
)

// RunnerOption configures a Runner.
type RunnerOption func(*runnerConfig)

type runnerConfig struct {
	stdout      io.Writer
	stderr      io.Writer
	args        []string
	memoryPages uint32
}

// WithStdout sets where the guest's stdout goes.
func WithStdout(w io.Writer) RunnerOption {
	return func(c *runnerConfig) { c.stdout = w }
}

// WithStderr sets where the guest's stderr goes.
func WithStderr(w io.Writer) RunnerOption {
	return func(c *runnerConfig) { c.stderr = w }
}

// WithArgs sets the guest's argv.
func WithArgs(args ...string) RunnerOption {
	return func(c *runnerConfig) { c.args = args }
}

// WithMemoryLimitPages caps guest memory in 64 KiB pages.
func WithMemoryLimitPages(pages uint32) RunnerOption {
	return func(c *runnerConfig) { c.memoryPages = pages }
}

// Runner loads guest modules and links them against a Host and WASI.
type Runner struct {
	runtime wazero.Runtime
	host    *Host
	cfg     runnerConfig
}

// NewRunner creates a wazero runtime with WASI preview1 for h.
func NewRunner(ctx context.Context, h *Host, opts ...RunnerOption) (*Runner, error) {
	var cfg runnerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	rc := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.memoryPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.memoryPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, rc)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, errors.Instantiation(err)
	}
	return &Runner{runtime: r, host: h, cfg: cfg}, nil
}

// Run compiles guest, links its imports and calls export. A guest that
// exits through proc_exit with code 0 has succeeded.
func (r *Runner) Run(ctx context.Context, guest []byte, export string) error {
	compiled, err := r.runtime.CompileModule(ctx, guest)
	if err != nil {
		return errors.New(errors.PhaseLoad, errors.KindInstantiation).
			Detail("compile guest").
			Cause(err).
			Build()
	}
	defer compiled.Close(ctx)

	if err := r.Link(ctx, compiled); err != nil {
		return err
	}

	mc := wazero.NewModuleConfig().WithStartFunctions()
	if r.cfg.stdout != nil {
		mc = mc.WithStdout(r.cfg.stdout)
	}
	if r.cfg.stderr != nil {
		mc = mc.WithStderr(r.cfg.stderr)
	}
	if len(r.cfg.args) > 0 {
		mc = mc.WithArgs(r.cfg.args...)
	}

	mod, err := r.runtime.InstantiateModule(ctx, compiled, mc)
	if err != nil {
		return errors.Instantiation(err)
	}
	defer mod.Close(ctx)

	if initFn := mod.ExportedFunction(initExport); initFn != nil {
		if _, err := initFn.Call(ctx); err != nil {
			return exitError(err)
		}
	}

	fn := mod.ExportedFunction(export)
	if fn == nil {
		return errors.NotFound(errors.PhaseLoad, "export", export)
	}
	Logger().Debug("running guest", zap.String("export", export))
	if _, err := fn.Call(ctx); err != nil {
		return exitError(err)
	}
	return nil
}

// Link checks every import of compiled and instantiates the host module
// under each compatible call interface name the guest imports. Imports
// nothing provides are reported together as a MissingImportsError.
func (r *Runner) Link(ctx context.Context, compiled wazero.CompiledModule) error {
	missing, modules := r.resolve(compiled.ImportedFunctions())
	if len(missing) > 0 {
		return errors.NewMissingImportsError(missing)
	}

	for _, name := range modules {
		if r.runtime.Module(name) != nil {
			continue
		}
		if _, err := r.host.Instantiate(ctx, r.runtime, name); err != nil {
			return errors.Registration(name, "", err)
		}
	}
	return nil
}

// resolve returns "module#function" keys of unsatisfied imports and the
// call interface module names to instantiate.
func (r *Runner) resolve(imports []api.FunctionDefinition) (missing, modules []string) {
	seen := make(map[string]bool)
	for _, def := range imports {
		mod, name, _ := def.Import()
		switch {
		case mod == wasiModule:
			continue
		case Serves(mod):
			if !r.host.Provides(name) {
				missing = append(missing, mod+"#"+name)
				continue
			}
			if !seen[mod] {
				seen[mod] = true
				modules = append(modules, mod)
			}
		case r.runtime.Module(mod) != nil:
			continue
		default:
			missing = append(missing, mod+"#"+name)
		}
	}
	sort.Strings(modules)
	return missing, modules
}

// Close closes the runtime and every guest and host module in it.
func (r *Runner) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

func exitError(err error) error {
	var exit *sys.ExitError
	if stderrors.As(err, &exit) && exit.ExitCode() == 0 {
		return nil
	}
	return err
}
