package config

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap/zapcore"

	"github.com/seamlezz/livebridge/errors"
)

func useFs(t *testing.T, fs afero.Fs) {
	t.Helper()
	old := Fs
	Fs = fs
	t.Cleanup(func() { Fs = old })
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	useFs(t, afero.NewMemMapFs())

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if *cfg != *Default() {
		t.Errorf("Load() = %+v, want %+v", cfg, Default())
	}
}

func TestLoad_File(t *testing.T) {
	fs := afero.NewMemMapFs()
	useFs(t, fs)
	writeFile(t, fs, "/etc/livebridge/livebridge.yaml", `
url: /var/lib/livebridge
namespace: prod
database: app
event_buffer: 32
log_level: debug
guest: /opt/guest.wasm
`)

	cfg, err := Load("/etc/livebridge/livebridge.yaml")
	if err != nil {
		t.Fatal(err)
	}
	want := Config{
		URL:         "/var/lib/livebridge",
		Namespace:   "prod",
		Database:    "app",
		EventBuffer: 32,
		LogLevel:    "debug",
		Guest:       "/opt/guest.wasm",
		Export:      "run",
	}
	if *cfg != want {
		t.Errorf("Load() = %+v, want %+v", *cfg, want)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	useFs(t, fs)
	writeFile(t, fs, "/cfg/livebridge.json", `{"namespace": "file", "event_buffer": 4}`)
	t.Setenv("LIVEBRIDGE_NAMESPACE", "env")
	t.Setenv("LIVEBRIDGE_EVENT_BUFFER", "64")

	cfg, err := Load("/cfg/livebridge.json")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Namespace != "env" {
		t.Errorf("Namespace = %q, want env", cfg.Namespace)
	}
	if cfg.EventBuffer != 64 {
		t.Errorf("EventBuffer = %d, want 64", cfg.EventBuffer)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	fs := afero.NewMemMapFs()
	useFs(t, fs)
	writeFile(t, fs, "/cfg/livebridge.toml", "database = \"file\"\n")
	writeFile(t, fs, "/cfg/.env", "LIVEBRIDGE_DATABASE=dotenv\nLIVEBRIDGE_NAMESPACE=dotenv\nLIVEBRIDGE_LOG_LEVEL=error\n")
	writeFile(t, fs, "/cfg/.env.local", "LIVEBRIDGE_LOG_LEVEL=warn\n")

	t.Setenv("LIVEBRIDGE_NAMESPACE", "env")
	for _, k := range []string{"LIVEBRIDGE_DATABASE", "LIVEBRIDGE_LOG_LEVEL"} {
		if _, set := os.LookupEnv(k); set {
			t.Skipf("%s is set in the environment", k)
		}
		t.Cleanup(func() { os.Unsetenv(k) })
	}

	cfg, err := Load("/cfg/livebridge.toml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database != "dotenv" {
		t.Errorf("Database = %q, want dotenv", cfg.Database)
	}
	if cfg.Namespace != "env" {
		t.Errorf("Namespace = %q, .env must not override the environment", cfg.Namespace)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, .env.local should win", cfg.LogLevel)
	}
}

func TestLoad_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	useFs(t, fs)
	writeFile(t, fs, "/cfg/negative.yaml", "event_buffer: -1\n")
	writeFile(t, fs, "/cfg/level.yaml", "log_level: loud\n")
	writeFile(t, fs, "/cfg/broken.yaml", "url: [unterminated\n")

	tests := []struct {
		path  string
		field string
	}{
		{"/cfg/negative.yaml", "event_buffer"},
		{"/cfg/level.yaml", "log_level"},
		{"/cfg/broken.yaml", "file"},
		{"/cfg/missing.yaml", "file"},
	}

	for _, tc := range tests {
		t.Run(filepath.Base(tc.path), func(t *testing.T) {
			_, err := Load(tc.path)
			var e *errors.Error
			if !stderrors.As(err, &e) {
				t.Fatalf("err = %v, want *errors.Error", err)
			}
			if e.Phase != errors.PhaseConfig {
				t.Errorf("phase = %s", e.Phase)
			}
			if len(e.Path) != 1 || e.Path[0] != tc.field {
				t.Errorf("path = %v, want %s", e.Path, tc.field)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"default", func(*Config) {}, ""},
		{"empty url", func(c *Config) { c.URL = "" }, "url"},
		{"empty namespace", func(c *Config) { c.Namespace = "" }, "namespace"},
		{"empty database", func(c *Config) { c.Database = "" }, "database"},
		{"negative buffer", func(c *Config) { c.EventBuffer = -3 }, "event_buffer"},
		{"zero buffer", func(c *Config) { c.EventBuffer = 0 }, ""},
		{"unknown level", func(c *Config) { c.LogLevel = "chatty" }, "log_level"},
		{"upper case level", func(c *Config) { c.LogLevel = "DEBUG" }, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(cfg)
			err := cfg.Validate()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("Validate() = %v", err)
				}
				return
			}
			var e *errors.Error
			if !stderrors.As(err, &e) || len(e.Path) == 0 || e.Path[0] != tc.field {
				t.Errorf("Validate() = %v, want error at %s", err, tc.field)
			}
		})
	}
}

func TestConfig_Level(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	if got := cfg.Level().Level(); got != zapcore.DebugLevel {
		t.Errorf("Level() = %s", got)
	}
	cfg.LogLevel = "nonsense"
	if got := cfg.Level().Level(); got != zapcore.InfoLevel {
		t.Errorf("Level() fallback = %s", got)
	}
}

func TestConfig_DSN(t *testing.T) {
	fs := afero.NewMemMapFs()
	useFs(t, fs)

	cfg := Default()
	dsn, err := cfg.DSN()
	if err != nil {
		t.Fatal(err)
	}
	if dsn != "file:test_test?mode=memory&cache=shared" {
		t.Errorf("memory DSN = %q", dsn)
	}

	cfg.URL = "/data"
	cfg.Namespace = "prod"
	cfg.Database = "app"
	dsn, err = cfg.DSN()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join("/data", "prod", "app.db"); dsn != want {
		t.Errorf("file DSN = %q, want %q", dsn, want)
	}
	if ok, _ := afero.DirExists(fs, filepath.Join("/data", "prod")); !ok {
		t.Error("DSN should create the namespace directory")
	}
}

func TestConfig_SameConnection(t *testing.T) {
	a, b := Default(), Default()
	b.LogLevel = "debug"
	b.EventBuffer = 2
	if !a.SameConnection(b) {
		t.Error("log level and buffer do not change the connection")
	}
	b.Database = "other"
	if a.SameConnection(b) {
		t.Error("database changes the connection")
	}
}

func TestWatch(t *testing.T) {
	useFs(t, afero.NewOsFs())
	dir := t.TempDir()
	path := filepath.Join(dir, "livebridge.yaml")
	writeFile(t, Fs, path, "namespace: before\n")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *Config, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- Watch(ctx, path, func(c *Config) {
			select {
			case got <- c:
			default:
			}
		}, WithDebounce(10*time.Millisecond))
	}()

	// Rewrite until the watcher, which starts asynchronously, sees a change.
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-got:
			if cfg.Namespace != "after" {
				t.Errorf("Namespace = %q, want after", cfg.Namespace)
			}
			cancel()
			if err := <-errc; !stderrors.Is(err, context.Canceled) {
				t.Errorf("Watch() = %v, want context.Canceled", err)
			}
			return
		case <-tick.C:
			writeFile(t, Fs, path, "namespace: after\n")
		case <-ctx.Done():
			t.Fatal("no reload observed")
		}
	}
}

func TestWatch_InvalidConfigReportsError(t *testing.T) {
	useFs(t, afero.NewOsFs())
	dir := t.TempDir()
	path := filepath.Join(dir, "livebridge.yaml")
	writeFile(t, Fs, path, "namespace: ok\n")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errs := make(chan error, 1)
	go Watch(ctx, path, func(*Config) {
		t.Error("invalid config must not be delivered")
	}, WithDebounce(10*time.Millisecond), OnError(func(err error) {
		select {
		case errs <- err:
		default:
		}
	}))

	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case err := <-errs:
			var e *errors.Error
			if !stderrors.As(err, &e) || e.Path[0] != "event_buffer" {
				t.Errorf("err = %v", err)
			}
			return
		case <-tick.C:
			writeFile(t, Fs, path, "event_buffer: -5\n")
		case <-ctx.Done():
			t.Fatal("no error observed")
		}
	}
}
