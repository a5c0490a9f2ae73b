// Package config loads the connection settings of a livebridge process.
//
// Settings come from, in increasing priority: defaults, a config file
// (yaml, toml or json), .env and .env.local next to it, and LIVEBRIDGE_*
// environment variables.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/seamlezz/livebridge/errors"
)

// Fs is the filesystem config files, dotenv files and database
// directories are read from.
var Fs = afero.NewOsFs()

// MemoryURL selects an in-memory database.
const MemoryURL = "memory"

const (
	envPrefix  = "LIVEBRIDGE"
	configName = "livebridge"
)

// Config holds the connection and runtime settings.
type Config struct {
	URL         string `mapstructure:"url"`
	Namespace   string `mapstructure:"namespace"`
	Database    string `mapstructure:"database"`
	LogLevel    string `mapstructure:"log_level"`
	Guest       string `mapstructure:"guest"`
	Export      string `mapstructure:"export"`
	EventBuffer int    `mapstructure:"event_buffer"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		URL:         MemoryURL,
		Namespace:   "test",
		Database:    "test",
		EventBuffer: 16,
		LogLevel:    "info",
		Export:      "run",
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("url", d.URL)
	v.SetDefault("namespace", d.Namespace)
	v.SetDefault("database", d.Database)
	v.SetDefault("event_buffer", d.EventBuffer)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("guest", d.Guest)
	v.SetDefault("export", d.Export)
}

// Load reads the config at path. With an empty path it looks for
// livebridge.{yaml,toml,json} in the working directory and in
// ~/.config/livebridge, and a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetFs(Fs)
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	dir := "."
	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, configError("path", err)
		}
		v.SetConfigFile(expanded)
		dir = filepath.Dir(expanded)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", configName))
		}
	}

	if err := loadDotEnv(dir); err != nil {
		return nil, configError("dotenv", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !stderrors.As(err, &notFound) {
			return nil, configError("file", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, configError("decode", err)
	}
	if cfg.Guest != "" {
		guest, err := homedir.Expand(cfg.Guest)
		if err != nil {
			return nil, configError("guest", err)
		}
		cfg.Guest = guest
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv exports .env from dir without overriding the environment,
// then .env.local with override.
func loadDotEnv(dir string) error {
	files := []struct {
		name     string
		override bool
	}{
		{".env", false},
		{".env.local", true},
	}

	for _, f := range files {
		p := filepath.Join(dir, f.name)
		if _, err := Fs.Stat(p); err != nil {
			continue
		}
		file, err := Fs.Open(p)
		if err != nil {
			return err
		}
		env, err := godotenv.Parse(file)
		file.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		for k, val := range env {
			if _, set := os.LookupEnv(k); set && !f.override {
				continue
			}
			if err := os.Setenv(k, val); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate checks that every field holds a usable value.
func (c *Config) Validate() error {
	switch {
	case c.URL == "":
		return invalid("url", "must not be empty")
	case c.Namespace == "":
		return invalid("namespace", "must not be empty")
	case c.Database == "":
		return invalid("database", "must not be empty")
	case c.EventBuffer < 0:
		return invalid("event_buffer", "must not be negative, got %d", c.EventBuffer)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level", "unknown level %q", c.LogLevel)
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() zap.AtomicLevel {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	return zap.NewAtomicLevelAt(lvl)
}

// DSN returns the SQLite data source for the configured database. A file
// database lives at <url>/<namespace>/<database>.db; its directory is
// created if needed.
func (c *Config) DSN() (string, error) {
	if c.URL == MemoryURL {
		return fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", c.Namespace, c.Database), nil
	}

	root, err := homedir.Expand(c.URL)
	if err != nil {
		return "", configError("url", err)
	}
	dir := filepath.Join(root, c.Namespace)
	if err := Fs.MkdirAll(dir, 0o755); err != nil {
		return "", configError("url", err)
	}
	return filepath.Join(dir, c.Database+".db"), nil
}

// SameConnection reports whether c and other open the same database.
func (c *Config) SameConnection(other *Config) bool {
	return c.URL == other.URL && c.Namespace == other.Namespace && c.Database == other.Database
}

func invalid(field, format string, args ...any) error {
	return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
		Path(field).
		Detail(format, args...).
		Build()
}

func configError(what string, cause error) error {
	return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
		Path(what).
		Cause(cause).
		Build()
}
