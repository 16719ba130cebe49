// Package config loads command configuration from a TOML file with
// environment-variable overrides. A missing file is not an error; it
// yields the defaults.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix is the prefix for all override variables.
const EnvPrefix = "TEXTSTORE_"

// Duration wraps time.Duration so TOML values like "2s" parse.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full command configuration.
type Config struct {
	Log     Log     `toml:"log"`
	Store   Store   `toml:"store"`
	Metrics Metrics `toml:"metrics"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json
}

// Store configures the buffer registry.
type Store struct {
	QueueCapacity int      `toml:"queue_capacity"`
	LockTimeout   Duration `toml:"lock_timeout"`
	MaxReaders    int      `toml:"max_readers"`
	Normalize     bool     `toml:"normalize"` // NFC-normalize inserted text
}

// Metrics configures the optional Prometheus endpoint.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// Default returns the configuration used when no file and no overrides
// are present.
func Default() Config {
	return Config{
		Log:     Log{Level: "info", Format: "text"},
		Store:   Store{QueueCapacity: 64},
		Metrics: Metrics{Listen: ":9190"},
	}
}

// Load reads the TOML file at path, applies TEXTSTORE_* environment
// overrides, and validates the result. A missing file is fine; an
// unreadable or malformed one is not.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults apply.
		case err != nil:
			return cfg, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, &ParseError{Path: path, Message: err.Error(), Err: err}
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides cfg fields from TEXTSTORE_* variables. Empty
// values count as set.
func applyEnv(cfg *Config) error {
	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok {
		cfg.Log.Format = v
	}
	if v, ok := lookup("QUEUE_CAPACITY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envErr("QUEUE_CAPACITY", v, err)
		}
		cfg.Store.QueueCapacity = n
	}
	if v, ok := lookup("LOCK_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envErr("LOCK_TIMEOUT", v, err)
		}
		cfg.Store.LockTimeout = Duration(d)
	}
	if v, ok := lookup("MAX_READERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envErr("MAX_READERS", v, err)
		}
		cfg.Store.MaxReaders = n
	}
	if v, ok := lookup("NORMALIZE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envErr("NORMALIZE", v, err)
		}
		cfg.Store.Normalize = b
	}
	if v, ok := lookup("METRICS_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envErr("METRICS_ENABLED", v, err)
		}
		cfg.Metrics.Enabled = b
	}
	if v, ok := lookup("METRICS_LISTEN"); ok {
		cfg.Metrics.Listen = v
	}
	return nil
}

func lookup(name string) (string, bool) {
	return os.LookupEnv(EnvPrefix + name)
}

func envErr(name, value string, err error) error {
	return fmt.Errorf("invalid %s%s value %q: %w", EnvPrefix, name, value, err)
}

// Validate checks enum fields and numeric ranges.
func (c Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	if c.Store.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be positive, got %d", c.Store.QueueCapacity)
	}
	if c.Store.LockTimeout < 0 {
		return fmt.Errorf("lock_timeout must not be negative, got %s", c.Store.LockTimeout.Std())
	}
	if c.Store.MaxReaders < 0 {
		return fmt.Errorf("max_readers must not be negative, got %d", c.Store.MaxReaders)
	}
	return nil
}

// SlogLevel maps the configured level name to a slog.Level.
func (l Log) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger builds a slog.Logger writing to w per the log configuration.
func (l Log) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	var h slog.Handler
	if l.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// ParseError reports a malformed configuration file.
type ParseError struct {
	Path    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }
