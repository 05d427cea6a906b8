package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"autoprofile/internal/param"
)

// Config holds all configuration (file + env overrides)
type Config struct {
	Server struct {
		Addr      string `mapstructure:"addr"`
		LogLevel  string `mapstructure:"log_level"`
		LogFormat string `mapstructure:"log_format"`
	} `mapstructure:"server"`

	Store struct {
		Driver    string `mapstructure:"driver"` // file | postgres
		Path      string `mapstructure:"path"`
		StatePath string `mapstructure:"state_path"`
	} `mapstructure:"store"`

	Postgres struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		DBName   string `mapstructure:"db_name"`
		SSLMode  string `mapstructure:"ssl_mode"`
		MaxConns int    `mapstructure:"max_conns"`
		MinConns int    `mapstructure:"min_conns"`
	} `mapstructure:"postgres"`

	Listener struct {
		Channel          string `mapstructure:"channel"`
		ReconnectSeconds int    `mapstructure:"reconnect_seconds"`
		DebounceMs       int    `mapstructure:"debounce_ms"`
	} `mapstructure:"listener"`

	Manager struct {
		Enabled             bool `mapstructure:"enabled"`
		ResumeOnStateChange bool `mapstructure:"resume_on_state_change"`
		DebounceMs          int  `mapstructure:"debounce_ms"`
		BoundaryCapSeconds  int  `mapstructure:"boundary_cap_seconds"`
	} `mapstructure:"manager"`

	Applier struct {
		Kind           string   `mapstructure:"kind"` // memory | command
		Command        []string `mapstructure:"command"`
		TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	} `mapstructure:"applier"`

	Parameters struct {
		Extra []param.Definition `mapstructure:"extra"`
	} `mapstructure:"parameters"`
}

func defaults(v *viper.Viper) {
	dir := defaultDir()
	v.SetDefault("server.addr", "127.0.0.1:8787")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "console")
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.path", filepath.Join(dir, "profiles.yaml"))
	v.SetDefault("store.state_path", filepath.Join(dir, "state.yaml"))
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.db_name", "autoprofile")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 4)
	v.SetDefault("postgres.min_conns", 1)
	v.SetDefault("listener.channel", "autoprofile_changed")
	v.SetDefault("listener.reconnect_seconds", 5)
	v.SetDefault("listener.debounce_ms", 250)
	v.SetDefault("manager.enabled", true)
	v.SetDefault("manager.resume_on_state_change", false)
	v.SetDefault("manager.debounce_ms", 500)
	v.SetDefault("manager.boundary_cap_seconds", 3600)
	v.SetDefault("applier.kind", "memory")
	v.SetDefault("applier.command", []string{})
	v.SetDefault("applier.timeout_seconds", 30)
}

func defaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "autoprofile")
	}
	return "."
}

// Load reads autoprofile.yaml from file (when set) or the search path, then
// applies AUTOPROFILE_* environment overrides. A missing file is not an error.
func Load(file string) (Config, error) {
	v := viper.New()
	defaults(v)
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("autoprofile")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(defaultDir())
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("AUTOPROFILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(c *Config) error {
	c.Store.Driver = strings.ToLower(c.Store.Driver)
	switch c.Store.Driver {
	case "file", "postgres":
	default:
		return fmt.Errorf("store.driver: unsupported %q", c.Store.Driver)
	}
	c.Applier.Kind = strings.ToLower(c.Applier.Kind)
	switch c.Applier.Kind {
	case "memory":
	case "command":
		if len(c.Applier.Command) == 0 {
			return errors.New("applier.command: required when applier.kind is command")
		}
	default:
		return fmt.Errorf("applier.kind: unsupported %q", c.Applier.Kind)
	}
	if c.Manager.DebounceMs <= 0 {
		c.Manager.DebounceMs = 500
	}
	if c.Manager.BoundaryCapSeconds <= 0 {
		c.Manager.BoundaryCapSeconds = 3600
	}
	if c.Listener.ReconnectSeconds <= 0 {
		c.Listener.ReconnectSeconds = 5
	}
	if c.Listener.DebounceMs <= 0 {
		c.Listener.DebounceMs = 250
	}
	if c.Applier.TimeoutSeconds <= 0 {
		c.Applier.TimeoutSeconds = 30
	}
	if c.Postgres.MaxConns <= 0 {
		c.Postgres.MaxConns = 4
	}
	return nil
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.DBName,
		c.Postgres.SSLMode,
	)
}

// Registry builds the parameter registry from the built-ins and parameters.extra.
func (c Config) Registry() (*param.Registry, error) {
	reg, err := param.WithBuiltin(c.Parameters.Extra...)
	if err != nil {
		return nil, fmt.Errorf("parameters.extra: %w", err)
	}
	return reg, nil
}

func (c Config) Backoff() time.Duration { return time.Duration(c.Listener.ReconnectSeconds) * time.Second }

func (c Config) ListenerDebounce() time.Duration {
	return time.Duration(c.Listener.DebounceMs) * time.Millisecond
}

func (c Config) Debounce() time.Duration { return time.Duration(c.Manager.DebounceMs) * time.Millisecond }

func (c Config) BoundaryCap() time.Duration {
	return time.Duration(c.Manager.BoundaryCapSeconds) * time.Second
}

func (c Config) ApplyTimeout() time.Duration {
	return time.Duration(c.Applier.TimeoutSeconds) * time.Second
}
