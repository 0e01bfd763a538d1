package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port            int   `mapstructure:"port"`
	SendBuffer      int   `mapstructure:"send_buffer"`
	MaxMessageBytes int64 `mapstructure:"max_message_bytes"`
}

type SessionConfig struct {
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	StartersFile  string        `mapstructure:"starters_file"`
}

type DockerConfig struct {
	Binary  string `mapstructure:"binary"`
	Image   string `mapstructure:"image"`
	Memory  string `mapstructure:"memory"`
	Network bool   `mapstructure:"network"`
}

type RuntimeConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxOutput   int           `mapstructure:"max_output"`
	Interpreter string        `mapstructure:"interpreter"`
	Docker      DockerConfig  `mapstructure:"docker"`
}

type StorageConfig struct {
	DBPath  string `mapstructure:"db_path"`
	Journal bool   `mapstructure:"journal"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Session SessionConfig `mapstructure:"session"`
	Runtime RuntimeConfig `mapstructure:"runtime"`
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
}

// Interpreter backends.
const (
	InterpreterStarlark = "starlark"
	InterpreterDocker   = "docker"
)

// Load reads pairpad.yaml from path, or from . and $HOME/.pairpad when path
// is empty. A missing file is not an error. PAIRPAD_* environment variables
// override file values (server.port → PAIRPAD_SERVER_PORT).
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pairpad")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.pairpad")
	}

	setDefaults(v)

	v.SetEnvPrefix("PAIRPAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Storage.DBPath = os.ExpandEnv(cfg.Storage.DBPath)
	cfg.Session.StartersFile = os.ExpandEnv(cfg.Session.StartersFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.send_buffer", 256)
	v.SetDefault("server.max_message_bytes", 1<<20)

	v.SetDefault("session.idle_ttl", "0s")
	v.SetDefault("session.sweep_interval", "1m")
	v.SetDefault("session.starters_file", "")

	v.SetDefault("runtime.timeout", "5s")
	v.SetDefault("runtime.max_output", 64*1024)
	v.SetDefault("runtime.interpreter", InterpreterStarlark)
	v.SetDefault("runtime.docker.binary", "docker")
	v.SetDefault("runtime.docker.image", "python:3.12-slim")
	v.SetDefault("runtime.docker.memory", "256m")
	v.SetDefault("runtime.docker.network", false)

	v.SetDefault("storage.db_path", filepath.Join(os.Getenv("HOME"), ".pairpad", "pairpad.db"))
	v.SetDefault("storage.journal", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.SendBuffer < 1 {
		return fmt.Errorf("server.send_buffer must be positive, got %d", c.Server.SendBuffer)
	}
	if c.Runtime.Timeout <= 0 {
		return fmt.Errorf("runtime.timeout must be positive, got %s", c.Runtime.Timeout)
	}
	switch c.Runtime.Interpreter {
	case InterpreterStarlark, InterpreterDocker:
	default:
		return fmt.Errorf("unknown runtime.interpreter %q", c.Runtime.Interpreter)
	}
	if c.Session.IdleTTL < 0 {
		return fmt.Errorf("session.idle_ttl must not be negative")
	}
	return nil
}
