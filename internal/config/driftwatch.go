// Package config loads the driftwatch configuration: YAML file first,
// then a small set of environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/driftwatch/driftwatch/internal/connect"
	"github.com/driftwatch/driftwatch/internal/engine"
	"github.com/driftwatch/driftwatch/internal/live"
)

// Server holds the HTTP listener settings.
type Server struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`

	// Token-bucket request limiting; zero RateLimit disables it.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// UnmarshalYAML accepts duration strings for the server timeouts.
func (s *Server) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type raw struct {
		Host         string  `yaml:"host"`
		Port         int     `yaml:"port"`
		ReadTimeout  string  `yaml:"read_timeout"`
		WriteTimeout string  `yaml:"write_timeout"`
		IdleTimeout  string  `yaml:"idle_timeout"`
		RateLimit    float64 `yaml:"rate_limit"`
		RateBurst    int     `yaml:"rate_burst"`
	}
	r := raw{
		Host:         s.Host,
		Port:         s.Port,
		ReadTimeout:  s.ReadTimeout.String(),
		WriteTimeout: s.WriteTimeout.String(),
		IdleTimeout:  s.IdleTimeout.String(),
		RateLimit:    s.RateLimit,
		RateBurst:    s.RateBurst,
	}
	if err := unmarshal(&r); err != nil {
		return err
	}
	read, err := time.ParseDuration(r.ReadTimeout)
	if err != nil {
		return fmt.Errorf("invalid read_timeout %q: %w", r.ReadTimeout, err)
	}
	write, err := time.ParseDuration(r.WriteTimeout)
	if err != nil {
		return fmt.Errorf("invalid write_timeout %q: %w", r.WriteTimeout, err)
	}
	idle, err := time.ParseDuration(r.IdleTimeout)
	if err != nil {
		return fmt.Errorf("invalid idle_timeout %q: %w", r.IdleTimeout, err)
	}
	s.Host = r.Host
	s.Port = r.Port
	s.ReadTimeout = read
	s.WriteTimeout = write
	s.IdleTimeout = idle
	s.RateLimit = r.RateLimit
	s.RateBurst = r.RateBurst
	return nil
}

// Config is the full application configuration.
type Config struct {
	LogLevel  string               `yaml:"log_level"`
	Server    Server               `yaml:"server"`
	Engine    engine.Config        `yaml:"engine"`
	Stream    live.Config          `yaml:"stream"`
	Generator live.GeneratorConfig `yaml:"generator"`
	Connect   connect.Config       `yaml:"connect"`
}

// Default returns the full default configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Server: Server{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			RateLimit:    20,
			RateBurst:    40,
		},
		Engine:    engine.DefaultConfig(),
		Stream:    live.DefaultConfig(),
		Generator: live.DefaultGeneratorConfig(),
		Connect:   connect.DefaultConfig(),
	}
}

// Load reads the YAML file at path over the defaults. An empty path
// skips the file and returns defaults plus env overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Connect.RedisAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
