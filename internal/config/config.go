// Package config reads the relay's optional YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var ErrInvalid = errors.New("invalid configuration")

const appName = "terminal-relay"

type Config struct {
	Listen         []string `yaml:"listen"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxConnections int      `yaml:"max_connections"`
	CredentialDir  string   `yaml:"credential_dir"`
	LogLevel       string   `yaml:"log_level"`
	GCPProjectID   string   `yaml:"gcp_project_id"`

	TLS      TLSConfig      `yaml:"tls"`
	Registry RegistryConfig `yaml:"registry"`
	Engine   EngineConfig   `yaml:"engine"`
	Host     HostConfig     `yaml:"host"`
}

type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type RegistryConfig struct {
	BufferCapacity    int      `yaml:"buffer_capacity"`
	AssistantPatterns []string `yaml:"assistant_patterns"`
}

type EngineConfig struct {
	QueueCapacity   int           `yaml:"queue_capacity"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	LivenessTimeout time.Duration `yaml:"liveness_timeout"`
	IdleAfter       time.Duration `yaml:"idle_after"`
	// Terminal input messages per second and connection, zero disables limiting
	InputRate  float64 `yaml:"input_rate"`
	InputBurst int     `yaml:"input_burst"`
}

type HostConfig struct {
	SpawnShell       bool   `yaml:"spawn_shell"`
	ShellPath        string `yaml:"shell_path"`
	WorkingDirectory string `yaml:"working_directory"`
	// Extra KEY=value variables for the shells, on top of the relay's environment
	Env []string `yaml:"env"`
}

func Default() *Config {
	return &Config{
		MaxConnections: 50,
		CredentialDir:  DefaultCredentialDir(),
		LogLevel:       "info",
		Registry: RegistryConfig{
			BufferCapacity:    1000,
			AssistantPatterns: []string{"claude"},
		},
		Engine: EngineConfig{
			QueueCapacity:   100,
			PingInterval:    30 * time.Second,
			LivenessTimeout: 60 * time.Second,
			IdleAfter:       5 * time.Minute,
		},
	}
}

func DefaultCredentialDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "."+appName)
	}

	return filepath.Join(dir, appName)
}

// Load reads the file at path on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) Validate() error {
	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("%w: max_connections must be positive, got %d", ErrInvalid, cfg.MaxConnections)
	}

	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		return fmt.Errorf("%w: tls needs both cert_file and key_file", ErrInvalid)
	}

	if cfg.Registry.BufferCapacity <= 0 {
		return fmt.Errorf("%w: registry.buffer_capacity must be positive, got %d", ErrInvalid,
			cfg.Registry.BufferCapacity)
	}

	if cfg.Engine.QueueCapacity <= 0 {
		return fmt.Errorf("%w: engine.queue_capacity must be positive, got %d", ErrInvalid,
			cfg.Engine.QueueCapacity)
	}

	if cfg.Engine.PingInterval <= 0 || cfg.Engine.LivenessTimeout <= 0 || cfg.Engine.IdleAfter <= 0 {
		return fmt.Errorf("%w: engine intervals must be positive", ErrInvalid)
	}

	if cfg.Engine.LivenessTimeout < cfg.Engine.PingInterval {
		return fmt.Errorf("%w: engine.liveness_timeout (%s) is shorter than engine.ping_interval (%s)",
			ErrInvalid, cfg.Engine.LivenessTimeout, cfg.Engine.PingInterval)
	}

	for _, variable := range cfg.Host.Env {
		if key, _, found := strings.Cut(variable, "="); !found || key == "" {
			return fmt.Errorf("%w: host.env entry %q is not KEY=value", ErrInvalid, variable)
		}
	}

	if cfg.Engine.InputRate < 0 || (cfg.Engine.InputRate > 0 && cfg.Engine.InputBurst <= 0) {
		return fmt.Errorf("%w: engine.input_rate needs a positive engine.input_burst", ErrInvalid)
	}

	return nil
}
