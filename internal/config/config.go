package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultPort     = 7862
	DefaultHost     = "127.0.0.1"
	dataDirName     = ".orchestration"
	projectFileName = ".orchestration.toml"
)

// Config holds all configuration for the orchestrator daemon and CLI.
type Config struct {
	LogLevel  string          `toml:"log_level"`
	LogFormat string          `toml:"log_format"`
	Daemon    DaemonConfig    `toml:"daemon"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Defaults  DefaultsConfig  `toml:"defaults"`
}

type DaemonConfig struct {
	SocketPath string `toml:"socket_path"`
	PIDPath    string `toml:"pid_path"`
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
}

type TelemetryConfig struct {
	Enabled      bool   `toml:"enabled"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
	ServiceName  string `toml:"service_name"`
	// SampleRatio is the fraction of root traces kept, in [0, 1].
	SampleRatio float64 `toml:"sample_ratio"`
	// Insecure disables TLS to the collector.
	Insecure bool `toml:"insecure"`
}

// DefaultsConfig fills fields omitted from spawn requests.
type DefaultsConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	Cwd      string `toml:"cwd"`
	CLIPath  string `toml:"cli_path"`
}

// DataDir returns ~/.orchestration, or ./.orchestration without a home.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return dataDirName
	}
	return filepath.Join(home, dataDirName)
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := DataDir()
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Daemon: DaemonConfig{
			SocketPath: filepath.Join(dir, "daemon.sock"),
			PIDPath:    filepath.Join(dir, "daemon.pid"),
			Host:       DefaultHost,
			Port:       DefaultPort,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "orchestrator",
			SampleRatio:  1,
			Insecure:     true,
		},
		Defaults: DefaultsConfig{
			Provider: "sdk",
		},
	}
}

// Files lists the TOML files merged by Load, lowest precedence first.
func Files(cwd string) []string {
	var files []string
	if cfgDir, err := os.UserConfigDir(); err == nil {
		files = append(files, filepath.Join(cfgDir, "orchestration", "config.toml"))
	}
	if cwd != "" {
		files = append(files, filepath.Join(cwd, projectFileName))
	}
	return files
}

// Load merges defaults, the user and project TOML files, and ORCH_*
// environment variables, in that order of precedence.
func Load(cwd string) (*Config, error) {
	cfg := Default()
	for _, path := range Files(cwd) {
		if err := mergeFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	_, err := toml.DecodeFile(path, cfg)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.LogLevel = envStr("ORCH_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envStr("ORCH_LOG_FORMAT", cfg.LogFormat)
	cfg.Daemon.SocketPath = envStr("ORCH_SOCKET_PATH", cfg.Daemon.SocketPath)
	cfg.Daemon.PIDPath = envStr("ORCH_PID_PATH", cfg.Daemon.PIDPath)
	cfg.Daemon.Port = envInt("ORCH_PORT", cfg.Daemon.Port)
	cfg.Defaults.Provider = envStr("ORCH_DEFAULT_PROVIDER", cfg.Defaults.Provider)
	cfg.Defaults.Model = envStr("ORCH_DEFAULT_MODEL", cfg.Defaults.Model)
	cfg.Defaults.CLIPath = envStr("CLAUDE_BINARY", cfg.Defaults.CLIPath)
	cfg.Telemetry.Enabled = envBool("ORCH_OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.OTLPEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
	cfg.Telemetry.ServiceName = envStr("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
	cfg.Telemetry.SampleRatio = envFloat("ORCH_OTEL_SAMPLE_RATIO", cfg.Telemetry.SampleRatio)
	cfg.Telemetry.Insecure = envBool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Telemetry.Insecure)
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("log_format must be json or text, got %q", c.LogFormat)
	}
	if c.Daemon.Port < 0 || c.Daemon.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Daemon.Port)
	}
	if c.Daemon.SocketPath == "" || c.Daemon.PIDPath == "" {
		return errors.New("socket_path and pid_path are required")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample_ratio must be in [0, 1], got %g", c.Telemetry.SampleRatio)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
