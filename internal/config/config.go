// Package config resolves builder settings from defaults, an optional YAML file
// and environment variables. Command-line flags are applied on top by the CLI.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of knobs for a build run.
type Config struct {
	DataDir   string `yaml:"data_dir"`
	OutputDir string `yaml:"output_dir"`
	IndexPath string `yaml:"index_path"`

	LogFile   string `yaml:"log_file"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Workers        int           `yaml:"workers"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	ProjectTimeout time.Duration `yaml:"project_timeout"`

	// Strict fails a project on any unreadable, unrecognized or empty CSV
	// instead of skipping the file.
	Strict bool `yaml:"strict"`
	TopN   int  `yaml:"top_n"`
	Clean  bool `yaml:"clean"`

	SQLitePath      string `yaml:"sqlite_path"`
	Parquet         bool   `yaml:"parquet"`
	MetricsTextfile string `yaml:"metrics_textfile"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		DataDir:        "subproject_csvs",
		OutputDir:      "metrics_output",
		IndexPath:      "index.html",
		LogFile:        "metrics_build.log",
		LogLevel:       "info",
		LogFormat:      "console",
		Workers:        4,
		ProjectTimeout: 5 * time.Minute,
		TopN:           25,
		Clean:          true,
	}
}

// Load starts from Default, overlays the YAML file at path (if non-empty) and
// then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.mergeEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	// Unmarshal onto the current values so keys missing from the file keep their defaults.
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config YAML %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() error {
	envString("DATA_DIR", &c.DataDir)
	envString("OUTPUT_DIR", &c.OutputDir)
	envString("INDEX_PATH", &c.IndexPath)
	envString("LOG_FILE", &c.LogFile)
	envString("LOG_LEVEL", &c.LogLevel)
	envString("LOG_FORMAT", &c.LogFormat)
	envString("SQLITE_PATH", &c.SQLitePath)
	envString("METRICS_TEXTFILE", &c.MetricsTextfile)

	if err := envInt("WORKERS", &c.Workers); err != nil {
		return err
	}
	if err := envInt("TOP_N", &c.TopN); err != nil {
		return err
	}
	if err := envFloat("RATE_LIMIT_RPS", &c.RateLimitRPS); err != nil {
		return err
	}
	if err := envDuration("PROJECT_TIMEOUT", &c.ProjectTimeout); err != nil {
		return err
	}
	if err := envBool("STRICT", &c.Strict); err != nil {
		return err
	}
	if err := envBool("CLEAN", &c.Clean); err != nil {
		return err
	}
	return envBool("PARQUET", &c.Parquet)
}

// Validate reports settings that cannot produce a run.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir is required")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("output_dir is required")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.TopN <= 0 {
		return fmt.Errorf("top_n must be positive, got %d", c.TopN)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("rate_limit_rps must not be negative, got %g", c.RateLimitRPS)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json, got %q", c.LogFormat)
	}
	return nil
}

func envString(varName string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(varName)); v != "" {
		*dst = v
	}
}

func envInt(varName string, dst *int) error {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	*dst = out
	return nil
}

func envFloat(varName string, dst *float64) error {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	*dst = out
	return nil
}

func envDuration(varName string, dst *time.Duration) error {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	*dst = out
	return nil
}

func envBool(varName string, dst *bool) error {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return nil
	}
	out, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	*dst = out
	return nil
}
