package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/yahallo-auth/yahallo/internal/domain"
	"github.com/yahallo-auth/yahallo/internal/provider"
)

const (
	envPrefix = "YAHALLO"

	// ConfigPathEnv names the variable that points at the YAML config file.
	ConfigPathEnv = "YAHALLO_CONFIG"

	DefaultConfigPath = "/etc/yahallo/config.yaml"
)

type Config struct {
	// Env is development or production.
	Env      string `split_words:"true" yaml:"env"`
	LogLevel string `split_words:"true" yaml:"log_level"`

	// Camera
	CameraDevice string `split_words:"true" yaml:"camera_device"`

	// Models and store
	ModelDir  string `split_words:"true" yaml:"model_dir"`
	FacesFile string `split_words:"true" yaml:"faces_file"`

	// Matching
	MatchThreshold float64 `split_words:"true" yaml:"match_threshold"`
	MatchMetric    string  `split_words:"true" yaml:"match_metric"`
	DarkThreshold  int     `split_words:"true" yaml:"dark_threshold"`
	Detector       string  `split_words:"true" yaml:"detector"`
	Encoder        string  `split_words:"true" yaml:"encoder"`
	WorkWidth      int     `split_words:"true" yaml:"work_width"`

	// Session
	SessionTimeout    time.Duration `split_words:"true" yaml:"session_timeout"`
	MaxFailedAttempts int           `split_words:"true" yaml:"max_failed_attempts"`
	LockoutWindow     time.Duration `split_words:"true" yaml:"lockout_window"`

	// Audit
	AuditDatabaseURL string `split_words:"true" yaml:"audit_database_url"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Env:               "production",
		CameraDevice:      "/dev/video2",
		ModelDir:          "/usr/share/yahallo/models",
		FacesFile:         "/var/lib/yahallo/faces.json",
		MatchThreshold:    0.6,
		MatchMetric:       string(domain.MetricEuclidean),
		DarkThreshold:     30,
		Detector:          string(provider.DetectorYuNet),
		Encoder:           string(provider.EncoderDlib),
		WorkWidth:         320,
		SessionTimeout:    2 * time.Second,
		MaxFailedAttempts: 0,
		LockoutWindow:     5 * time.Minute,
	}
}

// Load builds the configuration from defaults, the YAML file and the
// environment, in that order of precedence. An empty path falls back to
// $YAHALLO_CONFIG and then to DefaultConfigPath; only an explicitly named
// file must exist.
func Load(path string) (*Config, error) {
	explicit := true
	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path == "" {
		path = DefaultConfigPath
		explicit = false
	}

	cfg := Default()
	if err := cfg.mergeFile(path, explicit); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return cfg, nil
}

func (c *Config) mergeFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// ValidationError reports an invalid configuration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks ranges and backend selection. It is run by Load and must
// be run by callers that build a Config by hand.
func (c *Config) Validate() error {
	if c.DarkThreshold < 0 || c.DarkThreshold > 100 {
		return &ValidationError{Field: "dark_threshold", Reason: "dark threshold percent should be 0..=100"}
	}
	if c.MatchThreshold < 0 {
		return &ValidationError{Field: "match_threshold", Reason: "must not be negative"}
	}
	if c.WorkWidth < 0 {
		return &ValidationError{Field: "work_width", Reason: "must not be negative"}
	}
	if c.SessionTimeout <= 0 {
		return &ValidationError{Field: "session_timeout", Reason: "must be positive"}
	}
	if c.FacesFile == "" {
		return &ValidationError{Field: "faces_file", Reason: "must be set"}
	}
	if info, err := os.Stat(c.FacesFile); err == nil && info.IsDir() {
		return &ValidationError{Field: "faces_file", Reason: "faces file should not be a dir"}
	}
	if _, err := domain.ParseMetric(c.MatchMetric); err != nil {
		return &ValidationError{Field: "match_metric", Reason: err.Error()}
	}

	det, err := provider.ParseDetector(c.Detector)
	if err != nil {
		return &ValidationError{Field: "detector", Reason: err.Error()}
	}
	enc, err := provider.ParseEncoder(c.Encoder)
	if err != nil {
		return &ValidationError{Field: "encoder", Reason: err.Error()}
	}
	if err := provider.ValidatePair(det, enc); err != nil {
		return &ValidationError{Field: "encoder", Reason: err.Error()}
	}

	return nil
}

// Metric returns the validated match metric.
func (c *Config) Metric() domain.Metric {
	m, err := domain.ParseMetric(c.MatchMetric)
	if err != nil {
		return domain.MetricEuclidean
	}
	return m
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
