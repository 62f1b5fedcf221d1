package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"conconi/internal/analysis"
)

// EnvPrefix is prepended to every environment override, e.g. CONCONI_LOG_LEVEL
const EnvPrefix = "CONCONI_"

// Config represents the application configuration
type Config struct {
	User     string         `json:"user" env:"USER"`
	Database string         `json:"database,omitempty" env:"DATABASE"` // defaults to ~/.conconi/data.db
	Strava   StravaConfig   `json:"strava" envPrefix:"STRAVA_"`
	Analysis AnalysisConfig `json:"analysis" envPrefix:"ANALYSIS_"`
	Log      LogConfig      `json:"log" envPrefix:"LOG_"`
}

// StravaConfig holds Strava API credentials
type StravaConfig struct {
	ClientID     string `json:"client_id" env:"CLIENT_ID"`
	ClientSecret string `json:"client_secret" env:"CLIENT_SECRET"`
}

// AnalysisConfig holds the threshold pipeline settings
type AnalysisConfig struct {
	TrimHead          int     `json:"trim_head" env:"TRIM_HEAD"`
	TrimTail          int     `json:"trim_tail" env:"TRIM_TAIL"`
	MinRawSamples     int     `json:"min_raw_samples" env:"MIN_RAW_SAMPLES"`
	MinSamples        int     `json:"min_samples" env:"MIN_SAMPLES"`
	OutlierIQRFactor  float64 `json:"outlier_iqr_factor" env:"OUTLIER_IQR_FACTOR"`
	SmoothWindow      int     `json:"smooth_window" env:"SMOOTH_WINDOW"`
	SmoothOrder       int     `json:"smooth_order" env:"SMOOTH_ORDER"`
	MinCorrelation    float64 `json:"min_correlation" env:"MIN_CORRELATION"`
	Resamples         int     `json:"bootstrap_resamples" env:"BOOTSTRAP_RESAMPLES"`
	ConfidenceLevel   float64 `json:"confidence_level" env:"CONFIDENCE_LEVEL"`
	BootstrapResmooth bool    `json:"bootstrap_resmooth" env:"BOOTSTRAP_RESMOOTH"`
	WideCIRatio       float64 `json:"wide_ci_ratio" env:"WIDE_CI_RATIO"`
	Workers           int     `json:"workers" env:"WORKERS"`
	Seed              uint64  `json:"seed" env:"SEED"` // 0 = random
}

// LogConfig holds logging preferences
type LogConfig struct {
	Level  string `json:"level" env:"LEVEL"`
	Pretty bool   `json:"pretty" env:"PRETTY"`
}

// Bootstrap resample bounds accepted by Validate
const (
	MinResamples = 20
	MaxResamples = 1000
)

// ErrNoConfig is returned when the config file doesn't exist
var ErrNoConfig = errors.New("config file not found")

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	opts := analysis.DefaultOptions()
	return Config{
		Analysis: AnalysisConfig{
			TrimHead:          opts.TrimHead,
			TrimTail:          opts.TrimTail,
			MinRawSamples:     opts.MinRawSamples,
			MinSamples:        opts.MinSamples,
			OutlierIQRFactor:  opts.OutlierIQRFactor,
			SmoothWindow:      opts.SmoothWindow,
			SmoothOrder:       opts.SmoothOrder,
			MinCorrelation:    opts.MinCorrelation,
			Resamples:         opts.Resamples,
			ConfidenceLevel:   1 - opts.Alpha,
			BootstrapResmooth: opts.Resmooth,
			WideCIRatio:       opts.WideCIRatio,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load reads ~/.conconi/config.json and applies CONCONI_* environment
// overrides. A missing file is not an error: the defaults are used.
func Load() (*Config, error) {
	path, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	cfg, err := LoadFile(path)
	if errors.Is(err, ErrNoConfig) {
		defaults := DefaultConfig()
		cfg = &defaults
	} else if err != nil {
		return nil, err
	}

	if err := applyEnv(cfg, nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a config file. Keys missing from the file keep their
// default values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNoConfig
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return &cfg, nil
}

// applyEnv overrides cfg from the environment. A nil environ means the
// process environment.
func applyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	return nil
}

// Save writes the configuration to ~/.conconi/config.json
func Save(cfg *Config) error {
	path, err := getConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(path, cfg)
}

// SaveFile writes the configuration to path, creating its directory
func SaveFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// CreateExample creates an example config file if none exists.
// Returns the path of the file.
func CreateExample() (string, error) {
	path, err := getConfigPath()
	if err != nil {
		return "", err
	}

	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return path, nil // Config exists, don't overwrite
	}

	example := DefaultConfig()
	example.User = "athlete"
	example.Strava = StravaConfig{
		ClientID:     "YOUR_CLIENT_ID",
		ClientSecret: "YOUR_CLIENT_SECRET",
	}

	return path, SaveFile(path, &example)
}

// Validate checks the analysis and logging settings
func (c *Config) Validate() error {
	a := c.Analysis
	if a.TrimHead < 0 || a.TrimTail < 0 {
		return fmt.Errorf("analysis.trim_head and analysis.trim_tail must not be negative")
	}
	if a.MinSamples < 4 {
		return fmt.Errorf("analysis.min_samples must be at least 4, got %d", a.MinSamples)
	}
	if a.OutlierIQRFactor <= 0 {
		return fmt.Errorf("analysis.outlier_iqr_factor must be positive, got %v", a.OutlierIQRFactor)
	}

	window := a.SmoothWindow
	if window%2 == 0 {
		window++
	}
	if a.SmoothOrder < 0 || a.SmoothOrder >= window {
		return fmt.Errorf("analysis.smooth_order (%d) must be below analysis.smooth_window (%d)", a.SmoothOrder, window)
	}

	if a.MinCorrelation < 0 || a.MinCorrelation > 1 {
		return fmt.Errorf("analysis.min_correlation must be within [0, 1], got %v", a.MinCorrelation)
	}
	if a.Resamples < MinResamples || a.Resamples > MaxResamples {
		return fmt.Errorf("analysis.bootstrap_resamples must be within [%d, %d], got %d", MinResamples, MaxResamples, a.Resamples)
	}
	if a.ConfidenceLevel <= 0 || a.ConfidenceLevel >= 1 {
		return fmt.Errorf("analysis.confidence_level must be within (0, 1), got %v", a.ConfidenceLevel)
	}
	if a.WideCIRatio <= 0 {
		return fmt.Errorf("analysis.wide_ci_ratio must be positive, got %v", a.WideCIRatio)
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	return nil
}

// ValidateStrava checks that Strava credentials are present
func (c *Config) ValidateStrava() error {
	if c.Strava.ClientID == "" || c.Strava.ClientID == "YOUR_CLIENT_ID" {
		return errors.New("strava.client_id is required - get it from https://www.strava.com/settings/api")
	}
	if c.Strava.ClientSecret == "" || c.Strava.ClientSecret == "YOUR_CLIENT_SECRET" {
		return errors.New("strava.client_secret is required - get it from https://www.strava.com/settings/api")
	}
	return nil
}

// Options converts the analysis settings for the analyzer
func (a AnalysisConfig) Options() analysis.Options {
	return analysis.Options{
		TrimHead:         a.TrimHead,
		TrimTail:         a.TrimTail,
		MinRawSamples:    a.MinRawSamples,
		MinSamples:       a.MinSamples,
		OutlierIQRFactor: a.OutlierIQRFactor,
		SmoothWindow:     a.SmoothWindow,
		SmoothOrder:      a.SmoothOrder,
		MinCorrelation:   a.MinCorrelation,
		Resamples:        a.Resamples,
		Alpha:            1 - a.ConfidenceLevel,
		Resmooth:         a.BootstrapResmooth,
		WideCIRatio:      a.WideCIRatio,
		Workers:          a.Workers,
		Seed:             a.Seed,
	}
}

// DatabasePath returns the configured database path or ~/.conconi/data.db
func (c *Config) DatabasePath() (string, error) {
	if c.Database != "" {
		return c.Database, nil
	}
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data.db"), nil
}

// getConfigPath returns the path to the config file
func getConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".conconi"), nil
}
