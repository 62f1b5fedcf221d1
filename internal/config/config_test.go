package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Analysis.TrimHead != 10 || cfg.Analysis.TrimTail != 10 {
		t.Errorf("trim = %d/%d, want 10/10", cfg.Analysis.TrimHead, cfg.Analysis.TrimTail)
	}
	if cfg.Analysis.Resamples != 50 {
		t.Errorf("Analysis.Resamples = %d, want 50", cfg.Analysis.Resamples)
	}
	if cfg.Analysis.SmoothWindow != 11 || cfg.Analysis.SmoothOrder != 3 {
		t.Errorf("smoothing = %d/%d, want 11/3", cfg.Analysis.SmoothWindow, cfg.Analysis.SmoothOrder)
	}
	if !cfg.Analysis.BootstrapResmooth {
		t.Error("Analysis.BootstrapResmooth should default to true")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	// Strava config should be empty by default
	if cfg.Strava.ClientID != "" {
		t.Errorf("Strava.ClientID should be empty, got %q", cfg.Strava.ClientID)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{
			name:   "defaults",
			mutate: func(c *Config) {},
		},
		{
			name:        "negative trim",
			mutate:      func(c *Config) { c.Analysis.TrimHead = -1 },
			errContains: "trim_head",
		},
		{
			name:        "too few resamples",
			mutate:      func(c *Config) { c.Analysis.Resamples = 10 },
			errContains: "bootstrap_resamples",
		},
		{
			name:        "too many resamples",
			mutate:      func(c *Config) { c.Analysis.Resamples = 5000 },
			errContains: "bootstrap_resamples",
		},
		{
			name:        "confidence level of one",
			mutate:      func(c *Config) { c.Analysis.ConfidenceLevel = 1 },
			errContains: "confidence_level",
		},
		{
			name:        "order not below widened window",
			mutate:      func(c *Config) { c.Analysis.SmoothWindow = 4; c.Analysis.SmoothOrder = 5 },
			errContains: "smooth_order",
		},
		{
			name:   "even window widened above order",
			mutate: func(c *Config) { c.Analysis.SmoothWindow = 4; c.Analysis.SmoothOrder = 4 },
		},
		{
			name:        "correlation above one",
			mutate:      func(c *Config) { c.Analysis.MinCorrelation = 1.5 },
			errContains: "min_correlation",
		},
		{
			name:        "too few samples for the model",
			mutate:      func(c *Config) { c.Analysis.MinSamples = 3 },
			errContains: "min_samples",
		},
		{
			name:        "unknown log level",
			mutate:      func(c *Config) { c.Log.Level = "loud" },
			errContains: "log.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestValidateStrava(t *testing.T) {
	tests := []struct {
		name        string
		strava      StravaConfig
		errContains string
	}{
		{"valid", StravaConfig{ClientID: "12345", ClientSecret: "abc123secret"}, ""},
		{"empty client ID", StravaConfig{ClientSecret: "abc123secret"}, "client_id"},
		{"placeholder client ID", StravaConfig{ClientID: "YOUR_CLIENT_ID", ClientSecret: "abc123secret"}, "client_id"},
		{"placeholder client secret", StravaConfig{ClientID: "12345", ClientSecret: "YOUR_CLIENT_SECRET"}, "client_secret"},
		{"both placeholders", StravaConfig{ClientID: "YOUR_CLIENT_ID", ClientSecret: "YOUR_CLIENT_SECRET"}, "client_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Strava: tt.strava}
			err := cfg.ValidateStrava()
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.errContains), "error %q should contain %q", err, tt.errContains)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(dir, "absent.json"))
		assert.True(t, errors.Is(err, ErrNoConfig))
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		path := filepath.Join(dir, "partial.json")
		data := `{"user": "giulia", "analysis": {"bootstrap_resamples": 200, "bootstrap_resmooth": false}}`
		require.NoError(t, os.WriteFile(path, []byte(data), 0600))

		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "giulia", cfg.User)
		assert.Equal(t, 200, cfg.Analysis.Resamples)
		assert.False(t, cfg.Analysis.BootstrapResmooth)
		assert.Equal(t, 10, cfg.Analysis.TrimHead)
		assert.InDelta(t, 0.95, cfg.Analysis.ConfidenceLevel, 1e-12)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		path := filepath.Join(dir, "broken.json")
		require.NoError(t, os.WriteFile(path, []byte("{"), 0600))
		_, err := LoadFile(path)
		assert.ErrorContains(t, err, "parsing config file")
	})

	t.Run("round trip", func(t *testing.T) {
		path := filepath.Join(dir, "nested", "config.json")
		cfg := DefaultConfig()
		cfg.User = "marco"
		cfg.Analysis.Seed = 99
		require.NoError(t, SaveFile(path, &cfg))

		loaded, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, cfg, *loaded)
	})
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	cfg.User = "from-file"

	err := applyEnv(&cfg, map[string]string{
		"CONCONI_USER":                         "from-env",
		"CONCONI_ANALYSIS_BOOTSTRAP_RESAMPLES": "300",
		"CONCONI_ANALYSIS_SEED":                "17",
		"CONCONI_ANALYSIS_BOOTSTRAP_RESMOOTH":  "false",
		"CONCONI_LOG_LEVEL":                    "debug",
		"CONCONI_STRAVA_CLIENT_ID":             "4242",
	})
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.User)
	assert.Equal(t, 300, cfg.Analysis.Resamples)
	assert.Equal(t, uint64(17), cfg.Analysis.Seed)
	assert.False(t, cfg.Analysis.BootstrapResmooth)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "4242", cfg.Strava.ClientID)
	// Untouched values survive
	assert.Equal(t, 10, cfg.Analysis.TrimHead)
	assert.True(t, cfg.Log.Pretty)
}

func TestApplyEnvInvalid(t *testing.T) {
	cfg := DefaultConfig()
	err := applyEnv(&cfg, map[string]string{"CONCONI_ANALYSIS_TRIM_HEAD": "ten"})
	assert.ErrorContains(t, err, "parsing environment")
}

func TestAnalysisOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analysis.Seed = 5
	cfg.Analysis.Workers = 2

	opts := cfg.Analysis.Options()
	assert.Equal(t, 10, opts.TrimHead)
	assert.Equal(t, 50, opts.Resamples)
	assert.InDelta(t, 0.05, opts.Alpha, 1e-12)
	assert.True(t, opts.Resmooth)
	assert.Equal(t, uint64(5), opts.Seed)
	assert.Equal(t, 2, opts.Workers)
}

func TestDatabasePath(t *testing.T) {
	cfg := Config{Database: "/tmp/conconi-test.db"}
	path, err := cfg.DatabasePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/conconi-test.db", path)

	cfg.Database = ""
	path, err = cfg.DatabasePath()
	require.NoError(t, err)
	assert.Equal(t, "data.db", filepath.Base(path))
	assert.Equal(t, ".conconi", filepath.Base(filepath.Dir(path)))
}
