package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.landing.ai", cfg.Providers.VisionAgentBaseURL)
	assert.Equal(t, 10*time.Second, cfg.Doctor.ProbeTimeout)
	assert.Equal(t, 0.7, cfg.Doctor.PassRatio)
	assert.Equal(t, "vision_agent_test_results.json", cfg.Doctor.ReportFile)
	assert.False(t, cfg.Cache.Enabled)
	assert.True(t, cfg.History.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	content := `
providers:
  vision_agent_base_url: https://va.example.com
  timeout: 30s
doctor:
  probe_timeout: 5s
  sample_dir: /data/samples
  pass_ratio: 0.8
cache:
  enabled: true
  addr: redis.example.com:6379
log:
  level: debug
  format: json
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "https://va.example.com", cfg.Providers.VisionAgentBaseURL)
	assert.Equal(t, 30*time.Second, cfg.Providers.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Doctor.ProbeTimeout)
	assert.Equal(t, "/data/samples", cfg.Doctor.SampleDir)
	assert.Equal(t, 0.8, cfg.Doctor.PassRatio)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "redis.example.com:6379", cfg.Cache.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 文件未覆盖的字段保持默认值
	assert.Equal(t, "https://api.anthropic.com", cfg.Providers.AnthropicBaseURL)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.landing.ai", cfg.Providers.VisionAgentBaseURL)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	content := `
doctor:
  sample_dir: /from/file
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("VISIONKIT_DOCTOR_SAMPLE_DIR", "/from/env")
	t.Setenv("VISIONKIT_DOCTOR_PROBE_TIMEOUT", "3s")
	t.Setenv("VISIONKIT_CACHE_ENABLED", "true")
	t.Setenv("VISIONKIT_LOG_OUTPUT_PATHS", "stdout, /var/log/visionkit.log")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.Doctor.SampleDir)
	assert.Equal(t, 3*time.Second, cfg.Doctor.ProbeTimeout)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, []string{"stdout", "/var/log/visionkit.log"}, cfg.Log.OutputPaths)
}

func TestLoadCustomValidator(t *testing.T) {
	wantErr := errors.New("sample dir required")
	_, err := NewLoader().
		WithValidator(func(cfg *Config) error {
			if cfg.Doctor.SampleDir == "" {
				return wantErr
			}
			return nil
		}).
		Load()
	// 默认配置带 sample_dir，验证器通过
	require.NoError(t, err)

	t.Setenv("VISIONKIT_DOCTOR_SAMPLE_DIR", "")
	_, err = NewLoader().
		WithValidator(func(cfg *Config) error {
			cfg.Doctor.SampleDir = ""
			return wantErr
		}).
		Load()
	assert.ErrorIs(t, err, wantErr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "zero probe timeout",
			mutate:  func(c *Config) { c.Doctor.ProbeTimeout = 0 },
			wantErr: "probe_timeout",
		},
		{
			name:    "pass ratio above one",
			mutate:  func(c *Config) { c.Doctor.PassRatio = 1.2 },
			wantErr: "pass_ratio",
		},
		{
			name:    "empty artifacts path",
			mutate:  func(c *Config) { c.Artifacts.BasePath = "" },
			wantErr: "base_path",
		},
		{
			name: "cache enabled without addr",
			mutate: func(c *Config) {
				c.Cache.Enabled = true
				c.Cache.Addr = ""
			},
			wantErr: "cache enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
