package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "dealsense.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "anthropic", cfg.Inference.Provider)
	assert.InDelta(t, 5, cfg.Inference.Anthropic.RPS, 0.001)
	assert.InDelta(t, 5, cfg.Inference.OpenAI.RPS, 0.001)
	assert.Equal(t, 30, cfg.Pipeline.AgentTimeoutSecs)
	assert.Equal(t, 120, cfg.Pipeline.RunTimeoutSecs)
	assert.Equal(t, 60, cfg.Pipeline.StalenessThresholdMins)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/dealsense
inference:
  provider: openai
pipeline:
  run_timeout_secs: 300
  staleness_threshold_mins: 0
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/dealsense", cfg.Store.DatabaseURL)
	assert.Equal(t, "openai", cfg.Inference.Provider)
	assert.Equal(t, 300, cfg.Pipeline.RunTimeoutSecs)
	assert.Equal(t, 0, cfg.Pipeline.StalenessThresholdMins)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset keys.
	assert.Equal(t, 30, cfg.Pipeline.AgentTimeoutSecs)
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	t.Setenv("DEALSENSE_STORE_DRIVER", "postgres")
	t.Setenv("DEALSENSE_PIPELINE_AGENT_TIMEOUT_SECS", "10")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 10, cfg.Pipeline.AgentTimeoutSecs)
}

func TestPipelineDurations(t *testing.T) {
	cfg := PipelineConfig{
		AgentTimeoutSecs:       30,
		RunTimeoutSecs:         120,
		StalenessThresholdMins: 60,
	}
	assert.Equal(t, 30*time.Second, cfg.AgentTimeout())
	assert.Equal(t, 2*time.Minute, cfg.RunTimeout())
	assert.Equal(t, time.Hour, cfg.StalenessThreshold())
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "shout", Format: "json"})
	require.Error(t, err)
}
