package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, ":4200", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30, cfg.RefreshSeconds)
	assert.Equal(t, "* * * * *", cfg.SweepCron)
	assert.Contains(t, cfg.DBPath, ".bakeops")
	assert.Empty(t, cfg.DefinitionsPath)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("BAKEOPS_LISTEN_ADDR", ":9000")
	t.Setenv("BAKEOPS_DB_PATH", "/tmp/bakeops-test.db")
	t.Setenv("BAKEOPS_LOG_LEVEL", "debug")
	t.Setenv("BAKEOPS_REFRESH_SECONDS", "5")
	t.Setenv("BAKEOPS_SWEEP_CRON", "*/5 * * * *")
	t.Setenv("BAKEOPS_DEFINITIONS_PATH", "/etc/bakeops/definitions.json")

	cfg := loadConfig()
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "/tmp/bakeops-test.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.RefreshSeconds)
	assert.Equal(t, "*/5 * * * *", cfg.SweepCron)
	assert.Equal(t, "/etc/bakeops/definitions.json", cfg.DefinitionsPath)
}

func TestLoadConfigIgnoresBadRefreshSeconds(t *testing.T) {
	t.Setenv("BAKEOPS_REFRESH_SECONDS", "not-a-number")
	assert.Equal(t, 30, loadConfig().RefreshSeconds)

	t.Setenv("BAKEOPS_REFRESH_SECONDS", "-3")
	assert.Equal(t, 30, loadConfig().RefreshSeconds)
}

func TestRefreshInterval(t *testing.T) {
	cfg := Config{RefreshSeconds: 45}
	assert.Equal(t, 45*time.Second, cfg.RefreshInterval())
}
