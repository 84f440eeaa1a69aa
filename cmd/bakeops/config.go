package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all bakeops server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr      string `json:"listen_addr"`
	DBPath          string `json:"db_path"`
	LogLevel        string `json:"log_level"`
	RefreshSeconds  int    `json:"refresh_seconds"`
	SweepCron       string `json:"sweep_cron"`
	DefinitionsPath string `json:"definitions_path"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:     ":4200",
		DBPath:         filepath.Join(bakeopsDir(), "bakeops.db"),
		LogLevel:       "info",
		RefreshSeconds: 30,
		SweepCron:      "* * * * *",
	}
}

func bakeopsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bakeops"
	}
	return filepath.Join(home, ".bakeops")
}

func settingsPath() string {
	return filepath.Join(bakeopsDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("BAKEOPS_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("BAKEOPS_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("BAKEOPS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BAKEOPS_REFRESH_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RefreshSeconds = n
		}
	}
	if v := os.Getenv("BAKEOPS_SWEEP_CRON"); v != "" {
		cfg.SweepCron = v
	}
	if v := os.Getenv("BAKEOPS_DEFINITIONS_PATH"); v != "" {
		cfg.DefinitionsPath = v
	}

	return cfg
}

// RefreshInterval returns the collection refresh period.
func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshSeconds) * time.Second
}
