// File path: internal/jobs/config.go
package jobs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// StoreConfig controls the SQLite job store. Values are layered: JSON file
// (JOBS_DB_CONFIG_FILE), then environment, then defaults.
type StoreConfig struct {
	Path string `json:"path"`

	MaxOpenConns int `json:"max_open_conns"`
	MaxIdleConns int `json:"max_idle_conns"`

	BusyTimeout       time.Duration `json:"-"`
	BusyTimeoutString string        `json:"busy_timeout"`
}

func (c StoreConfig) Merge(override StoreConfig) StoreConfig {
	result := c
	if strings.TrimSpace(override.Path) != "" {
		result.Path = strings.TrimSpace(override.Path)
	}
	if override.MaxOpenConns > 0 {
		result.MaxOpenConns = override.MaxOpenConns
	}
	if override.MaxIdleConns > 0 {
		result.MaxIdleConns = override.MaxIdleConns
	}
	if override.BusyTimeout > 0 {
		result.BusyTimeout = override.BusyTimeout
	}
	if strings.TrimSpace(override.BusyTimeoutString) != "" {
		result.BusyTimeoutString = strings.TrimSpace(override.BusyTimeoutString)
	}
	return result
}

func LoadStoreConfig() (StoreConfig, error) {
	cfg := StoreConfig{}
	if path := strings.TrimSpace(os.Getenv("JOBS_DB_CONFIG_FILE")); path != "" {
		fileCfg, err := loadStoreConfigFile(path)
		if err != nil {
			return StoreConfig{}, err
		}
		cfg = cfg.Merge(fileCfg)
	}
	envCfg, err := loadStoreConfigEnv()
	if err != nil {
		return StoreConfig{}, err
	}
	cfg = cfg.Merge(envCfg)
	cfg.applyDefaults()
	return cfg, nil
}

func (c *StoreConfig) applyDefaults() {
	if strings.TrimSpace(c.Path) == "" {
		c.Path = "auditlens.db"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 8
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.BusyTimeout <= 0 {
		if c.BusyTimeoutString != "" {
			if parsed, err := time.ParseDuration(c.BusyTimeoutString); err == nil {
				c.BusyTimeout = parsed
			}
		}
		if c.BusyTimeout <= 0 {
			c.BusyTimeout = 5 * time.Second
		}
	}
}

func loadStoreConfigFile(path string) (StoreConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return StoreConfig{}, fmt.Errorf("read jobs db config: %w", err)
	}
	var cfg StoreConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return StoreConfig{}, fmt.Errorf("parse jobs db config: %w", err)
	}
	return cfg, nil
}

func loadStoreConfigEnv() (StoreConfig, error) {
	cfg := StoreConfig{}
	if path := strings.TrimSpace(os.Getenv("JOBS_DB_PATH")); path != "" {
		cfg.Path = path
	}
	if openConns := strings.TrimSpace(os.Getenv("JOBS_DB_MAX_OPEN_CONNS")); openConns != "" {
		value, err := strconv.Atoi(openConns)
		if err != nil {
			return StoreConfig{}, fmt.Errorf("parse JOBS_DB_MAX_OPEN_CONNS: %w", err)
		}
		if value > 0 {
			cfg.MaxOpenConns = value
		}
	}
	if idleConns := strings.TrimSpace(os.Getenv("JOBS_DB_MAX_IDLE_CONNS")); idleConns != "" {
		value, err := strconv.Atoi(idleConns)
		if err != nil {
			return StoreConfig{}, fmt.Errorf("parse JOBS_DB_MAX_IDLE_CONNS: %w", err)
		}
		if value > 0 {
			cfg.MaxIdleConns = value
		}
	}
	if busy := strings.TrimSpace(os.Getenv("JOBS_DB_BUSY_TIMEOUT")); busy != "" {
		cfg.BusyTimeoutString = busy
		if parsed, err := time.ParseDuration(busy); err == nil {
			cfg.BusyTimeout = parsed
		}
	}
	return cfg, nil
}
