package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	DBPath         string           `json:"db_path"`
	Port           int              `json:"port"`
	JWTSecret      string           `json:"jwt_secret"`
	JWTTTLHours    int              `json:"jwt_ttl_hours"`
	CORSAllowlist  []string         `json:"cors_allowlist"`
	LogConfig      logger.LogConfig `json:"log_config"`
	FileStore      FileStoreConfig  `json:"file_store"`
	DocumentSource DocumentSource   `json:"document_source"`
	AI             AIConfig         `json:"ai"`
	Overlay        OverlayConfig    `json:"overlay"`
	Render         RenderConfig     `json:"render"`
	Jobs           JobsConfig       `json:"jobs"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// DocumentSource locates base documents. When StoreKeyPrefix is set the file
// store is consulted first; BaseURL is the HTTP origin serving
// /data/documents/{id}.json.
type DocumentSource struct {
	BaseURL        string `json:"base_url"`
	StoreKeyPrefix string `json:"store_key_prefix"`
	CacheSize      int    `json:"cache_size"`
	CacheTTLMin    int    `json:"cache_ttl_min"`
}

type AIConfig struct {
	Provider      string      `json:"provider"`
	Model         string      `json:"model"`
	Data          interface{} `json:"data"`
	TimeoutSec    int         `json:"timeout_sec"`
	CacheSize     int         `json:"cache_size"`
	CacheTTLMin   int         `json:"cache_ttl_min"`
	MaxInputChars int         `json:"max_input_chars"`
}

type OverlayConfig struct {
	MaxTrackedDocuments int `json:"max_tracked_documents"`
	AutosaveDelayMS     int `json:"autosave_delay_ms"`
}

// RenderConfig carries the coarse selection-fallback constants. They are
// empirically tuned estimates, not contract values.
type RenderConfig struct {
	LineHeightPx     int `json:"line_height_px"`
	CharsPerLine     int `json:"chars_per_line"`
	ActionBarWidthPx int `json:"action_bar_width_px"`
}

type JobsConfig struct {
	OverlaySweepSpec string `json:"overlay_sweep_spec"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db_path is required")
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 72
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.DocumentSource.BaseURL == "" && cfg.DocumentSource.StoreKeyPrefix == "" {
		return nil, fmt.Errorf("document_source.base_url or document_source.store_key_prefix is required")
	}
	if cfg.DocumentSource.CacheSize == 0 {
		cfg.DocumentSource.CacheSize = 64
	}
	if cfg.DocumentSource.CacheTTLMin == 0 {
		cfg.DocumentSource.CacheTTLMin = 30
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "mock"
	}
	if cfg.AI.TimeoutSec == 0 {
		cfg.AI.TimeoutSec = 30
	}
	if cfg.AI.CacheSize == 0 {
		cfg.AI.CacheSize = 512
	}
	if cfg.AI.CacheTTLMin == 0 {
		cfg.AI.CacheTTLMin = 120
	}
	if cfg.AI.MaxInputChars == 0 {
		cfg.AI.MaxInputChars = 24000
	}
	if cfg.Overlay.MaxTrackedDocuments == 0 {
		cfg.Overlay.MaxTrackedDocuments = 50
	}
	if cfg.Overlay.AutosaveDelayMS == 0 {
		cfg.Overlay.AutosaveDelayMS = 1500
	}
	if cfg.Render.LineHeightPx == 0 {
		cfg.Render.LineHeightPx = 24
	}
	if cfg.Render.CharsPerLine == 0 {
		cfg.Render.CharsPerLine = 80
	}
	if cfg.Render.ActionBarWidthPx == 0 {
		cfg.Render.ActionBarWidthPx = 320
	}
	if cfg.Jobs.OverlaySweepSpec == "" {
		cfg.Jobs.OverlaySweepSpec = "0 3 * * *"
	}
	return &cfg, nil
}
