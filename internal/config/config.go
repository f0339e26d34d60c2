package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Planner  PlannerConfig  `toml:"planner"`
	Logging  LoggingConfig  `toml:"logging"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

type PlannerConfig struct {
	// WindowDays sizes the capacity window used when no sprint bounds apply.
	WindowDays int `toml:"window_days"`
	// HistoryLimit caps rebalance history listings when no limit is requested.
	HistoryLimit int `toml:"history_limit"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Planner: PlannerConfig{
			WindowDays:   14,
			HistoryLimit: 20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	if strings.TrimSpace(c.Server.HTTPBind) == "" {
		return errors.New("server.http_bind is required")
	}
	apiEndpoint := "/" + strings.Trim(strings.TrimSpace(c.Server.APIEndpoint), "/")
	mcpEndpoint := "/" + strings.Trim(strings.TrimSpace(c.Server.MCPEndpoint), "/")
	if apiEndpoint == "/" {
		return errors.New("server.api_endpoint is required")
	}
	if mcpEndpoint == "/" {
		return errors.New("server.mcp_endpoint is required")
	}
	if apiEndpoint == mcpEndpoint {
		return fmt.Errorf("server endpoints must differ, both are %q", apiEndpoint)
	}

	if c.Planner.WindowDays <= 0 {
		return fmt.Errorf("planner.window_days must be > 0, got %d", c.Planner.WindowDays)
	}
	if c.Planner.HistoryLimit <= 0 {
		return fmt.Errorf("planner.history_limit must be > 0, got %d", c.Planner.HistoryLimit)
	}

	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	return nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
