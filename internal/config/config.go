package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds user preferences
type Config struct {
	DefaultLocation string `yaml:"default_location" json:"default_location"` // on_site or remote
	ConfirmDelete   bool   `yaml:"confirm_delete" json:"confirm_delete"`     // Require confirmation for delete

	// Sync tuning
	PollSeconds     int `yaml:"poll_seconds" json:"poll_seconds"`         // Fallback poll interval
	DebounceSeconds int `yaml:"debounce_seconds" json:"debounce_seconds"` // Quiet period after a local change

	// Logging configuration
	LogLevel   string `yaml:"log_level" json:"log_level"`     // Log level: DEBUG, INFO, WARN, ERROR
	LogFile    string `yaml:"log_file" json:"log_file"`       // Path to log file
	LogConsole bool   `yaml:"log_console" json:"log_console"` // Enable console logging
}

// DefaultConfig returns default settings
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	logPath := ""
	if home != "" {
		logPath = filepath.Join(home, ".fieldtrack", "logs", "fieldtrack.log")
	}

	return &Config{
		DefaultLocation: "on_site",
		ConfirmDelete:   true,
		PollSeconds:     getEnvInt("FIELDTRACK_POLL_SECONDS", 30),
		DebounceSeconds: getEnvInt("FIELDTRACK_DEBOUNCE_SECONDS", 5),
		LogLevel:        getEnv("FIELDTRACK_LOG_LEVEL", "INFO"),
		LogFile:         getEnv("FIELDTRACK_LOG_FILE", logPath),
		LogConsole:      getEnv("FIELDTRACK_LOG_CONSOLE", "false") == "true",
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

// Load loads config from ~/.fieldtrack/config.yaml
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(home, ".fieldtrack", "config.yaml")

	// Check if exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Return defaults if no config
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Save saves config to ~/.fieldtrack/config.yaml
func (c *Config) Save() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".fieldtrack")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
