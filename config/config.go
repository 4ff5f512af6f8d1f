package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	FinnhubConfig  FinnhubConfig  `json:"finnhub"`
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig    RedisConfig    `json:"redis"`
	AlertsConfig   AlertsConfig   `json:"alerts"`
	RefreshConfig  RefreshConfig  `json:"refresh"`
	SMTPConfig     SMTPConfig     `json:"smtp"`
	ServerConfig   ServerConfig   `json:"server"`
	LoggingConfig  LoggingConfig  `json:"logging"`
}

// FinnhubConfig holds upstream market data vendor configuration
type FinnhubConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	WSURL   string `json:"ws_url"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// AlertsConfig holds alert evaluation configuration
type AlertsConfig struct {
	CheckInterval    time.Duration `json:"check_interval"`     // Seconds between evaluation ticks
	MaxAlertsPerUser int           `json:"max_alerts_per_user"`
}

// RefreshConfig holds the daily previous-close refresh configuration
type RefreshConfig struct {
	DailyTime string `json:"daily_time"` // "HH:MM" wall clock
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
	FromName string `json:"from_name"`
}

// ServerConfig holds the status HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.FinnhubConfig.APIKey == "" {
		return fmt.Errorf("FINNHUB_API_KEY is required")
	}
	if _, _, err := ParseDailyTime(c.RefreshConfig.DailyTime); err != nil {
		return fmt.Errorf("invalid DAILY_REFRESH_TIME %q: %w", c.RefreshConfig.DailyTime, err)
	}
	if c.AlertsConfig.CheckInterval < time.Second {
		return fmt.Errorf("ALERT_CHECK_INTERVAL must be at least 1 second")
	}
	return nil
}

// ParseDailyTime parses an "HH:MM" wall clock string.
func ParseDailyTime(s string) (hour, minute int, err error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM: %w", err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("out of range")
	}
	return h, m, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Finnhub config
	cfg.FinnhubConfig.APIKey = getEnvOrDefault("FINNHUB_API_KEY", cfg.FinnhubConfig.APIKey)
	cfg.FinnhubConfig.BaseURL = getEnvOrDefault("FINNHUB_BASE_URL", cfg.FinnhubConfig.BaseURL)
	if cfg.FinnhubConfig.BaseURL == "" {
		cfg.FinnhubConfig.BaseURL = "https://finnhub.io/api/v1"
	}
	cfg.FinnhubConfig.WSURL = getEnvOrDefault("FINNHUB_WS_URL", cfg.FinnhubConfig.WSURL)
	if cfg.FinnhubConfig.WSURL == "" {
		cfg.FinnhubConfig.WSURL = "wss://ws.finnhub.io"
	}

	// Database config
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultStr(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", defaultStr(cfg.DatabaseConfig.User, "postgres"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", defaultStr(cfg.DatabaseConfig.Database, "stockalerts"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", defaultStr(cfg.DatabaseConfig.SSLMode, "disable"))

	// Redis config
	cfg.RedisConfig.Host = getEnvOrDefault("REDIS_HOST", defaultStr(cfg.RedisConfig.Host, "localhost"))
	cfg.RedisConfig.Port = getEnvIntOrDefault("REDIS_PORT", defaultInt(cfg.RedisConfig.Port, 6379))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", defaultInt(cfg.RedisConfig.PoolSize, 10))

	// Alerts config (interval env is in seconds, matching the deployment contract)
	checkSecs := getEnvIntOrDefault("ALERT_CHECK_INTERVAL", defaultInt(int(cfg.AlertsConfig.CheckInterval/time.Second), 60))
	cfg.AlertsConfig.CheckInterval = time.Duration(checkSecs) * time.Second
	cfg.AlertsConfig.MaxAlertsPerUser = getEnvIntOrDefault("MAX_ALERTS_PER_USER", defaultInt(cfg.AlertsConfig.MaxAlertsPerUser, 50))

	// Refresh config
	cfg.RefreshConfig.DailyTime = getEnvOrDefault("DAILY_REFRESH_TIME", defaultStr(cfg.RefreshConfig.DailyTime, "06:00"))

	// SMTP config
	cfg.SMTPConfig.Host = getEnvOrDefault("SMTP_HOST", cfg.SMTPConfig.Host)
	cfg.SMTPConfig.Port = getEnvOrDefault("SMTP_PORT", defaultStr(cfg.SMTPConfig.Port, "587"))
	cfg.SMTPConfig.Username = getEnvOrDefault("SMTP_USERNAME", cfg.SMTPConfig.Username)
	cfg.SMTPConfig.Password = getEnvOrDefault("SMTP_PASSWORD", cfg.SMTPConfig.Password)
	cfg.SMTPConfig.From = getEnvOrDefault("SMTP_FROM", cfg.SMTPConfig.From)
	cfg.SMTPConfig.FromName = getEnvOrDefault("SMTP_FROM_NAME", defaultStr(cfg.SMTPConfig.FromName, "Stock Alerts"))

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", defaultInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", defaultStr(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", defaultStr(cfg.ServerConfig.AllowedOrigins, "*"))
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", defaultInt(cfg.ServerConfig.ShutdownTimeout, 10))

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultStr(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", defaultStr(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func defaultStr(current, fallback string) string {
	if current != "" {
		return current
	}
	return fallback
}

func defaultInt(current, fallback int) int {
	if current != 0 {
		return current
	}
	return fallback
}
