// Package config loads the weatherdash server configuration from server.yml
// with environment overrides.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Weather   WeatherConfig   `yaml:"weather"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`

	// path of the file this config was read from, empty for defaults
	path string
}

// ServerConfig holds listener and HTTP surface settings
type ServerConfig struct {
	Address        string   `yaml:"address" env:"WEATHERDASH_ADDRESS"`
	Port           int      `yaml:"port" env:"PORT"`
	Mode           string   `yaml:"mode" env:"MODE"`
	TrustedProxies []string `yaml:"trusted_proxies" env:"WEATHERDASH_TRUSTED_PROXIES" envSeparator:","`
	CORSOrigins    []string `yaml:"cors_origins" env:"WEATHERDASH_CORS_ORIGINS" envSeparator:","`
	// RequireAuth gates /weather and /forecast behind a session
	RequireAuth bool `yaml:"require_auth" env:"WEATHERDASH_REQUIRE_AUTH"`
	// AlertToken, when set, must be presented as a bearer token on POST /alerts
	AlertToken string `yaml:"alert_token" env:"WEATHERDASH_ALERT_TOKEN"`
	// AdminEmails may use the scheduler API; empty means nobody can
	AdminEmails []string `yaml:"admin_emails" env:"WEATHERDASH_ADMIN_EMAILS" envSeparator:","`
}

// WeatherConfig configures the OpenWeather upstream and request limits
type WeatherConfig struct {
	APIKey      string        `yaml:"api_key" env:"WEATHER_API_KEY"`
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	ForecastURL string        `yaml:"forecast_url" env:"FORECAST_URL"`
	Units       string        `yaml:"units" env:"WEATHERDASH_UNITS"`
	Timeout     time.Duration `yaml:"timeout" env:"WEATHERDASH_UPSTREAM_TIMEOUT"`
	CacheTTL    time.Duration `yaml:"cache_ttl" env:"WEATHERDASH_CACHE_TTL"`
	MaxCities   int           `yaml:"max_cities_per_request" env:"WEATHERDASH_MAX_CITIES"`
	Concurrency int           `yaml:"concurrency" env:"WEATHERDASH_CONCURRENCY"`
	Cities      []string      `yaml:"cities" env:"WEATHERDASH_CITIES" envSeparator:","`
}

// DatabaseConfig selects and configures the SQL backend
type DatabaseConfig struct {
	// sqlite, postgres, mysql, mssql
	Type     string `yaml:"type" env:"DB_TYPE"`
	Path     string `yaml:"path" env:"DB_PATH"`
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	Name     string `yaml:"name" env:"DB_NAME"`
	User     string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	SSLMode  string `yaml:"sslmode" env:"DB_SSLMODE"`
}

// CacheConfig configures the optional Redis/Valkey tier
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled" env:"CACHE_ENABLED"`
	Addr     string `yaml:"addr" env:"CACHE_ADDR"`
	Password string `yaml:"password" env:"CACHE_PASSWORD"`
	DB       int    `yaml:"db" env:"CACHE_DB"`
}

// AuthConfig configures accounts and session tokens
type AuthConfig struct {
	JWTSecret         string        `yaml:"jwt_secret" env:"WEATHERDASH_JWT_SECRET"`
	SessionTTL        time.Duration `yaml:"session_ttl" env:"WEATHERDASH_SESSION_TTL"`
	CookieName        string        `yaml:"cookie_name" env:"WEATHERDASH_COOKIE_NAME"`
	MinPasswordLength int           `yaml:"min_password_length" env:"WEATHERDASH_MIN_PASSWORD_LENGTH"`
}

// SchedulerConfig holds cron expressions for background tasks
type SchedulerConfig struct {
	TrackedCities    []string      `yaml:"tracked_cities" env:"WEATHERDASH_TRACKED_CITIES" envSeparator:","`
	RefreshSchedule  string        `yaml:"refresh_schedule" env:"WEATHERDASH_REFRESH_SCHEDULE"`
	SessionCleanup   string        `yaml:"session_cleanup_schedule"`
	HistoryRetention time.Duration `yaml:"history_retention" env:"WEATHERDASH_HISTORY_RETENTION"`
	HistoryPrune     string        `yaml:"history_prune_schedule"`
}

// LoggingConfig controls where log files are written
type LoggingConfig struct {
	Dir   string `yaml:"dir" env:"LOG_DIR"`
	Debug bool   `yaml:"debug" env:"DEBUG"`
}

// DefaultCities is the selectable city list shown by the dashboard
var DefaultCities = []string{"New York", "London", "Mumbai", "Tokyo", "Sydney", "Dubai"}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        "0.0.0.0",
			Port:           5000,
			Mode:           "production",
			TrustedProxies: []string{"127.0.0.1", "::1"},
			CORSOrigins:    []string{"*"},
		},
		Weather: WeatherConfig{
			BaseURL:     "https://api.openweathermap.org/data/2.5/weather",
			ForecastURL: "https://api.openweathermap.org/data/2.5/forecast",
			Units:       "metric",
			Timeout:     10 * time.Second,
			CacheTTL:    10 * time.Minute,
			MaxCities:   10,
			Concurrency: 4,
			Cities:      append([]string(nil), DefaultCities...),
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: "weatherdash.db",
		},
		Cache: CacheConfig{
			Addr: "localhost:6379",
		},
		Auth: AuthConfig{
			SessionTTL:        7 * 24 * time.Hour,
			CookieName:        "weatherdash_session",
			MinPasswordLength: 8,
		},
		Scheduler: SchedulerConfig{
			RefreshSchedule:  "@every 10m",
			SessionCleanup:   "@hourly",
			HistoryRetention: 30 * 24 * time.Hour,
			HistoryPrune:     "0 3 * * *",
		},
		Logging: LoggingConfig{
			Dir: "logs",
		},
	}
}

// Load reads the config file at path (or searches the default locations when
// path is empty), then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		cfg.path = path
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.Weather.Cities = CleanCities(cfg.Weather.Cities)
	cfg.Scheduler.TrackedCities = CleanCities(cfg.Scheduler.TrackedCities)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Path returns the file the configuration was loaded from
func (c *Config) Path() string {
	return c.path
}

// IsDevelopment reports whether the configured mode is development
func (c *Config) IsDevelopment() bool {
	m := strings.ToLower(strings.TrimSpace(c.Server.Mode))
	return m == "development" || m == "dev"
}

// ListenAddr returns host:port for the HTTP listener
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// Validate checks the configuration and fills derived values
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Weather.BaseURL == "" || c.Weather.ForecastURL == "" {
		errs = append(errs, errors.New("weather.base_url and weather.forecast_url are required"))
	}
	if c.Weather.APIKey == "" && !c.IsDevelopment() {
		errs = append(errs, errors.New("weather.api_key (WEATHER_API_KEY) is required in production"))
	}
	if c.Weather.CacheTTL <= 0 {
		errs = append(errs, errors.New("weather.cache_ttl must be positive"))
	}
	if c.Weather.Timeout <= 0 {
		errs = append(errs, errors.New("weather.timeout must be positive"))
	}
	if c.Weather.MaxCities <= 0 {
		errs = append(errs, errors.New("weather.max_cities_per_request must be positive"))
	}
	if c.Weather.Concurrency <= 0 {
		errs = append(errs, errors.New("weather.concurrency must be positive"))
	}
	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, errors.New("auth.session_ttl must be positive"))
	}

	switch strings.ToLower(c.Database.Type) {
	case "sqlite", "postgres", "postgresql", "mysql", "mariadb", "mssql", "sqlserver":
	default:
		errs = append(errs, fmt.Errorf("unsupported database type %q", c.Database.Type))
	}

	if len(c.Auth.JWTSecret) < 32 {
		if c.IsDevelopment() && c.Auth.JWTSecret == "" {
			secret, err := randomSecret()
			if err != nil {
				errs = append(errs, err)
			}
			c.Auth.JWTSecret = secret
		} else {
			errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes"))
		}
	}

	return errors.Join(errs...)
}

// CleanCities trims names, drops empties and removes case-insensitive
// duplicates while keeping the first spelling and order.
func CleanCities(cities []string) []string {
	seen := make(map[string]bool, len(cities))
	out := make([]string, 0, len(cities))
	for _, city := range cities {
		city = strings.TrimSpace(city)
		if city == "" {
			continue
		}
		key := strings.ToLower(city)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, city)
	}
	return out
}

// IsTruthy reports whether s is a common "on" value
func IsTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on", "enable", "enabled":
		return true
	}
	return false
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate jwt secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// findConfigFile searches for server.yml in common locations
func findConfigFile() string {
	searchPaths := []string{"server.yml"}
	if cwd, err := os.Getwd(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(cwd, "..", "server.yml"))
	}
	searchPaths = append(searchPaths,
		"/etc/weatherdash/server.yml",
		"/opt/weatherdash/server.yml",
	)

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}
