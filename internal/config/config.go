package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime configuration for the application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Auth     AuthConfig     `yaml:"auth"`
	EU       EUConfig       `yaml:"eu"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig configures the HTTP server runtime behavior.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig contains the database connection settings.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	UseMock         bool          `yaml:"use_mock"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuthConfig groups session settings.
type AuthConfig struct {
	Session SessionConfig `yaml:"session"`
}

// SessionConfig controls the session cookie.
type SessionConfig struct {
	Lifetime     time.Duration `yaml:"lifetime"`
	CookieName   string        `yaml:"cookie_name"`
	CookieDomain string        `yaml:"cookie_domain"`
	CookieSecure bool          `yaml:"cookie_secure"`
}

// EUConfig points at the EU reference datasets and controls how they are cached.
type EUConfig struct {
	AdditivesURL   string        `yaml:"additives_url"`
	FlavouringsURL string        `yaml:"flavourings_url"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	// FetchInterval is the minimum spacing between upstream requests.
	FetchInterval time.Duration `yaml:"fetch_interval"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

const (
	DefaultAdditivesURL   = "https://api.datalake.sante.service.ec.europa.eu/food-additives/food_additives_details?format=jsonl&api-version=v1.0"
	DefaultFlavouringsURL = "https://api.datalake.sante.service.ec.europa.eu/food-flavourings/food_flavourings_details?format=jsonl&api-version=v1.0"
	DefaultCacheTTL       = 24 * time.Hour
	DefaultFetchTimeout   = 30 * time.Second
	DefaultFetchInterval  = time.Second
)

// Load inspects the environment and builds a Config value. When CONFIG_FILE
// names a YAML document it is read first and environment variables override it.
func Load() (Config, error) {
	cfg := Config{}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		fileCfg, err := loadFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}

	cfg.Server = ServerConfig{
		Addr: firstNonEmpty(
			os.Getenv("SERVER_ADDR"),
			os.Getenv("ADDR"),
			cfg.Server.Addr,
			":8080",
		),
	}

	cfg.Database = DatabaseConfig{
		URL: firstNonEmpty(
			os.Getenv("DATABASE_URL"),
			os.Getenv("DB_URL"),
			cfg.Database.URL,
		),
		MaxIdleConns:    parseIntWithDefault(os.Getenv("DATABASE_MAX_IDLE_CONNS"), cfg.Database.MaxIdleConns),
		MaxOpenConns:    parseIntWithDefault(os.Getenv("DATABASE_MAX_OPEN_CONNS"), cfg.Database.MaxOpenConns),
		ConnMaxLifetime: parseDurationWithDefault(os.Getenv("DATABASE_CONN_MAX_LIFETIME"), cfg.Database.ConnMaxLifetime),
		ConnMaxIdleTime: parseDurationWithDefault(os.Getenv("DATABASE_CONN_MAX_IDLE_TIME"), cfg.Database.ConnMaxIdleTime),
		UseMock:         parseBoolWithDefault(os.Getenv("DATABASE_USE_MOCK"), cfg.Database.UseMock),
	}

	cfg.Logging = LoggingConfig{
		Level:  firstNonEmpty(os.Getenv("LOG_LEVEL"), cfg.Logging.Level, "info"),
		Format: firstNonEmpty(os.Getenv("LOG_FORMAT"), cfg.Logging.Format, "text"),
	}

	cfg.Auth.Session = SessionConfig{
		Lifetime:     parseDurationWithDefault(os.Getenv("SESSION_LIFETIME"), cfg.Auth.Session.Lifetime),
		CookieName:   firstNonEmpty(os.Getenv("SESSION_COOKIE_NAME"), cfg.Auth.Session.CookieName),
		CookieDomain: firstNonEmpty(os.Getenv("SESSION_COOKIE_DOMAIN"), cfg.Auth.Session.CookieDomain),
		CookieSecure: parseBoolWithDefault(os.Getenv("SESSION_COOKIE_SECURE"), cfg.Auth.Session.CookieSecure),
	}

	cfg.EU = EUConfig{
		AdditivesURL:   firstNonEmpty(os.Getenv("EU_ADDITIVES_URL"), cfg.EU.AdditivesURL, DefaultAdditivesURL),
		FlavouringsURL: firstNonEmpty(os.Getenv("EU_FLAVOURINGS_URL"), cfg.EU.FlavouringsURL, DefaultFlavouringsURL),
		CacheTTL:       parseDurationWithDefault(os.Getenv("EU_CACHE_TTL"), orDuration(cfg.EU.CacheTTL, DefaultCacheTTL)),
		FetchTimeout:   parseDurationWithDefault(os.Getenv("EU_FETCH_TIMEOUT"), orDuration(cfg.EU.FetchTimeout, DefaultFetchTimeout)),
		FetchInterval:  parseDurationWithDefault(os.Getenv("EU_FETCH_INTERVAL"), orDuration(cfg.EU.FetchInterval, DefaultFetchInterval)),
	}

	cfg.Metrics = MetricsConfig{
		Enabled: parseBoolWithDefault(os.Getenv("METRICS_ENABLED"), cfg.Metrics.Enabled),
		Path:    firstNonEmpty(os.Getenv("METRICS_PATH"), cfg.Metrics.Path, "/metrics"),
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return Config{}, fmt.Errorf("server address must not be empty")
	}
	if cfg.EU.CacheTTL <= 0 {
		return Config{}, fmt.Errorf("eu cache ttl must be positive")
	}
	if cfg.EU.FetchTimeout <= 0 {
		return Config{}, fmt.Errorf("eu fetch timeout must be positive")
	}

	return cfg, nil
}

func loadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func orDuration(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}

func parseIntWithDefault(value string, def int) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseDurationWithDefault(value string, def time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseBoolWithDefault(value string, def bool) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}
