package config

import (
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Config holds all configuration for the application.
type Config struct {
	AppEnv          string
	Port            int
	SourceURL       string
	DBPath          string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	CacheTTL        time.Duration
	RefreshInterval time.Duration
	LayoutFile      string
	CSVDelimiter    rune
	CORSOrigins     []string
}

// LoadFromEnv loads configuration from environment variables.
// An empty REDIS_ADDR or DB_PATH disables that component.
func LoadFromEnv() *Config {
	return &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		Port:            getEnvInt("PORT", 8080),
		SourceURL:       getEnv("SOURCE_URL", ""),
		DBPath:          lookupEnv("DB_PATH", "./data/dashboard.db"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		CacheTTL:        getEnvDuration("CACHE_TTL", 10*time.Minute),
		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 0),
		LayoutFile:      getEnv("LAYOUT_FILE", ""),
		CSVDelimiter:    getEnvRune("CSV_DELIMITER", ','),
		CORSOrigins:     splitList(getEnv("CORS_ORIGINS", "*")),
	}
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// NewLogger creates a new Zap logger based on the config.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// lookupEnv is getEnv that honours an explicitly empty value.
func lookupEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("90s", "5m") or plain seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvRune(key string, fallback rune) rune {
	raw := getEnv(key, "")
	if raw == `\t` || raw == "tab" {
		return '\t'
	}
	if utf8.RuneCountInString(raw) != 1 {
		return fallback
	}
	r, _ := utf8.DecodeRuneInString(raw)
	return r
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
