package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	BaseURL   string
	SearchURL string
	UserAgent string

	MinDelay   time.Duration
	MaxDelay   time.Duration
	MaxRetries int

	MaxPages       int
	MaxConcurrency int
	EnrichDetails  bool
	FetchPhones    bool
	SaveNewOnly    bool
	ResetCache     bool

	CachePath string
	ExportDir string
	LogLevel  string

	PostgresEnabled  bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		BaseURL:   getEnv("BASE_URL", "https://www.olx.ua"),
		SearchURL: getEnv("SEARCH_URL", "https://www.olx.ua/uk/nedvizhimost/kvartiry/dolgosrochnaya-arenda-kvartir/dnepr/"),
		UserAgent: getEnv("USER_AGENT", "Mozilla/5.0 (X11; Linux x86_64; rv:143.0) Gecko/20100101 Firefox/143.0"),

		MinDelay:   getEnvSeconds("MIN_DELAY", 1),
		MaxDelay:   getEnvSeconds("MAX_DELAY", 3),
		MaxRetries: getEnvInt("MAX_RETRIES", 3),

		MaxPages:       getEnvInt("MAX_PAGES", 0), // 0 = walk until exhaustion
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 5),
		EnrichDetails:  getEnvBool("ENRICH_DETAILS", true),
		FetchPhones:    getEnvBool("FETCH_PHONES", false),
		SaveNewOnly:    getEnvBool("SAVE_NEW_ONLY", false),
		ResetCache:     getEnvBool("RESET_CACHE", false),

		CachePath: getEnv("CACHE_PATH", "./cache/apartments_cache.csv"),
		ExportDir: getEnv("EXPORT_DIR", "./data"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),

		PostgresEnabled:  getEnvBool("POSTGRES_ENABLED", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "apartments_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback float64) time.Duration {
	secs := fallback
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			secs = f
		}
	}
	return time.Duration(secs * float64(time.Second))
}
