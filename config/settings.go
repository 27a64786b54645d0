package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Settings is everything the process reads from the environment.
type Settings struct {
	Port string
	Env  string

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	RedisAddress string

	LogLevel           string
	CorsAllowedOrigins []string

	RateLimitEnabled     bool
	RateLimitMaxRequests int64
	RateLimitWindow      time.Duration

	MealRateCacheEnabled bool
	MealRateCacheTTL     time.Duration

	BalanceCheckCron string
	SkipMigrations   bool
	MessTimezone     string
}

// LoadSettings loads .env (when present) and reads the process settings.
func LoadSettings() Settings {
	// Load env from .env
	_ = godotenv.Load()

	s := Settings{
		Port:       stringFromEnv("PORT", "8080"),
		Env:        strings.TrimSpace(os.Getenv("GO_ENV")),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBHost:     stringFromEnv("DB_HOST", "localhost"),
		DBPort:     stringFromEnv("DB_PORT", "3306"),
		DBName:     stringFromEnv("DB_NAME", "diningManagementDB"),

		DBMaxOpenConns:    intFromEnv("DB_MAX_OPEN_CONNS", 50),
		DBMaxIdleConns:    intFromEnv("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifetime: time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
		DBConnMaxIdleTime: time.Duration(intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second,

		RedisAddress: os.Getenv("REDIS_ADDRESS"),

		LogLevel:           stringFromEnv("LOG_LEVEL", "info"),
		CorsAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),

		RateLimitEnabled:     boolFromEnv("RATE_LIMIT_ENABLED"),
		RateLimitMaxRequests: int64(intFromEnv("RATE_LIMIT_MAX_REQUESTS", 600)),
		RateLimitWindow:      time.Duration(intFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,

		MealRateCacheEnabled: boolFromEnv("ENABLE_MEAL_RATE_CACHE"),
		MealRateCacheTTL:     time.Duration(intFromEnv("MEAL_RATE_CACHE_TTL_SECONDS", 60)) * time.Second,

		BalanceCheckCron: stringFromEnv("BALANCE_CHECK_CRON", "0 3 * * *"),
		SkipMigrations:   boolFromEnv("SKIP_MIGRATIONS"),
		MessTimezone:     stringFromEnv("MESS_TIMEZONE", "Asia/Dhaka"),
	}
	return s
}

func (s Settings) IsProduction() bool {
	return strings.EqualFold(s.Env, "production")
}

func stringFromEnv(key string, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func splitList(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
