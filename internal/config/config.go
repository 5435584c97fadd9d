package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	Environment           string
	LogLevel              string
	LogFormat             string
	DatabaseURL           string
	DatabaseAutoMigrate   bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	ReportCacheTTLSeconds int
	AuthSecret            string
	AuthIssuer            string
	AuthAudience          string
	DevShopID             string
	DevShopName           string
}

// Load reads the process environment, first merging a .env file from the
// working directory when one exists. Variables already set win.
func Load() Config {
	_ = godotenv.Load()

	redisDB, err := cast.ToIntE(getEnv("REDIS_DB", "0"))
	if err != nil || redisDB < 0 {
		redisDB = 0
	}
	ttl, err := cast.ToIntE(getEnv("REPORT_CACHE_TTL_SECONDS", "30"))
	if err != nil || ttl < 1 {
		ttl = 30
	}
	autoMigrate, err := cast.ToBoolE(getEnv("DATABASE_AUTO_MIGRATE", "true"))
	if err != nil {
		autoMigrate = true
	}

	return Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		Environment:           getEnv("APP_ENV", "development"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "json"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		DatabaseAutoMigrate:   autoMigrate,
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		ReportCacheTTLSeconds: ttl,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AuthIssuer:            getEnv("AUTH_ISSUER", "barber-app"),
		AuthAudience:          getEnv("AUTH_AUDIENCE", "barber-app"),
		DevShopID:             strings.TrimSpace(os.Getenv("DEV_SHOP_ID")),
		DevShopName:           getEnv("DEV_SHOP_NAME", "Demo Barber Shop"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
