package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env  string
	Port int

	// upstream collaborators
	ProductAPIURL   string
	ProductsPath    string
	AuthAPIURL      string
	LoginPath       string
	UpstreamTimeout time.Duration

	BreakerFailureThreshold int
	BreakerCooldown         time.Duration

	// sessions
	SessionSecret string
	SessionTTL    time.Duration
	AdminRole     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// display
	DateTimeFormat string
	DisplayTZ      string
	DeletePolicy   string

	CORSAllowedOrigins []string
	LoginRateLimit     int
	LoginRateWindow    time.Duration

	OTLPEndpoint string
	ServiceName  string
}

func Load() Config {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	return Config{
		Env:  getEnv("APP_ENV", "dev"),
		Port: getEnvInt("PORT", 8080),

		ProductAPIURL:   getEnv("PRODUCT_API_URL", "http://localhost:8800"),
		ProductsPath:    getEnv("PRODUCT_API_PATH", "/products"),
		AuthAPIURL:      getEnv("AUTH_API_URL", "http://localhost:8800"),
		LoginPath:       getEnv("AUTH_API_LOGIN_PATH", "/login"),
		UpstreamTimeout: getEnvDuration("UPSTREAM_TIMEOUT", 5*time.Second),

		BreakerFailureThreshold: getEnvInt("UPSTREAM_BREAKER_FAILURES", 5),
		BreakerCooldown:         getEnvDuration("UPSTREAM_BREAKER_COOLDOWN", 15*time.Second),

		SessionSecret: getEnv("SESSION_SECRET", "dev-session-secret"),
		SessionTTL:    getEnvDuration("SESSION_TTL", 12*time.Hour),
		AdminRole:     getEnv("ADMIN_ROLE", "admin"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		DateTimeFormat: getEnv("DATE_TIME_FORMAT", "2006-01-02 15:04:05"),
		DisplayTZ:      getEnv("DISPLAY_TZ", "UTC"),
		DeletePolicy:   getEnv("DELETE_POLICY", "revert"),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		LoginRateLimit:     getEnvInt("LOGIN_RATE_LIMIT", 10),
		LoginRateWindow:    getEnvDuration("LOGIN_RATE_WINDOW", time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  getEnv("OTEL_SERVICE_NAME", "shopadmin"),
	}
}

// Location resolves DisplayTZ, falling back to UTC when the zone is unknown.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %s=%q is not an int, using %d\n", key, v, fallback)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %s=%q is not a duration, using %s\n", key, v, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
