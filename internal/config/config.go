package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const devSecretKey = "dev-secret-key-change-in-production"

// Config keeps runtime settings for the API server, the bot and background jobs.
type Config struct {
	HTTPAddr       string
	DatabaseURL    string
	SecretKey      string
	AccessTokenTTL time.Duration
	TelegramToken  string
	DigestInterval time.Duration
	OpenAIBaseURL  string
	RedisAddr      string
	LoginRateLimit int
	AllowedOrigins []string
	SeedDemo       bool
}

// Load reads configuration from an optional .env file and environment
// variables with sane defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	env := func(key string) string { return strings.TrimSpace(getenv(key)) }

	cfg := Config{
		HTTPAddr:       env("HTTP_ADDR"),
		DatabaseURL:    databaseURL(env),
		SecretKey:      env("SECRET_KEY"),
		AccessTokenTTL: time.Duration(parsePositiveInt(env("ACCESS_TOKEN_EXPIRE_MINUTES"), 30)) * time.Minute,
		TelegramToken:  env("TELEGRAM_TOKEN"),
		DigestInterval: parseInterval(env("DIGEST_INTERVAL_HOURS")),
		OpenAIBaseURL:  strings.TrimRight(env("OPENAI_BASE_URL"), "/"),
		RedisAddr:      env("REDIS_ADDR"),
		LoginRateLimit: parsePositiveInt(env("LOGIN_RATE_LIMIT"), 10),
		AllowedOrigins: allowedOrigins(env("FRONTEND_URL"), env("ALB_DNS_NAME")),
		SeedDemo:       parseBool(env("SEED_DEMO"), true),
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8000"
	}
	if cfg.OpenAIBaseURL == "" {
		cfg.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if cfg.DigestInterval == 0 {
		cfg.DigestInterval = 5 * time.Hour
	}

	if cfg.SecretKey == "" {
		if !cfg.SeedDemo {
			return cfg, fmt.Errorf("SECRET_KEY is required")
		}
		log.Println("[warn] SECRET_KEY is not set, using the development key")
		cfg.SecretKey = devSecretKey
	}

	return cfg, nil
}

// databaseURL prefers discrete DB_* credentials, then DATABASE_URL, then a
// local SQLite file.
func databaseURL(env func(string) string) string {
	user, pass, host, name := env("DB_USERNAME"), env("DB_PASSWORD"), env("DB_HOST"), env("DB_NAME")
	if user != "" && pass != "" && host != "" && name != "" {
		port := "5432"
		if h, p, err := net.SplitHostPort(host); err == nil {
			host, port = h, p
		}
		u := url.URL{
			Scheme: "postgresql",
			User:   url.UserPassword(user, pass),
			Host:   net.JoinHostPort(host, port),
			Path:   "/" + name,
		}
		return u.String()
	}
	if dsn := env("DATABASE_URL"); dsn != "" {
		return strings.TrimPrefix(dsn, "sqlite:///")
	}
	return "smart_todos.db"
}

func allowedOrigins(frontendURL, albDNS string) []string {
	origins := []string{"http://localhost:3000", "http://localhost:5173"}
	if frontendURL != "" {
		origins = append(origins, frontendURL)
	}
	if albDNS != "" {
		origins = append(origins, "http://"+albDNS, "https://"+albDNS)
	}
	return origins
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}

func parsePositiveInt(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func parseBool(raw string, def bool) bool {
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}
