package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries all runtime settings. Values come from the environment,
// optionally preloaded from a .env file.
type Config struct {
	// HTTP
	Addr   string
	Domain string // public domain used when building email links

	// Stores
	DatabaseURL string // Postgres DSN; empty runs the in-memory store
	RedisURL    string // revocation blocklist and mail queue; empty runs in-memory

	// Token signing
	JWTSecret         string
	JWTAlgorithm      string // HS256, HS384 or HS512
	AccessTokenTTL    time.Duration
	AccessDefaultTTL  time.Duration
	RefreshTokenTTL   time.Duration
	ActionTokenMaxAge time.Duration

	// Inference sidecar
	ModelURL        string
	ModelHealthAddr string // gRPC health endpoint of the sidecar, optional

	// SMTP
	MailServer   string
	MailPort     int
	MailUsername string
	MailPassword string
	MailFrom     string
	MailFromName string

	// Bootstrap admin account
	AdminFirstName string
	AdminLastName  string
	AdminUsername  string
	AdminEmail     string
	AdminPassword  string
}

// Load reads configuration from the environment. A .env file next to the
// binary is honored when present but is never required.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:              getEnv("ADDR", ":8080"),
		Domain:            getEnv("DOMAIN", "localhost:8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		JWTAlgorithm:      getEnv("JWT_ALGORITHM", "HS256"),
		ModelURL:          os.Getenv("MODEL_URL"),
		ModelHealthAddr:   os.Getenv("MODEL_HEALTH_ADDR"),
		MailServer:        os.Getenv("MAIL_SERVER"),
		MailUsername:      os.Getenv("MAIL_USERNAME"),
		MailPassword:      os.Getenv("MAIL_PASSWORD"),
		MailFrom:          os.Getenv("MAIL_FROM"),
		MailFromName:      os.Getenv("MAIL_FROM_NAME"),
		AdminFirstName:    getEnv("FIRST_NAME", "Admin"),
		AdminLastName:     getEnv("LAST_NAME", "Admin"),
		AdminUsername:     os.Getenv("ADMIN_NAME"),
		AdminEmail:        os.Getenv("EMAIL"),
		AdminPassword:     os.Getenv("PASSWORD"),
		ActionTokenMaxAge: time.Hour,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: JWT_SECRET is required")
	}
	switch cfg.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return Config{}, fmt.Errorf("config: unsupported JWT_ALGORITHM %q", cfg.JWTAlgorithm)
	}

	accessMinutes, err := getEnvInt("ACCESS_TOKEN_EXPIRES_MINUTES", 15)
	if err != nil {
		return Config{}, err
	}
	defaultMinutes, err := getEnvInt("ACCESS_TOKEN_EXPIRES_DEFAULT", 15)
	if err != nil {
		return Config{}, err
	}
	refreshDays, err := getEnvInt("REFRESH_TOKEN_EXPIRES_DAYS_DEFAULT", 2)
	if err != nil {
		return Config{}, err
	}
	cfg.AccessTokenTTL = time.Duration(accessMinutes) * time.Minute
	cfg.AccessDefaultTTL = time.Duration(defaultMinutes) * time.Minute
	cfg.RefreshTokenTTL = time.Duration(refreshDays) * 24 * time.Hour

	cfg.MailPort, err = getEnvInt("MAIL_PORT", 587)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return v, nil
}
