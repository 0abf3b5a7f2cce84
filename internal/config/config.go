package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Galganeq/Expense-Tracker-API/internal/auth"
)

// Config holds process-wide settings read once at startup.
type Config struct {
	Port        string
	DBPath      string
	DatabaseURL string
	JWTSecret   []byte
	TokenTTL    time.Duration

	AdminUser     string
	AdminEmail    string
	AdminPassword string
}

// Load reads envFiles (default ".env") if present, then the environment.
// Variables already set in the environment win over the files.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{
		Port:          getenv("PORT", "8080"),
		DBPath:        getenv("DB_PATH", "expenses.db"),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		TokenTTL:      auth.DefaultTokenTTL,
		AdminUser:     strings.TrimSpace(os.Getenv("ADMIN_USER")),
		AdminEmail:    strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}

	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}
	cfg.JWTSecret = []byte(secret)

	if v := strings.TrimSpace(os.Getenv("TOKEN_TTL")); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			return nil, fmt.Errorf("TOKEN_TTL must be a positive duration, got %q", v)
		}
		cfg.TokenTTL = ttl
	}

	if cfg.AdminUser != "" {
		if cfg.AdminPassword == "" {
			return nil, errors.New("ADMIN_PASSWORD is required when ADMIN_USER is set")
		}
		if cfg.AdminEmail == "" {
			cfg.AdminEmail = cfg.AdminUser + "@localhost"
		}
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
