package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultCookieSecret signs client cookies when AUTH_COOKIE_SECRET is unset.
// It is public; deployments must override it.
const DefaultCookieSecret = "change-me-in-production-32-bytes"

type Config struct {
	HTTP            HTTPConfig
	Storage         StorageConfig
	Auth            AuthConfig
	Guard           GuardConfig
	Log             LogConfig
	FrontendDistDir string
	AuditLogFile    string
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type StorageConfig struct {
	Driver      string
	StateFile   string
	SQLitePath  string
	DatabaseURL string
}

type AuthConfig struct {
	PasswordScheme string
	BcryptCost     int
	CookieName     string
	CookieSecret   string
	CookieSecure   bool
	CookieMaxAge   time.Duration
}

// UsesDefaultSecret reports whether cookies are signed with the public
// default secret.
func (a AuthConfig) UsesDefaultSecret() bool {
	return a.CookieSecret == DefaultCookieSecret
}

type GuardConfig struct {
	LoginPath      string
	ProtectedPaths []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			ReadTimeout:     time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SEC", 10)) * time.Second,
			WriteTimeout:    time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SEC", 15)) * time.Second,
			ShutdownTimeout: time.Duration(getEnvInt("HTTP_SHUTDOWN_TIMEOUT_SEC", 20)) * time.Second,
		},
		Storage: StorageConfig{
			Driver:      strings.ToLower(getEnv("STORAGE_DRIVER", "file")),
			StateFile:   getEnv("STORAGE_STATE_FILE", "./data/sm_storage.json"),
			SQLitePath:  getEnv("STORAGE_SQLITE_PATH", "./data/sm_storage.db"),
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
		Auth: AuthConfig{
			PasswordScheme: strings.ToLower(getEnv("AUTH_PASSWORD_SCHEME", "plain")),
			BcryptCost:     getEnvInt("AUTH_BCRYPT_COST", 0),
			CookieName:     getEnv("AUTH_COOKIE_NAME", "sm_client"),
			CookieSecret:   getEnv("AUTH_COOKIE_SECRET", DefaultCookieSecret),
			CookieSecure:   getEnvBool("AUTH_COOKIE_SECURE", false),
			CookieMaxAge:   time.Duration(getEnvInt("AUTH_COOKIE_MAX_AGE_SEC", 30*24*3600)) * time.Second,
		},
		Guard: GuardConfig{
			LoginPath:      getEnv("GUARD_LOGIN_PATH", "/login"),
			ProtectedPaths: getEnvList("GUARD_PROTECTED_PATHS", []string{"/libraries", "/account", "/libraries/*", "/papers/*"}),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		FrontendDistDir: getEnv("FRONTEND_DIST_DIR", "./web/dist"),
		AuditLogFile:    getEnv("AUDIT_LOG_FILE", "./data/audit.log"),
	}

	if cfg.HTTP.Addr == "" {
		return Config{}, fmt.Errorf("HTTP_ADDR must not be empty")
	}
	switch cfg.Storage.Driver {
	case "memory":
	case "file":
		if cfg.Storage.StateFile == "" {
			return Config{}, fmt.Errorf("STORAGE_STATE_FILE must not be empty")
		}
	case "sqlite":
		if cfg.Storage.SQLitePath == "" {
			return Config{}, fmt.Errorf("STORAGE_SQLITE_PATH must not be empty")
		}
	case "postgres":
		if cfg.Storage.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER=postgres")
		}
	default:
		return Config{}, fmt.Errorf("STORAGE_DRIVER must be one of memory, file, sqlite, postgres")
	}
	if cfg.Auth.PasswordScheme != "plain" && cfg.Auth.PasswordScheme != "bcrypt" {
		return Config{}, fmt.Errorf("AUTH_PASSWORD_SCHEME must be plain or bcrypt")
	}
	if cfg.Auth.CookieName == "" {
		return Config{}, fmt.Errorf("AUTH_COOKIE_NAME must not be empty")
	}
	if len(cfg.Auth.CookieSecret) < 32 {
		return Config{}, fmt.Errorf("AUTH_COOKIE_SECRET must be at least 32 bytes")
	}
	if cfg.Auth.CookieMaxAge <= 0 {
		return Config{}, fmt.Errorf("AUTH_COOKIE_MAX_AGE_SEC must be > 0")
	}
	if !strings.HasPrefix(cfg.Guard.LoginPath, "/") {
		return Config{}, fmt.Errorf("GUARD_LOGIN_PATH must start with /")
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return Config{}, fmt.Errorf("LOG_FORMAT must be json or text")
	}
	if cfg.AuditLogFile == "" {
		return Config{}, fmt.Errorf("AUDIT_LOG_FILE must not be empty")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvList(key string, fallback []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(val) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
