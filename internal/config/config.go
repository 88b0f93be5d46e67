package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendREST     = "rest"
)

const devJWTSecret = "dev_secret_change_me"

type AppConfig struct {
	HTTPAddr string

	StoreBackend string
	DatabaseURL  string
	RestURL      string
	RestAPIKey   string
	RedisURL     string

	JWTSecret     string
	JWTTTL        time.Duration
	CookieName    string
	ClientOrigins []string
	ResetURL      string

	MaxConcurrentGames int
	AIReplyDelay       time.Duration
	AIThinkMin         time.Duration
	AIThinkMax         time.Duration
	DefaultTimeControl int
	DefaultIncrement   int
	FinishedGameTTL    time.Duration
	HistoryLimit       int

	MessagesDir string
	Production  bool
}

// LoadDotEnv loads .env style files into the process environment. Missing files are skipped;
// variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:           ":8080",
		StoreBackend:       BackendMemory,
		JWTSecret:          devJWTSecret,
		JWTTTL:             14 * 24 * time.Hour,
		CookieName:         "chessnerd_token",
		ClientOrigins:      []string{"http://localhost:5173"},
		MaxConcurrentGames: 200,
		AIReplyDelay:       500 * time.Millisecond,
		AIThinkMin:         time.Second,
		AIThinkMax:         3 * time.Second,
		DefaultTimeControl: 600,
		FinishedGameTTL:    10 * time.Minute,
		HistoryLimit:       10,
		ResetURL:           "http://localhost:5173/reset-password",
	}

	if v := env("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.ToLower(env("STORE_BACKEND")); v != "" {
		cfg.StoreBackend = v
	}
	cfg.DatabaseURL = env("DATABASE_URL")
	cfg.RestURL = strings.TrimRight(env("REST_URL"), "/")
	cfg.RestAPIKey = env("REST_API_KEY")
	cfg.RedisURL = env("REDIS_URL")
	cfg.MessagesDir = env("MESSAGES_DIR")
	cfg.Production = strings.EqualFold(env("APP_ENV"), "production")

	if v := env("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := env("COOKIE_NAME"); v != "" {
		cfg.CookieName = v
	}
	if v := env("CLIENT_ORIGINS"); v != "" {
		cfg.ClientOrigins = splitList(v)
	}
	if v := env("RESET_URL"); v != "" {
		cfg.ResetURL = v
	}

	var err error
	if cfg.JWTTTL, err = hoursVar("JWT_TTL_HOURS", cfg.JWTTTL); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentGames, err = positiveInt("MAX_CONCURRENT_GAMES", cfg.MaxConcurrentGames); err != nil {
		return nil, err
	}
	if cfg.DefaultTimeControl, err = positiveInt("DEFAULT_TIME_CONTROL", cfg.DefaultTimeControl); err != nil {
		return nil, err
	}
	if cfg.HistoryLimit, err = positiveInt("HISTORY_LIMIT", cfg.HistoryLimit); err != nil {
		return nil, err
	}
	if cfg.DefaultIncrement, err = nonNegativeInt("DEFAULT_INCREMENT", cfg.DefaultIncrement); err != nil {
		return nil, err
	}
	if cfg.FinishedGameTTL, err = secondsVar("FINISHED_GAME_TTL_SEC", cfg.FinishedGameTTL); err != nil {
		return nil, err
	}
	if cfg.AIReplyDelay, err = millisVar("AI_REPLY_DELAY_MS", cfg.AIReplyDelay); err != nil {
		return nil, err
	}
	if cfg.AIThinkMin, err = millisVar("AI_THINK_MIN_MS", cfg.AIThinkMin); err != nil {
		return nil, err
	}
	if cfg.AIThinkMax, err = millisVar("AI_THINK_MAX_MS", cfg.AIThinkMax); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	case BackendREST:
		if c.RestURL == "" {
			return errors.New("REST_URL is required for the rest backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.AIThinkMax < c.AIThinkMin {
		return errors.New("AI_THINK_MAX_MS must be >= AI_THINK_MIN_MS")
	}
	if c.Production && c.JWTSecret == devJWTSecret {
		return errors.New("JWT_SECRET is required in production")
	}
	return nil
}

func env(k string) string { return strings.TrimSpace(os.Getenv(k)) }

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func positiveInt(key string, def int) (int, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func nonNegativeInt(key string, def int) (int, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, v)
	}
	return n, nil
}

func millisVar(key string, def time.Duration) (time.Duration, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	n, err := nonNegativeInt(key, 0)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Millisecond, nil
}

func secondsVar(key string, def time.Duration) (time.Duration, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	n, err := positiveInt(key, 0)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func hoursVar(key string, def time.Duration) (time.Duration, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	n, err := positiveInt(key, 0)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Hour, nil
}
