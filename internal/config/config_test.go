package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"STORE_BACKEND", "HTTP_ADDR", "JWT_SECRET", "CLIENT_ORIGINS", "AI_REPLY_DELAY_MS", "APP_ENV", "FINISHED_GAME_TTL_SEC", "RESET_URL"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreBackend != BackendMemory || cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.AIReplyDelay != 500*time.Millisecond || cfg.AIThinkMin != time.Second || cfg.AIThinkMax != 3*time.Second {
		t.Fatalf("ai timing defaults %v %v %v", cfg.AIReplyDelay, cfg.AIThinkMin, cfg.AIThinkMax)
	}
	if cfg.DefaultTimeControl != 600 || cfg.MaxConcurrentGames != 200 || cfg.FinishedGameTTL != 10*time.Minute {
		t.Fatalf("game defaults %+v", cfg)
	}
	if cfg.ResetURL != "http://localhost:5173/reset-password" {
		t.Fatalf("reset url %q", cfg.ResetURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "REST")
	t.Setenv("REST_URL", "http://db.local/rest/v1/")
	t.Setenv("CLIENT_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("AI_REPLY_DELAY_MS", "0")
	t.Setenv("JWT_TTL_HOURS", "2")
	t.Setenv("MAX_CONCURRENT_GAMES", "3")
	t.Setenv("FINISHED_GAME_TTL_SEC", "30")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreBackend != BackendREST || cfg.RestURL != "http://db.local/rest/v1" {
		t.Fatalf("rest settings %+v", cfg)
	}
	if len(cfg.ClientOrigins) != 2 || cfg.ClientOrigins[1] != "http://b.test" {
		t.Fatalf("origins=%v", cfg.ClientOrigins)
	}
	if cfg.AIReplyDelay != 0 || cfg.JWTTTL != 2*time.Hour || cfg.MaxConcurrentGames != 3 || cfg.FinishedGameTTL != 30*time.Second {
		t.Fatalf("numeric overrides %+v", cfg)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []map[string]string{
		{"STORE_BACKEND": "postgres", "DATABASE_URL": ""},
		{"STORE_BACKEND": "sqlite"},
		{"MAX_CONCURRENT_GAMES": "zero"},
		{"FINISHED_GAME_TTL_SEC": "0"},
		{"AI_THINK_MIN_MS": "500", "AI_THINK_MAX_MS": "100"},
		{"APP_ENV": "production", "JWT_SECRET": ""},
	}
	for i, c := range cases {
		t.Run("", func(t *testing.T) {
			for k, v := range c {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("case %d: expected error", i)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("CHESSNERD_DOTENV_CHECK=hello\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHESSNERD_DOTENV_CHECK", "")
	os.Unsetenv("CHESSNERD_DOTENV_CHECK")
	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("CHESSNERD_DOTENV_CHECK"); got != "hello" {
		t.Fatalf("dotenv value=%q", got)
	}
}
