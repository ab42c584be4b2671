package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{"PORT", "SERVER_PORT", "STORE_DRIVER", "DEFAULT_CURRENCY", "SYNC_TIMEOUT_SECONDS", "BUDGET_CACHE_TTL_SECONDS", "SYNC_RATE_LIMIT_PER_MINUTE", "REFRESH_RATE_LIMIT_PER_MINUTE", "AUTO_REFRESH_SCHEDULE"} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8090" {
		t.Fatalf("expected default port 8090, got %q", cfg.ServerPort)
	}
	if cfg.StoreDriver != StoreDriverPostgres {
		t.Fatalf("expected postgres store driver, got %q", cfg.StoreDriver)
	}
	if cfg.DefaultCurrency != "INR" {
		t.Fatalf("expected INR, got %q", cfg.DefaultCurrency)
	}
	if cfg.SyncTimeoutSeconds != 90 {
		t.Fatalf("expected sync timeout 90, got %d", cfg.SyncTimeoutSeconds)
	}
	if cfg.BudgetCacheTTLSeconds != 1800 {
		t.Fatalf("expected budget cache ttl 1800, got %d", cfg.BudgetCacheTTLSeconds)
	}
	if cfg.SyncRateLimitPerMinute != 10 {
		t.Fatalf("expected sync rate limit 10, got %d", cfg.SyncRateLimitPerMinute)
	}
	if cfg.RefreshRateLimitPerMinute != 6 {
		t.Fatalf("expected refresh rate limit 6, got %d", cfg.RefreshRateLimitPerMinute)
	}
	if cfg.AutoRefreshSchedule != "" {
		t.Fatalf("expected auto refresh disabled by default, got %q", cfg.AutoRefreshSchedule)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "PORT", "7000")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "7000" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_CoercesInvalidValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "STORE_DRIVER", "sqlite")
	setEnvWithCleanup(t, "SYNC_TIMEOUT_SECONDS", "-5")
	setEnvWithCleanup(t, "DEFAULT_CURRENCY", "rupees")
	setEnvWithCleanup(t, "SYNC_RATE_LIMIT_PER_MINUTE", "-1")
	setEnvWithCleanup(t, "REFRESH_RATE_LIMIT_PER_MINUTE", "-3")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StoreDriver != StoreDriverPostgres {
		t.Fatalf("expected unknown driver to fall back to postgres, got %q", cfg.StoreDriver)
	}
	if cfg.SyncTimeoutSeconds != 90 {
		t.Fatalf("expected negative timeout coerced to 90, got %d", cfg.SyncTimeoutSeconds)
	}
	if cfg.DefaultCurrency != "INR" {
		t.Fatalf("expected invalid currency coerced to INR, got %q", cfg.DefaultCurrency)
	}
	if cfg.SyncRateLimitPerMinute != 0 {
		t.Fatalf("expected negative rate limit coerced to 0, got %d", cfg.SyncRateLimitPerMinute)
	}
	if cfg.RefreshRateLimitPerMinute != 0 {
		t.Fatalf("expected negative refresh limit coerced to 0, got %d", cfg.RefreshRateLimitPerMinute)
	}
}

func TestLoadConfig_GeminiKeyAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "GEMINI_API_KEY")
	setEnvWithCleanup(t, "GOOGLE_API_KEY", "alias-key")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.GeminiAPIKey != "alias-key" {
		t.Fatalf("expected GeminiAPIKey from alias env var, got %q", cfg.GeminiAPIKey)
	}
}

func TestLoadConfig_ReadsDotEnvFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "STORE_DRIVER")
	unsetEnvWithCleanup(t, "SETU_CLIENT_ID")

	dir := t.TempDir()
	content := "STORE_DRIVER=memory\nSETU_CLIENT_ID=from-file\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StoreDriver != StoreDriverMemory {
		t.Fatalf("expected memory driver from .env, got %q", cfg.StoreDriver)
	}
	if cfg.SetuClientID != "from-file" {
		t.Fatalf("expected SETU_CLIENT_ID from .env, got %q", cfg.SetuClientID)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
