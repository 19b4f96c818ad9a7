package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "GOOGLE_API_KEY", "E2B_API_KEY",
		"DASHBOARD_PASSWORD", "SQLITE_DB_PATH", "DATABASE_URL", "PORT", "MODEL",
		"CHAT_PROVIDER", "SLACK_BOT_TOKEN", "SLACK_APP_TOKEN", "DISCORD_BOT_TOKEN",
		"REDIS_URL", "JOB_ARCHIVE_S3_BUCKET",
	} {
		os.Unsetenv(k)
	}
}

func TestLoad_MissingRequiredFieldsErrors(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("expected error when required env vars are unset")
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	os.Setenv("GOOGLE_API_KEY", "key")
	os.Setenv("DASHBOARD_PASSWORD", "pw")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 3000 {
		t.Fatalf("expected default port 3000, got %d", cfg.Port)
	}
	if cfg.SQLiteDBPath != "./data/jobs.db" {
		t.Fatalf("expected default sqlite path, got %q", cfg.SQLiteDBPath)
	}
	if cfg.ChatProvider != "telegram" {
		t.Fatalf("expected default chat provider telegram, got %q", cfg.ChatProvider)
	}
}

func TestLoad_InvalidPortErrors(t *testing.T) {
	clearEnv(t)
	os.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	os.Setenv("GOOGLE_API_KEY", "key")
	os.Setenv("DASHBOARD_PASSWORD", "pw")
	os.Setenv("PORT", "not-a-number")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric PORT")
	}
}

func TestLoad_NonTelegramProviderDoesNotRequireBotToken(t *testing.T) {
	clearEnv(t)
	os.Setenv("CHAT_PROVIDER", "slack")
	os.Setenv("GOOGLE_API_KEY", "key")
	os.Setenv("DASHBOARD_PASSWORD", "pw")
	defer clearEnv(t)

	if _, err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
}
