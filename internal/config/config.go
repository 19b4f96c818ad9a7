// Package config loads peterbot's environment-derived settings and manages
// the three live-editable text files (soul.md, memory.md, blocklist.json)
// the dashboard reads and writes. Env loading follows the teacher's
// plain-os.Getenv-with-defaults style (no viper/env struct-tag library is
// used anywhere in the retrieved pack for this kind of top-level
// configuration, so none is introduced here either).
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds every environment-derived setting from spec.md §6.
type Config struct {
	TelegramBotToken  string
	TelegramChatID    string
	GoogleAPIKey      string
	E2BAPIKey         string
	DashboardPassword string
	SQLiteDBPath      string
	DatabaseURL       string // non-empty selects the Postgres backend instead of SQLite
	Port              int
	Model             string
	ChatProvider      string // "telegram" (default), "slack", "discord"
	SlackBotToken     string
	SlackAppToken     string
	DiscordBotToken   string
	RedisURL          string // optional, enables the low-latency wake signal
	S3Bucket          string // optional, enables completed-job archival
	ConfigDir         string // holds soul.md, memory.md, blocklist.json
	MaxPromptTokens   int
	OTELEndpoint      string // optional, enables OTLP tracing export
	OTELProtocol      string // "grpc" (default) or "http"
	Tailscale         TailscaleConfig
}

// TailscaleConfig configures the optional tsnet private-network listener.
// Only read when peterbot is built with -tags tsnet.
type TailscaleConfig struct {
	Hostname  string // empty disables the tsnet listener
	AuthKey   string
	StateDir  string
	Ephemeral bool
	EnableTLS bool
}

// Load reads Config from the process environment, applying spec.md §6's
// defaults for optional values.
func Load() (*Config, error) {
	cfg := &Config{
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:    os.Getenv("TELEGRAM_CHAT_ID"),
		GoogleAPIKey:      os.Getenv("GOOGLE_API_KEY"),
		E2BAPIKey:         os.Getenv("E2B_API_KEY"),
		DashboardPassword: loadDashboardPassword(os.Getenv("DASHBOARD_PASSWORD")),
		SQLiteDBPath:      getEnvDefault("SQLITE_DB_PATH", "./data/jobs.db"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		Model:             getEnvDefault("MODEL", "gemini-2.0-flash"),
		ChatProvider:      getEnvDefault("CHAT_PROVIDER", "telegram"),
		SlackBotToken:     os.Getenv("SLACK_BOT_TOKEN"),
		SlackAppToken:     os.Getenv("SLACK_APP_TOKEN"),
		DiscordBotToken:   os.Getenv("DISCORD_BOT_TOKEN"),
		RedisURL:          os.Getenv("REDIS_URL"),
		S3Bucket:          os.Getenv("JOB_ARCHIVE_S3_BUCKET"),
		ConfigDir:         getEnvDefault("CONFIG_DIR", "./config"),
		OTELEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTELProtocol:      getEnvDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
		Tailscale: TailscaleConfig{
			Hostname:  os.Getenv("PETERBOT_TSNET_HOSTNAME"),
			AuthKey:   os.Getenv("PETERBOT_TSNET_AUTHKEY"),
			StateDir:  os.Getenv("PETERBOT_TSNET_STATE_DIR"),
			Ephemeral: os.Getenv("PETERBOT_TSNET_EPHEMERAL") == "true",
			EnableTLS: os.Getenv("PETERBOT_TSNET_TLS") == "true",
		},
	}

	port := getEnvDefault("PORT", "3000")
	p, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("config: invalid PORT %q: %w", port, err)
	}
	cfg.Port = p

	maxTokens := getEnvDefault("MAX_PROMPT_TOKENS", "8000")
	mt, err := strconv.Atoi(maxTokens)
	if err != nil {
		return nil, fmt.Errorf("config: invalid MAX_PROMPT_TOKENS %q: %w", maxTokens, err)
	}
	cfg.MaxPromptTokens = mt

	if cfg.ChatProvider == "telegram" && cfg.TelegramBotToken == "" {
		return nil, fmt.Errorf("config: TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.GoogleAPIKey == "" {
		return nil, fmt.Errorf("config: GOOGLE_API_KEY is required")
	}
	if cfg.DashboardPassword == "" {
		return nil, fmt.Errorf("config: DASHBOARD_PASSWORD is required")
	}

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
