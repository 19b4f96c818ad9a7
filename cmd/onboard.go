package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/onewithdev/peterbot/internal/config"
)

// onboardCmd walks a new install through the handful of settings peterbot
// actually needs, adapted from the teacher's much larger multi-provider
// onboard.go wizard (which configures N agent backends, TTS, and channel
// pairing) down to peterbot's single chat provider and single model.
func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactively generate a .env file",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runOnboard(); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
		},
	}
}

func runOnboard() error {
	providerOpts := []SelectOption[string]{
		{Label: "Telegram", Value: "telegram"},
		{Label: "Slack", Value: "slack"},
		{Label: "Discord", Value: "discord"},
	}
	provider, err := promptSelect("Chat provider", providerOpts, 0)
	if err != nil {
		return err
	}

	env := map[string]string{
		"CHAT_PROVIDER": provider,
	}

	switch provider {
	case "telegram":
		token, err := promptPassword("Telegram bot token", "From @BotFather")
		if err != nil {
			return err
		}
		chatID, err := promptString("Telegram chat ID", "Your numeric chat ID — peterbot only answers this chat", "")
		if err != nil {
			return err
		}
		env["TELEGRAM_BOT_TOKEN"] = token
		env["TELEGRAM_CHAT_ID"] = chatID
	case "slack":
		botToken, err := promptPassword("Slack bot token", "xoxb-...")
		if err != nil {
			return err
		}
		appToken, err := promptPassword("Slack app token", "xapp-... (Socket Mode)")
		if err != nil {
			return err
		}
		chatID, err := promptString("Authorized Slack channel/user ID", "", "")
		if err != nil {
			return err
		}
		env["SLACK_BOT_TOKEN"] = botToken
		env["SLACK_APP_TOKEN"] = appToken
		env["TELEGRAM_CHAT_ID"] = chatID
	case "discord":
		token, err := promptPassword("Discord bot token", "")
		if err != nil {
			return err
		}
		chatID, err := promptString("Authorized Discord channel ID", "", "")
		if err != nil {
			return err
		}
		env["DISCORD_BOT_TOKEN"] = token
		env["TELEGRAM_CHAT_ID"] = chatID
	}

	googleKey, err := promptPassword("Google API key", "For Gemini completions")
	if err != nil {
		return err
	}
	env["GOOGLE_API_KEY"] = googleKey

	model, err := promptString("Model", "", "gemini-2.0-flash")
	if err != nil {
		return err
	}
	env["MODEL"] = model

	dashPass, err := promptPassword("Dashboard password", "Protects /api/* and the live job feed")
	if err != nil {
		return err
	}
	if err := config.StoreDashboardPassword(dashPass); err != nil {
		fmt.Println("Could not reach the OS keychain, writing DASHBOARD_PASSWORD to .env instead.")
		env["DASHBOARD_PASSWORD"] = dashPass
	} else {
		fmt.Println("Dashboard password saved to the OS keychain.")
	}

	useManaged, err := promptConfirm("Use a managed Postgres database instead of local SQLite?", false)
	if err != nil {
		return err
	}
	if useManaged {
		dsn, err := promptString("Postgres DSN", "", "")
		if err != nil {
			return err
		}
		env["DATABASE_URL"] = dsn
	}

	featureOpts := []SelectOption[string]{
		{Label: "Redis wake signal (lower job pickup latency)", Value: "redis"},
		{Label: "S3 job archival", Value: "s3"},
		{Label: "OpenTelemetry tracing", Value: "otel"},
	}
	features, err := promptMultiSelect("Optional features", "Space to toggle, enter to confirm", featureOpts, nil)
	if err != nil {
		return err
	}
	for _, f := range features {
		switch f {
		case "redis":
			url, err := promptString("Redis URL", "", "redis://localhost:6379/0")
			if err != nil {
				return err
			}
			env["REDIS_URL"] = url
		case "s3":
			bucket, err := promptString("S3 bucket name", "", "")
			if err != nil {
				return err
			}
			env["JOB_ARCHIVE_S3_BUCKET"] = bucket
		case "otel":
			endpoint, err := promptString("OTLP endpoint", "", "localhost:4317")
			if err != nil {
				return err
			}
			env["OTEL_EXPORTER_OTLP_ENDPOINT"] = endpoint
		}
	}

	return writeEnvFile(".env", env)
}

func writeEnvFile(path string, env map[string]string) error {
	var b strings.Builder
	for _, k := range envOrder {
		if v, ok := env[k]; ok {
			fmt.Fprintf(&b, "%s=%s\n", k, v)
		}
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("onboard: write %s: %w", path, err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

// envOrder fixes the .env file's key ordering so repeated onboard runs
// produce a stable diff.
var envOrder = []string{
	"CHAT_PROVIDER", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID",
	"SLACK_BOT_TOKEN", "SLACK_APP_TOKEN", "DISCORD_BOT_TOKEN",
	"GOOGLE_API_KEY", "MODEL", "DASHBOARD_PASSWORD", "DATABASE_URL",
	"REDIS_URL", "JOB_ARCHIVE_S3_BUCKET", "OTEL_EXPORTER_OTLP_ENDPOINT",
}
