package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/onewithdev/peterbot/internal/config"
)

// doctorCmd checks peterbot's own dependencies: config, store connectivity,
// config files, optional features. Adapted from the teacher's doctor.go
// (provider/channel/binary checks) to peterbot's narrower surface.
func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and connectivity health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("peterbot doctor")
	fmt.Printf("  OS:  %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:  %s\n", runtime.Version())
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("  Config: load error: %s\n", err)
		return
	}
	fmt.Println("  Config: OK")

	fmt.Println()
	fmt.Println("  Store:")
	if err := checkStore(cfg); err != nil {
		fmt.Printf("    %s: FAILED (%s)\n", storeLabel(cfg), err)
	} else {
		fmt.Printf("    %s: OK\n", storeLabel(cfg))
	}

	fmt.Println()
	fmt.Println("  Chat provider:")
	checkSecret(strings.ToUpper(cfg.ChatProvider[:1])+cfg.ChatProvider[1:], chatProviderToken(cfg))

	fmt.Println()
	fmt.Println("  Model:")
	checkSecret("Google API key", cfg.GoogleAPIKey)

	fmt.Println()
	fmt.Println("  Dashboard:")
	checkSecret("Password", cfg.DashboardPassword)

	fmt.Println()
	fmt.Println("  Config files:")
	checkConfigFile(cfg.ConfigDir, "soul.md")
	checkConfigFile(cfg.ConfigDir, "memory.md")
	checkConfigFile(cfg.ConfigDir, "blocklist.json")

	fmt.Println()
	fmt.Println("  Optional features:")
	checkOptional("Redis wake signal", cfg.RedisURL)
	checkOptional("S3 archival", cfg.S3Bucket)
	checkOptional("OTLP tracing", cfg.OTELEndpoint)

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkStore(cfg *config.Config) error {
	js, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer js.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err = js.ListSchedules(ctx, true)
	return err
}

func storeLabel(cfg *config.Config) string {
	if cfg.DatabaseURL != "" {
		return "Postgres"
	}
	return "SQLite (" + cfg.SQLiteDBPath + ")"
}

func chatProviderToken(cfg *config.Config) string {
	switch cfg.ChatProvider {
	case "slack":
		return cfg.SlackBotToken
	case "discord":
		return cfg.DiscordBotToken
	default:
		return cfg.TelegramBotToken
	}
}

func checkSecret(name, value string) {
	if value == "" {
		fmt.Printf("    %-20s (not configured)\n", name+":")
		return
	}
	masked := value
	if len(value) > 8 {
		masked = value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
	}
	fmt.Printf("    %-20s %s\n", name+":", masked)
}

func checkOptional(name, value string) {
	if value == "" {
		fmt.Printf("    %-20s disabled\n", name+":")
		return
	}
	fmt.Printf("    %-20s enabled (%s)\n", name+":", value)
}

func checkConfigFile(dir, name string) {
	path := dir + "/" + name
	if _, err := os.Stat(path); err != nil {
		fmt.Printf("    %-16s NOT FOUND (%s)\n", name+":", path)
	} else {
		fmt.Printf("    %-16s %s\n", name+":", path)
	}
}
