package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/onewithdev/peterbot/internal/archive"
	"github.com/onewithdev/peterbot/internal/bus"
	"github.com/onewithdev/peterbot/internal/cache"
	"github.com/onewithdev/peterbot/internal/chatgateway"
	"github.com/onewithdev/peterbot/internal/chatgateway/discord"
	"github.com/onewithdev/peterbot/internal/chatgateway/slack"
	"github.com/onewithdev/peterbot/internal/chatgateway/telegram"
	"github.com/onewithdev/peterbot/internal/completion"
	"github.com/onewithdev/peterbot/internal/config"
	"github.com/onewithdev/peterbot/internal/dispatcher"
	"github.com/onewithdev/peterbot/internal/httpapi"
	"github.com/onewithdev/peterbot/internal/jobscheduler"
	"github.com/onewithdev/peterbot/internal/notify"
	"github.com/onewithdev/peterbot/internal/store"
	"github.com/onewithdev/peterbot/internal/store/pgstore"
	"github.com/onewithdev/peterbot/internal/store/sqlitestore"
	"github.com/onewithdev/peterbot/internal/tracing"
	"github.com/onewithdev/peterbot/internal/worker"
)

const baseSystemPrompt = "You are peterbot, a single-user personal AI agent. " +
	"Answer directly and concisely unless the user's message clearly calls for a " +
	"longer background task."

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatcher, worker, scheduler, and dashboard.",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runServe(cmd.Context()); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	js, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	defer js.Close()
	jobCache := cache.Wrap(js)

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{Endpoint: cfg.OTELEndpoint, Protocol: cfg.OTELProtocol})
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	defer shutdownTracing(context.Background())

	gateway, defaultChat, err := openGateway(cfg)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	configStore := config.NewConfigStore(cfg.ConfigDir)
	promptBuilder := config.NewSystemPromptBuilder(configStore, baseSystemPrompt, cfg.MaxPromptTokens)

	blocklistWatcher, err := config.NewBlocklistWatcher(cfg.ConfigDir + "/blocklist.json")
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	initialBlocklist, err := blocklistWatcher.Start()
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	defer blocklistWatcher.Stop()

	notifier, err := notify.New(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	defer notifier.Close()

	archiver, err := archive.New(ctx, cfg.S3Bucket)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	completer, err := completion.NewGoogleCompletion(ctx, completion.GoogleCompletionConfig{
		APIKey: cfg.GoogleAPIKey,
		Model:  cfg.Model,
	})
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	events := bus.New()

	disp := dispatcher.New(jobCache, gateway, completer, defaultChat, promptBuilder.Build)
	disp.SetBlocklist(initialBlocklist)
	disp.SetNotifier(notifier)
	blocklistWatcher.OnChange(disp.SetBlocklist)

	w := worker.New(jobCache, gateway, completer, events, baseSystemPrompt)
	w.SetWakeChannel(notifier.Subscribe(ctx))
	w.SetArchiver(archiver)
	w.Reconcile(ctx)

	sched := jobscheduler.New(jobCache, defaultChat, jobscheduler.DefaultTickInterval)

	srv := httpapi.New(jobCache, configStore, events, cfg.DashboardPassword, defaultChat)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Handler(),
	}

	go func() {
		if err := gateway.Start(ctx, disp.Handle); err != nil && ctx.Err() == nil {
			fmt.Fprintln(os.Stderr, "chat gateway stopped:", err)
		}
	}()
	go w.Run(ctx)
	go sched.Run(ctx)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintln(os.Stderr, "http server stopped:", err)
		}
	}()

	if stopTailscale := initTailscale(ctx, cfg, srv.Handler()); stopTailscale != nil {
		defer stopTailscale()
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func openStore(cfg *config.Config) (store.JobStore, error) {
	if cfg.DatabaseURL != "" {
		return pgstore.Open(cfg.DatabaseURL)
	}
	return sqlitestore.Open(cfg.SQLiteDBPath)
}

func openGateway(cfg *config.Config) (chatgateway.ChatGateway, string, error) {
	switch cfg.ChatProvider {
	case "slack":
		gw, err := slack.New(cfg.SlackBotToken, cfg.SlackAppToken)
		return gw, cfg.TelegramChatID, err
	case "discord":
		gw, err := discord.New(cfg.DiscordBotToken)
		return gw, cfg.TelegramChatID, err
	default:
		var chatID int64
		if cfg.TelegramChatID != "" {
			if _, err := fmt.Sscanf(cfg.TelegramChatID, "%d", &chatID); err != nil {
				return nil, "", fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", cfg.TelegramChatID, err)
			}
		}
		gw, err := telegram.New(cfg.TelegramBotToken, chatID)
		return gw, cfg.TelegramChatID, err
	}
}
