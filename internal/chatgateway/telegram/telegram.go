// Package telegram is peterbot's default ChatGateway, adapted from the
// teacher's internal/channels/telegram package: same telego.Bot + telegoutil
// construction, trimmed of the teacher's group/forum/pairing machinery
// since peterbot only ever talks to one pre-authorized chat.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/onewithdev/peterbot/internal/chatgateway"
)

const maxMessageLen = 4000

type Gateway struct {
	bot          *telego.Bot
	authorizedID int64
}

func New(token string, authorizedChatID int64) (*Gateway, error) {
	bot, err := telego.NewBot(token, telego.WithDefaultDebugLogger())
	if err != nil {
		return nil, fmt.Errorf("telegram: new bot: %w", err)
	}
	return &Gateway{bot: bot, authorizedID: authorizedChatID}, nil
}

func (g *Gateway) Name() string { return "telegram" }

// Start begins long-polling for updates and invokes handler for each
// inbound text message, regardless of chat — authorization is the
// dispatcher's job (spec.md §4.4 step 1), not the gateway's.
func (g *Gateway) Start(ctx context.Context, handler chatgateway.InboundHandler) error {
	updates, err := g.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("telegram: start long polling: %w", err)
	}

	go func() {
		for update := range updates {
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
			handler(ctx, chatID, update.Message.Text)
		}
	}()
	return nil
}

func (g *Gateway) SendMessage(ctx context.Context, chatID, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", chatID, err)
	}
	for _, chunk := range chunk(text, maxMessageLen) {
		if _, err := g.bot.SendMessage(ctx, tu.Message(tu.ID(id), chunk)); err != nil {
			return fmt.Errorf("telegram: send message: %w", err)
		}
	}
	return nil
}

func (g *Gateway) SendTyping(ctx context.Context, chatID string) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return
	}
	if err := g.bot.SendChatAction(ctx, &telego.SendChatActionParams{
		ChatID: tu.ID(id),
		Action: telego.ChatActionTyping,
	}); err != nil {
		slog.Debug("telegram: typing indicator failed", "error", err)
	}
}

// chunk splits text into pieces no longer than max, on a best-effort basis
// at the byte level — Telegram messages over its limit are rejected outright.
func chunk(text string, max int) []string {
	if len(text) <= max {
		return []string{text}
	}
	var parts []string
	for len(text) > max {
		parts = append(parts, text[:max])
		text = text[max:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
