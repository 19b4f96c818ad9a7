// Package discord is an alternate ChatGateway, adapted from the reference
// discordgo-based channel implementations in the retrieval pack: same
// discordgo.New + Session.Open gateway connection and 2000-char message
// chunking, collapsed onto peterbot's single chatgateway.ChatGateway
// interface instead of a guild/thread-aware multi-server channel.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/onewithdev/peterbot/internal/chatgateway"
)

const maxMessageLen = 2000

type Gateway struct {
	session *discordgo.Session
}

func New(token string) (*Gateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: creating session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	return &Gateway{session: session}, nil
}

func (g *Gateway) Name() string { return "discord" }

func (g *Gateway) Start(ctx context.Context, handler chatgateway.InboundHandler) error {
	g.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author.Bot || m.Content == "" {
			return
		}
		handler(ctx, m.ChannelID, m.Content)
	})
	if err := g.session.Open(); err != nil {
		return fmt.Errorf("discord: opening gateway: %w", err)
	}
	go func() {
		<-ctx.Done()
		g.session.Close()
	}()
	return nil
}

func (g *Gateway) SendMessage(ctx context.Context, chatID, text string) error {
	for _, part := range chunk(text, maxMessageLen) {
		if _, err := g.session.ChannelMessageSend(chatID, part); err != nil {
			return fmt.Errorf("discord: send message: %w", err)
		}
	}
	return nil
}

func (g *Gateway) SendTyping(ctx context.Context, chatID string) {
	if err := g.session.ChannelTyping(chatID); err != nil {
		slog.Debug("discord: typing indicator failed", "error", err)
	}
}

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
