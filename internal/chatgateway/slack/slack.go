// Package slack is an alternate ChatGateway using slack-go/slack's Socket
// Mode client, following the same connect-then-range-over-events shape as
// the discordgo and telego adapters in this package family.
package slack

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/onewithdev/peterbot/internal/chatgateway"
)

const maxMessageLen = 4000

type Gateway struct {
	api    *slack.Client
	client *socketmode.Client
}

func New(botToken, appToken string) (*Gateway, error) {
	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	client := socketmode.New(api)
	return &Gateway{api: api, client: client}, nil
}

func (g *Gateway) Name() string { return "slack" }

func (g *Gateway) Start(ctx context.Context, handler chatgateway.InboundHandler) error {
	go func() {
		for evt := range g.client.Events {
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			g.client.Ack(*evt.Request)

			if eventsAPIEvent.Type != slackevents.CallbackEvent {
				continue
			}
			switch ev := eventsAPIEvent.InnerEvent.Data.(type) {
			case *slackevents.MessageEvent:
				if ev.BotID != "" || ev.Text == "" {
					continue
				}
				handler(ctx, ev.Channel, ev.Text)
			}
		}
	}()

	go func() {
		<-ctx.Done()
	}()

	if err := g.client.RunContext(ctx); err != nil {
		return fmt.Errorf("slack: socket mode run: %w", err)
	}
	return nil
}

func (g *Gateway) SendMessage(ctx context.Context, chatID, text string) error {
	for _, part := range chunk(text, maxMessageLen) {
		if _, _, err := g.api.PostMessageContext(ctx, chatID, slack.MsgOptionText(part, false)); err != nil {
			return fmt.Errorf("slack: send message: %w", err)
		}
	}
	return nil
}

func (g *Gateway) SendTyping(ctx context.Context, chatID string) {
	slog.Debug("slack: typing indicator not supported by the Web API, skipping", "chat_id", chatID)
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
