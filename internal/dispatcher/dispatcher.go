// Package dispatcher is the front door from chat transport to the rest of
// the system (spec.md §4.4). Grounded on the teacher's
// internal/channels/telegram/commands.go switch-based command handling,
// generalized from Telegram-specific types to the transport-agnostic
// chatgateway.ChatGateway and reduced to the single authorized-chat model.
package dispatcher

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/onewithdev/peterbot/internal/blocklist"
	"github.com/onewithdev/peterbot/internal/chatfmt"
	"github.com/onewithdev/peterbot/internal/chatgateway"
	"github.com/onewithdev/peterbot/internal/classifier"
	"github.com/onewithdev/peterbot/internal/completion"
	"github.com/onewithdev/peterbot/internal/notify"
	"github.com/onewithdev/peterbot/internal/store"
)

type Dispatcher struct {
	store          store.JobStore
	gateway        chatgateway.ChatGateway
	completer      completion.Completer
	authorizedChat string
	systemPrompt   func() string
	blocklist      atomic.Pointer[blocklist.Evaluator]
	notifier       *notify.Notifier
}

// SetNotifier wires the optional Redis wake signal (nil is fine and leaves
// createJob's notification a no-op).
func (d *Dispatcher) SetNotifier(n *notify.Notifier) {
	d.notifier = n
}

// New builds a Dispatcher. systemPrompt is resolved lazily on every quick
// completion call, since soul.md/memory.md are read on demand rather than
// cached (spec.md §9 Design Notes: the engine does not cache config files).
// The blocklist evaluator starts empty; call SetBlocklist once the initial
// compile finishes and again on every config.BlocklistWatcher reload.
func New(js store.JobStore, gw chatgateway.ChatGateway, c completion.Completer, authorizedChat string, systemPrompt func() string) *Dispatcher {
	d := &Dispatcher{
		store:          js,
		gateway:        gw,
		completer:      c,
		authorizedChat: authorizedChat,
		systemPrompt:   systemPrompt,
	}
	if ev, err := blocklist.Load("{}"); err == nil {
		d.blocklist.Store(ev)
	}
	return d
}

// SetBlocklist swaps in a freshly compiled rule set. Safe to call
// concurrently with Handle.
func (d *Dispatcher) SetBlocklist(ev *blocklist.Evaluator) {
	d.blocklist.Store(ev)
}

// Handle processes one inbound message. It never returns an error to the
// caller: every failure path is resolved into a chat reply or a log line,
// matching the ChatDispatcher's "never crash on bad input" responsibility.
func (d *Dispatcher) Handle(ctx context.Context, chatID, text string) {
	if chatID != d.authorizedChat {
		d.send(ctx, chatID, chatfmt.RejectionMessage)
		slog.Warn("dispatcher: rejected message from unauthorized chat", "chat_id", chatID)
		return
	}

	if ev := d.blocklist.Load(); ev != nil {
		verdict := ev.Evaluate(text, chatID)
		for _, rule := range verdict.Warnings {
			slog.Warn("dispatcher: blocklist warn rule matched", "rule", rule, "chat_id", chatID)
		}
		if verdict.Blocked {
			slog.Warn("dispatcher: blocklist strict rule matched, dropping message", "rule", verdict.RuleName, "chat_id", chatID)
			return
		}
	}

	if strings.HasPrefix(text, "/") {
		d.handleCommand(ctx, chatID, text)
		return
	}

	switch classifier.Classify(text) {
	case classifier.IntentQuick:
		d.handleQuick(ctx, chatID, text)
	default:
		d.handleTask(ctx, chatID, text)
	}
}

func (d *Dispatcher) handleQuick(ctx context.Context, chatID, text string) {
	d.gateway.SendTyping(ctx, chatID)

	output, err := d.completer.Complete(ctx, text, d.systemPrompt())
	if err != nil {
		slog.Error("dispatcher: quick completion failed", "error", err)
		d.send(ctx, chatID, chatfmt.ApologyMessage)
		return
	}
	d.send(ctx, chatID, output)
}

func (d *Dispatcher) handleTask(ctx context.Context, chatID, text string) {
	job, err := d.store.CreateJob(ctx, store.JobTypeTask, text, chatID, nil)
	if err != nil {
		slog.Error("dispatcher: createJob failed", "error", err)
		d.send(ctx, chatID, chatfmt.ApologyMessage)
		return
	}
	d.notifier.Publish(ctx)
	d.send(ctx, chatID, chatfmt.AckMessage(job.ID))
}

func (d *Dispatcher) send(ctx context.Context, chatID, text string) {
	if err := d.gateway.SendMessage(ctx, chatID, text); err != nil {
		slog.Warn("dispatcher: send failed", "chat_id", chatID, "error", err)
	}
}
