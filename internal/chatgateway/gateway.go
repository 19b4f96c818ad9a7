// Package chatgateway is the shared transport boundary between peterbot's
// ChatDispatcher and whichever chat provider is configured. Grounded on the
// teacher's per-provider internal/channels/{telegram,feishu,zalo} packages:
// each provider there implements its own bot/session wiring behind a common
// shape (Name/Bus/SendMessage + an inbound handler); this package collapses
// that shape into one explicit interface instead of the teacher's ad-hoc
// per-channel method set, since peterbot only ever talks to one chat at a
// time.
package chatgateway

import "context"

// InboundHandler is invoked once per inbound text message. chatID identifies
// the sender's chat in the provider's own id space.
type InboundHandler func(ctx context.Context, chatID, text string)

// ChatGateway is the minimal surface the dispatcher and worker need from a
// chat transport: send a message, and register a callback for inbound ones.
type ChatGateway interface {
	// Name identifies the provider, e.g. "telegram", "slack", "discord".
	Name() string
	// Start begins listening for inbound messages, invoking handler for
	// each one, until ctx is canceled.
	Start(ctx context.Context, handler InboundHandler) error
	// SendMessage delivers text to chatID. Errors are TransportFailure
	// (spec §7); callers decide whether to retry or defer to recovery.
	SendMessage(ctx context.Context, chatID, text string) error
	// SendTyping emits a best-effort typing indicator. Failures are
	// swallowed by implementations; callers never need to handle them.
	SendTyping(ctx context.Context, chatID string)
}
