// Package notify is an optional low-latency nudge on top of the worker's
// poll loop: when REDIS_URL is configured, the dispatcher publishes on a
// Redis channel after each task or /retry job it creates, and the worker
// subscribes so it doesn't have to wait out a full poll interval. Jobs
// created by the scheduler or the CLI are not announced and are picked up
// by the next poll. Purely an optimization — ClaimNextPending's
// conditional UPDATE remains the only correctness mechanism, so a missed
// or delayed notification just costs the worker a poll cycle's latency.
// Grounded on the pub/sub-plus-poll-fallback shape implied by the pack's
// flyingrobots-go-redis-work-queue backend interface, reworked here around
// go-redis/v9 directly for the one signal peterbot needs.
package notify

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const channel = "peterbot:job-created"

// Notifier publishes a wake signal each time Publish is called (the
// dispatcher calls it after creating a job).
type Notifier struct {
	client *redis.Client
}

// New connects to url. A nil *Notifier (when url is empty) is valid and
// every method on it is a no-op, so callers don't need a feature flag.
func New(url string) (*Notifier, error) {
	if url == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Notifier{client: redis.NewClient(opt)}, nil
}

// Publish signals that a job was created. Errors are logged, not
// propagated — a missed nudge just means the worker finds the job on its
// next poll instead of immediately.
func (n *Notifier) Publish(ctx context.Context) {
	if n == nil {
		return
	}
	if err := n.client.Publish(ctx, channel, "1").Err(); err != nil {
		slog.Warn("notify: publish failed", "error", err)
	}
}

// Subscribe returns a channel the worker can select on alongside its poll
// ticker. The channel is closed when ctx is cancelled.
func (n *Notifier) Subscribe(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)
	if n == nil {
		close(out)
		return out
	}

	sub := n.client.Subscribe(ctx, channel)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}

func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	return n.client.Close()
}
