package events

import (
	"context"
	"log/slog"
)

// NoopPublisher drops events. It is used when NATS is not configured; a
// non-nil Logger sees each dropped topic at debug level.
type NoopPublisher struct {
	Logger *slog.Logger
}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	if n.Logger != nil {
		n.Logger.DebugContext(ctx, "event dropped", "topic", topic)
	}
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}
