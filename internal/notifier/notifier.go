package notifier

import "context"

// Notifier delivers operator messages.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Noop discards every message. Used when no bot token is configured.
type Noop struct{}

func (Noop) Send(context.Context, string) error { return nil }
