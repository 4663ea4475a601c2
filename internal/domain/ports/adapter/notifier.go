package adapter

import "context"

// Notification is one templated message.
type Notification struct {
	Template string
	To       string
	Cc       []string
	Data     map[string]any
}

// Notifier delivers notifications. Callers treat failures as best effort.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}
