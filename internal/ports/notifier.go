package ports

import "context"

// Notification is one message for one recipient.
type Notification struct {
	To      string
	From    string
	Subject string
	Body    string
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
