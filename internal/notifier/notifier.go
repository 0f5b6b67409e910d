// Package notifier
package notifier

// Notifier interface for sending notifications (e.g., Telegram, email).
type Notifier interface {
	Send(msg string) error
	SendWithRetry(msg string) error
}

// Nop discards every message.
type Nop struct{}

func (Nop) Send(string) error          { return nil }
func (Nop) SendWithRetry(string) error { return nil }
