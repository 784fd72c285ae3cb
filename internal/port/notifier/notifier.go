// Package notifier defines the notification port (interface).
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a notifier is not properly configured.
var ErrNotConfigured = errors.New("notifier: not configured")

// Notification is the payload sent through a Notifier.
type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Level   string `json:"level"`  // "info", "warning", "error", "critical"
	Source  string `json:"source"` // e.g. worker name or "dispatch"
}

// Notifier is the port interface for delivering alert notifications.
type Notifier interface {
	// Name returns the unique channel identifier (e.g. "discord").
	Name() string

	// Send delivers a notification.
	Send(ctx context.Context, notification Notification) error
}
