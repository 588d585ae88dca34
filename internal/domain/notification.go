package domain

import "time"

// NotificationType enumerates job-related notification categories.
type NotificationType string

const (
	NotificationGenerationStarted   NotificationType = "generation_started"
	NotificationGenerationCompleted NotificationType = "generation_completed"
	NotificationGenerationFailed    NotificationType = "generation_failed"
)

// Notification is a fire-and-forget side-effect record shown to the user.
type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Message   string
	Metadata  map[string]any
	Read      bool
	CreatedAt time.Time
}
