package model

import "time"

type NotificationType string

const (
	NotificationCreate NotificationType = "write"
	NotificationUpdate NotificationType = "update"
	NotificationDelete NotificationType = "delete"
)

// Notification announces a change to a single flag.
type Notification struct {
	Type      NotificationType `json:"type"`
	FlagID    string           `json:"flagId"`
	Timestamp time.Time        `json:"timestamp"`
}
