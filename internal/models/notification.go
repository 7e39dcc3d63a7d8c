package models

import "time"

// NotificationType tags the event class a notification belongs to.
type NotificationType string

const (
	NotificationStatusChange NotificationType = "STATUS_CHANGE"
	NotificationHandoff      NotificationType = "HANDOFF"
)

// Notification is a fire-and-forget message delivered to a user's inbox.
type Notification struct {
	ID          string           `db:"id" json:"id"`
	RecipientID string           `db:"recipient_id" json:"recipient_id"`
	Title       string           `db:"title" json:"title"`
	Body        string           `db:"body" json:"body"`
	Type        NotificationType `db:"type" json:"type"`
	RelatedID   *string          `db:"related_id" json:"related_id,omitempty"`
	Read        bool             `db:"read" json:"read"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}
