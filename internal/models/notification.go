package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "email"
	ChannelSMS   NotificationChannel = "sms"
)

type NotificationKind string

const (
	KindOrderConfirmation NotificationKind = "order_confirmation"
	KindStatusUpdate      NotificationKind = "status_update"
	KindAdminAlert        NotificationKind = "admin_alert"
)

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
)

type NotificationStatus string

const (
	NotificationPending    NotificationStatus = "pending"
	NotificationProcessing NotificationStatus = "processing"
	NotificationSent       NotificationStatus = "sent"
	NotificationFailed     NotificationStatus = "failed"
)

// NotificationJob is one durable unit of outbound messaging work. Jobs
// reference the order they concern; bodies are rendered at dispatch time.
// Status only moves pending -> processing -> {sent | pending | failed};
// sent and failed are terminal.
type NotificationJob struct {
	ID            uuid.UUID            `json:"id"`
	Channel       NotificationChannel  `json:"channel"`
	Kind          NotificationKind     `json:"kind"`
	Recipient     string               `json:"recipient"`
	OrderID       uuid.UUID            `json:"order_id"`
	UpdateType    string               `json:"update_type,omitempty"`
	UpdateMessage string               `json:"update_message,omitempty"`
	Priority      NotificationPriority `json:"priority"`
	Status        NotificationStatus   `json:"status"`
	Attempts      int                  `json:"attempts"`
	MaxAttempts   int                  `json:"max_attempts"`
	ScheduledAt   time.Time            `json:"scheduled_at"`
	LastAttemptAt *time.Time           `json:"last_attempt_at,omitempty"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
	LastError     string               `json:"last_error,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

// Terminal reports whether the job can never be mutated again except by
// retention cleanup.
func (j *NotificationJob) Terminal() bool {
	return j.Status == NotificationSent || j.Status == NotificationFailed
}
