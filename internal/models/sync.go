package models

import (
	"time"

	"github.com/google/uuid"
)

// Queue event statuses. PENDING -> PUSHING -> {ACCEPTED | DUPLICATE | REJECTED}.
// ACCEPTED and DUPLICATE are terminal successes; REJECTED becomes eligible
// again through the backoff schedule or a manual retry.
const (
	EventStatusPending   = "PENDING"
	EventStatusPushing   = "PUSHING"
	EventStatusAccepted  = "ACCEPTED"
	EventStatusRejected  = "REJECTED"
	EventStatusDuplicate = "DUPLICATE"
)

// QueueEvent is one row of the durable outbox: a locally-originated mutation
// waiting to be delivered to the remote system. Rows are never regenerated;
// ClientEventID is the idempotency key for the life of the event.
type QueueEvent struct {
	ID            uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	ClientEventID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"client_event_id"`
	EventType     string     `gorm:"not null;index" json:"event_type"`
	Payload       []byte     `gorm:"type:json;not null" json:"payload"`
	OccurredAt    time.Time  `gorm:"not null" json:"occurred_at"`
	Status        string     `gorm:"not null;default:PENDING;index" json:"status"`
	ErrorCode     *string    `json:"error_code"`
	ErrorMessage  *string    `json:"error_message"`
	ServerResponse []byte    `gorm:"type:json" json:"server_response"`
	RetryCount    int        `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries    int        `gorm:"not null;default:5" json:"max_retries"`
	NextRetryAt   *time.Time `json:"next_retry_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	PushedAt      *time.Time `json:"pushed_at"`
}

// SyncCursor is the singleton row tracking this installation's identity and
// its position in the inbound remote event stream.
type SyncCursor struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	DeviceID   uuid.UUID  `gorm:"type:uuid;not null" json:"device_id"`
	PullCursor *string    `json:"pull_cursor"`
	LastPullAt *time.Time `json:"last_pull_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
