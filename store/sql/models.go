package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type queuedEventRecord struct {
	bun.BaseModel `bun:"table:dsync_events,alias:de"`

	ID            string     `bun:"id,pk"`
	DirectoryID   string     `bun:"directory_id,notnull"`
	EventType     string     `bun:"event_type,notnull"`
	TenantID      string     `bun:"tenant,notnull"`
	Product       string     `bun:"product,notnull"`
	Payload       []byte     `bun:"payload,notnull"`
	Status        string     `bun:"status,notnull"`
	RetryCount    int        `bun:"retry_count,notnull"`
	NextAttemptAt *time.Time `bun:"next_attempt_at,nullzero"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type lockRecord struct {
	bun.BaseModel `bun:"table:dsync_locks,alias:dl"`

	Key       string    `bun:"key,pk"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type webhookEventLogRecord struct {
	bun.BaseModel `bun:"table:dsync_webhook_events,alias:dwe"`

	ID          string    `bun:"id,pk"`
	DirectoryID string    `bun:"directory_id,notnull"`
	TenantID    string    `bun:"tenant,notnull"`
	Product     string    `bun:"product,notnull"`
	Endpoint    string    `bun:"webhook_endpoint,notnull"`
	Payload     []byte    `bun:"payload"`
	StatusCode  int       `bun:"status_code,notnull"`
	Delivered   bool      `bun:"delivered,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
