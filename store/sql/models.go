package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type subscriptionRecord struct {
	bun.BaseModel `bun:"table:intake_subscriptions,alias:isub"`

	ID              string         `bun:"id,pk"`
	Resource        string         `bun:"resource,notnull"`
	NotificationURL string         `bun:"notification_url,notnull"`
	Status          string         `bun:"status,notnull"`
	ExpiresAt       *time.Time     `bun:"expires_at,nullzero"`
	LastRenewedAt   *time.Time     `bun:"last_renewed_at,nullzero"`
	Metadata        map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt       time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// artifactRecord indexes one written transcript. StoragePath is unique; the
// row is overwritten on re-delivery.
type artifactRecord struct {
	bun.BaseModel `bun:"table:intake_artifacts,alias:iart"`

	ID            string    `bun:"id,pk"`
	StoragePath   string    `bun:"storage_path,notnull"`
	ProjectName   string    `bun:"project_name,notnull"`
	Filename      string    `bun:"filename,notnull"`
	ResourceID    string    `bun:"resource_id,notnull"`
	MeetingID     string    `bun:"meeting_id,notnull"`
	ContentSHA256 string    `bun:"content_sha256,notnull"`
	SizeBytes     int64     `bun:"size_bytes,notnull"`
	WriteCount    int       `bun:"write_count,notnull"`
	WrittenAt     time.Time `bun:"written_at,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
