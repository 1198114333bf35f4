package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// Credential is a bearer credential obtained by client-credential exchange.
type Credential struct {
	TokenType   string
	AccessToken string
	ExpiresAt   time.Time
}

func (c Credential) AuthorizationHeader() string {
	tokenType := c.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return tokenType + " " + c.AccessToken
}

type CredentialSource interface {
	Credential(ctx context.Context) (Credential, error)
}

type MeetingLookup interface {
	GetMeeting(ctx context.Context, organizerID string, meetingID string) (Meeting, error)
}

type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, organizerID string, meetingID string, transcriptID string) ([]byte, error)
}

type RenewSubscriptionRequest struct {
	SubscriptionID string
	ExpiresAt      time.Time
}

type SubscriptionClient interface {
	RenewSubscription(ctx context.Context, cred Credential, req RenewSubscriptionRequest) (Subscription, error)
}

type ArtifactStore interface {
	Put(ctx context.Context, storagePath string, content []byte) error
	Get(ctx context.Context, storagePath string) ([]byte, error)
}

type ArtifactRecord struct {
	StoragePath   string
	ProjectName   string
	Filename      string
	ResourceID    string
	MeetingID     string
	ContentSHA256 string
	SizeBytes     int64
	WrittenAt     time.Time
}

type ArtifactIndex interface {
	Record(ctx context.Context, record ArtifactRecord) error
}

type UpsertSubscriptionInput struct {
	ID              string
	Resource        string
	ExpiresAt       time.Time
	NotificationURL string
	Status          SubscriptionStatus
	LastRenewedAt   *time.Time
	Metadata        map[string]any
}

type SubscriptionStore interface {
	Get(ctx context.Context, id string) (Subscription, error)
	Upsert(ctx context.Context, in UpsertSubscriptionInput) (Subscription, error)
	UpdateState(ctx context.Context, id string, status SubscriptionStatus, reason string) error
}
