package core

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var ErrInvalidSubscriptionStatusTransition = errors.New("core: invalid subscription status transition")

// TranscriptODataType is the resource type discriminator of actionable notifications.
const TranscriptODataType = "#Microsoft.Graph.callTranscript"

const ArtifactExtension = ".vtt"

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusErrored   SubscriptionStatus = "errored"
)

// Subscription is the live registration with the upstream provider. Only the
// renewer mutates it.
type Subscription struct {
	ID              string
	Resource        string
	ExpiresAt       time.Time
	ClientState     string
	NotificationURL string
	Status          SubscriptionStatus
	LastRenewedAt   *time.Time
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ShortID returns the truncated subscription id used as a log key.
func (s Subscription) ShortID() string {
	return ShortSubscriptionID(s.ID)
}

func (s *Subscription) TransitionTo(status SubscriptionStatus, now time.Time) error {
	if s == nil {
		return nil
	}
	if s.Status == status {
		s.UpdatedAt = now
		return nil
	}
	if s.Status == "" {
		s.Status = status
		s.UpdatedAt = now
		return nil
	}
	if !subscriptionTransitionAllowed(s.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidSubscriptionStatusTransition, s.Status, status)
	}
	s.Status = status
	s.UpdatedAt = now
	return nil
}

func subscriptionTransitionAllowed(current, next SubscriptionStatus) bool {
	allowed := map[SubscriptionStatus]map[SubscriptionStatus]struct{}{
		SubscriptionStatusActive: {
			SubscriptionStatusExpired:   {},
			SubscriptionStatusCancelled: {},
			SubscriptionStatusErrored:   {},
		},
		SubscriptionStatusExpired: {
			SubscriptionStatusActive:    {},
			SubscriptionStatusCancelled: {},
		},
		SubscriptionStatusErrored: {
			SubscriptionStatusActive:    {},
			SubscriptionStatusCancelled: {},
		},
		SubscriptionStatusCancelled: {},
	}
	_, ok := allowed[current][next]
	return ok
}

func ShortSubscriptionID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}

type ResourceData struct {
	ODataType          string `json:"@odata.type"`
	ODataID            string `json:"@odata.id,omitempty"`
	ID                 string `json:"id"`
	MeetingID          string `json:"meetingId,omitempty"`
	MeetingOrganizerID string `json:"meetingOrganizerId,omitempty"`
	// Content carries the transcript body when the provider inlines it.
	Content string `json:"content,omitempty"`
}

// Notification is one entry of an inbound delivery batch.
type Notification struct {
	SubscriptionID string       `json:"subscriptionId,omitempty"`
	ChangeType     string       `json:"changeType,omitempty"`
	Resource       string       `json:"resource,omitempty"`
	TenantID       string       `json:"tenantId,omitempty"`
	ClientState    string       `json:"clientState,omitempty"`
	ResourceData   ResourceData `json:"resourceData"`
}

// DeliveryBatch is the body of one notification delivery.
type DeliveryBatch struct {
	Value []Notification `json:"value"`
}

var (
	resourceOrganizerPattern  = regexp.MustCompile(`users\('?([^'/)]+)'?\)`)
	resourceMeetingPattern    = regexp.MustCompile(`onlineMeetings\('?([^'/)]+)'?\)`)
	resourceTranscriptPattern = regexp.MustCompile(`transcripts\('?([^'/)]+)'?\)`)
)

func (n Notification) ResourceType() string {
	return strings.TrimSpace(n.ResourceData.ODataType)
}

func (n Notification) IsTranscript() bool {
	return strings.EqualFold(n.ResourceType(), TranscriptODataType)
}

func (n Notification) ResourceID() string {
	if id := strings.TrimSpace(n.ResourceData.ID); id != "" {
		return id
	}
	return matchResource(resourceTranscriptPattern, n.Resource, n.ResourceData.ODataID)
}

func (n Notification) MeetingID() string {
	if id := strings.TrimSpace(n.ResourceData.MeetingID); id != "" {
		return id
	}
	return matchResource(resourceMeetingPattern, n.Resource, n.ResourceData.ODataID)
}

func (n Notification) OrganizerID() string {
	if id := strings.TrimSpace(n.ResourceData.MeetingOrganizerID); id != "" {
		return id
	}
	return matchResource(resourceOrganizerPattern, n.Resource, n.ResourceData.ODataID)
}

func matchResource(pattern *regexp.Regexp, candidates ...string) string {
	for _, candidate := range candidates {
		if match := pattern.FindStringSubmatch(candidate); len(match) == 2 {
			return strings.TrimSpace(match[1])
		}
	}
	return ""
}

// Meeting is the subset of the meeting resource the classifier needs.
type Meeting struct {
	ID            string
	OrganizerID   string
	Subject       string
	StartDateTime string
}

type TranscriptArtifact struct {
	ProjectName string
	Filename    string
	Content     []byte
	StoragePath string
	ResourceID  string
	MeetingID   string
}

// ArtifactPath composes the storage path of an artifact.
func ArtifactPath(projectName, filename string) string {
	return path.Join(strings.TrimSpace(projectName), strings.TrimSpace(filename))
}

type ProcessingJobTrigger struct {
	Template       string
	StoragePath    string
	ProjectName    string
	Model          string
	IdempotencyKey string
	DispatchedAt   time.Time
}

const (
	ReasonAuth           = "auth"
	ReasonNotTranscript  = "not-a-transcript"
	ReasonNoSubject      = "no-subject"
	ReasonNotOfInterest  = "not-of-interest"
	ReasonInvalid        = "invalid-notification"
	ReasonLookupFailed   = "lookup-failed"
	ReasonFetchFailed    = "fetch-failed"
	ReasonWriteFailed    = "write-failed"
	ReasonDispatchFailed = "dispatch-failed"
	ReasonProcessed      = "processed"
)

type NotificationResult struct {
	Success     bool   `json:"success"`
	Skipped     bool   `json:"skipped"`
	Reason      string `json:"reason,omitempty"`
	ResourceID  string `json:"resourceId,omitempty"`
	BlobPath    string `json:"blobPath,omitempty"`
	ProjectName string `json:"projectName,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Error       string `json:"error,omitempty"`
}

// SkippedResult marks a legitimate no-op. Skips are successful outcomes.
func SkippedResult(resourceID, reason string) NotificationResult {
	return NotificationResult{
		Success:    true,
		Skipped:    true,
		Reason:     reason,
		ResourceID: resourceID,
	}
}

func FailedResult(resourceID, reason string, err error) NotificationResult {
	result := NotificationResult{
		Success:    false,
		Reason:     reason,
		ResourceID: resourceID,
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

type DeliveryResponse struct {
	Results []NotificationResult `json:"results"`
}
