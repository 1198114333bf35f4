package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-transcript-intake/core"
)

func newSubscriptionRecord(in core.UpsertSubscriptionInput, now time.Time) *subscriptionRecord {
	record := &subscriptionRecord{
		ID:        in.ID,
		CreatedAt: now,
	}
	record.apply(in, now)
	return record
}

func (r *subscriptionRecord) apply(in core.UpsertSubscriptionInput, now time.Time) {
	r.Resource = in.Resource
	r.NotificationURL = in.NotificationURL
	r.Status = string(in.Status)
	r.Metadata = mergeAnyMap(r.Metadata, in.Metadata)
	r.UpdatedAt = now
	r.ExpiresAt = nil
	if !in.ExpiresAt.IsZero() {
		value := in.ExpiresAt.UTC()
		r.ExpiresAt = &value
	}
	if in.LastRenewedAt != nil {
		value := in.LastRenewedAt.UTC()
		r.LastRenewedAt = &value
	}
}

func (r *subscriptionRecord) toDomain() core.Subscription {
	if r == nil {
		return core.Subscription{}
	}
	subscription := core.Subscription{
		ID:              r.ID,
		Resource:        r.Resource,
		NotificationURL: r.NotificationURL,
		Status:          core.SubscriptionStatus(r.Status),
		Metadata:        copyAnyMap(r.Metadata),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.ExpiresAt != nil {
		subscription.ExpiresAt = *r.ExpiresAt
	}
	if r.LastRenewedAt != nil {
		value := *r.LastRenewedAt
		subscription.LastRenewedAt = &value
	}
	return subscription
}

func newArtifactRecord(in core.ArtifactRecord, now time.Time) *artifactRecord {
	written := in.WrittenAt
	if written.IsZero() {
		written = now
	}
	return &artifactRecord{
		StoragePath:   strings.TrimSpace(in.StoragePath),
		ProjectName:   in.ProjectName,
		Filename:      in.Filename,
		ResourceID:    in.ResourceID,
		MeetingID:     in.MeetingID,
		ContentSHA256: in.ContentSHA256,
		SizeBytes:     in.SizeBytes,
		WriteCount:    1,
		WrittenAt:     written.UTC(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (r *artifactRecord) toDomain() core.ArtifactRecord {
	if r == nil {
		return core.ArtifactRecord{}
	}
	return core.ArtifactRecord{
		StoragePath:   r.StoragePath,
		ProjectName:   r.ProjectName,
		Filename:      r.Filename,
		ResourceID:    r.ResourceID,
		MeetingID:     r.MeetingID,
		ContentSHA256: r.ContentSHA256,
		SizeBytes:     r.SizeBytes,
		WrittenAt:     r.WrittenAt,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

// mergeAnyMap overlays next on base. Keys in base that next does not set
// survive, so status reasons outlive a later renewal.
func mergeAnyMap(base map[string]any, next map[string]any) map[string]any {
	out := copyAnyMap(base)
	for key, value := range next {
		out[key] = value
	}
	return out
}
