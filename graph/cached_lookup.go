package graph

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-transcript-intake/core"
)

const meetingCacheKeyPrefix = "transcript-intake::meeting::v1"

// CachedMeetingLookup memoises meeting lookups so redundant deliveries for
// the same meeting resolve without another upstream call. Failures are not
// cached.
type CachedMeetingLookup struct {
	base  core.MeetingLookup
	cache repositorycache.CacheService
}

func NewCachedMeetingLookup(base core.MeetingLookup, cacheService repositorycache.CacheService) (*CachedMeetingLookup, error) {
	if base == nil {
		return nil, fmt.Errorf("graph: base meeting lookup is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("graph: meeting cache service is required")
	}
	return &CachedMeetingLookup{base: base, cache: cacheService}, nil
}

// MeetingCacheKey is transcript-intake::meeting::v1::<organizer>::<meeting>
// with each segment path escaped.
func MeetingCacheKey(organizerID string, meetingID string) string {
	return strings.Join([]string{
		meetingCacheKeyPrefix,
		url.PathEscape(strings.TrimSpace(organizerID)),
		url.PathEscape(strings.TrimSpace(meetingID)),
	}, "::")
}

func (l *CachedMeetingLookup) GetMeeting(ctx context.Context, organizerID string, meetingID string) (core.Meeting, error) {
	if l == nil || l.base == nil || l.cache == nil {
		return core.Meeting{}, fmt.Errorf("graph: cached meeting lookup is not configured")
	}
	return repositorycache.GetOrFetch(ctx, l.cache, MeetingCacheKey(organizerID, meetingID), func(ctx context.Context) (core.Meeting, error) {
		return l.base.GetMeeting(ctx, organizerID, meetingID)
	})
}

// Forget evicts one meeting, for example after its subject changed.
func (l *CachedMeetingLookup) Forget(ctx context.Context, organizerID string, meetingID string) error {
	if l == nil || l.cache == nil {
		return nil
	}
	return l.cache.Delete(ctx, MeetingCacheKey(organizerID, meetingID))
}

var _ core.MeetingLookup = (*CachedMeetingLookup)(nil)
