package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-transcript-intake/core"
)

type countingLookup struct {
	calls int
	err   error
}

func (l *countingLookup) GetMeeting(_ context.Context, organizerID string, meetingID string) (core.Meeting, error) {
	l.calls++
	if l.err != nil {
		return core.Meeting{}, l.err
	}
	return core.Meeting{ID: meetingID, OrganizerID: organizerID, Subject: "Sprint Review"}, nil
}

func newTestCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func TestCachedMeetingLookup_ReusesResult(t *testing.T) {
	base := &countingLookup{}
	lookup, err := NewCachedMeetingLookup(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached lookup: %v", err)
	}
	for i := 0; i < 3; i++ {
		meeting, err := lookup.GetMeeting(context.Background(), "org", "m-1")
		if err != nil {
			t.Fatalf("get meeting: %v", err)
		}
		if meeting.Subject != "Sprint Review" {
			t.Fatalf("unexpected meeting %+v", meeting)
		}
	}
	if base.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", base.calls)
	}

	if err := lookup.Forget(context.Background(), "org", "m-1"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if _, err := lookup.GetMeeting(context.Background(), "org", "m-1"); err != nil {
		t.Fatalf("get meeting after forget: %v", err)
	}
	if base.calls != 2 {
		t.Fatalf("expected refetch after forget, got %d", base.calls)
	}
}

func TestCachedMeetingLookup_PropagatesErrors(t *testing.T) {
	failure := errors.New("upstream down")
	base := &countingLookup{err: failure}
	lookup, err := NewCachedMeetingLookup(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached lookup: %v", err)
	}
	if _, err := lookup.GetMeeting(context.Background(), "org", "m-1"); !errors.Is(err, failure) {
		t.Fatalf("expected base error, got %v", err)
	}
	base.err = nil
	if _, err := lookup.GetMeeting(context.Background(), "org", "m-1"); err != nil {
		t.Fatalf("expected failures not to be cached: %v", err)
	}
}

func TestMeetingCacheKey(t *testing.T) {
	if got := MeetingCacheKey("org 1", "m/1"); got != "transcript-intake::meeting::v1::org%201::m%2F1" {
		t.Fatalf("unexpected cache key %q", got)
	}
}
