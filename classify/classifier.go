// Package classify decides which inbound notifications are transcripts of
// tracked meetings.
package classify

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/goliatone/go-transcript-intake/core"
	"github.com/goliatone/go-transcript-intake/naming"
)

// Decision is the outcome of classifying one notification. Reason is set for
// every non-actionable decision.
type Decision struct {
	Actionable bool
	Reason     string
	Meeting    core.Meeting
	Resolution naming.Resolution
}

type Classifier struct {
	lookup    core.MeetingLookup
	predicate Predicate
	retry     core.RetryPolicy
}

func NewClassifier(lookup core.MeetingLookup, predicate Predicate, retry core.RetryPolicy) *Classifier {
	if predicate == nil {
		predicate = NewKeywordPredicate("sprint")
	}
	return &Classifier{
		lookup:    lookup,
		predicate: predicate,
		retry:     retry,
	}
}

// Classify applies the type check, subject resolution and interest filter in
// that order. A non-nil error is only returned when the meeting lookup failed
// after retries; the decision then carries ReasonLookupFailed.
func (c *Classifier) Classify(ctx context.Context, notification core.Notification) (Decision, error) {
	if !notification.IsTranscript() {
		return Decision{Reason: core.ReasonNotTranscript}, nil
	}
	if c == nil || c.lookup == nil {
		return Decision{Reason: core.ReasonNoSubject}, nil
	}

	organizerID := notification.OrganizerID()
	meetingID := notification.MeetingID()
	if organizerID == "" || meetingID == "" {
		return Decision{Reason: core.ReasonNoSubject}, nil
	}

	var meeting core.Meeting
	_, err := c.retry.Do(ctx, func(ctx context.Context) error {
		found, lookupErr := c.lookup.GetMeeting(ctx, organizerID, meetingID)
		if lookupErr != nil {
			return lookupErr
		}
		meeting = found
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return Decision{Reason: core.ReasonNoSubject}, nil
		}
		return Decision{Reason: core.ReasonLookupFailed}, err
	}

	subject := strings.TrimSpace(meeting.Subject)
	if subject == "" {
		return Decision{Reason: core.ReasonNoSubject, Meeting: meeting}, nil
	}
	if !c.predicate.Match(subject) {
		return Decision{Reason: core.ReasonNotOfInterest, Meeting: meeting}, nil
	}
	return Decision{
		Actionable: true,
		Meeting:    meeting,
		Resolution: naming.Resolve(subject, meeting.StartDateTime),
	}, nil
}

func isNotFound(err error) bool {
	var providerErr *core.ProviderError
	return errors.As(err, &providerErr) && providerErr.StatusCode == http.StatusNotFound
}
