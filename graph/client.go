// Package graph talks to the upstream provider API: meeting lookups,
// transcript content and subscription renewal.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-transcript-intake/core"
	"github.com/goliatone/go-transcript-intake/transport"
)

const transcriptContentFormat = "text/vtt"

type Client struct {
	rest    *transport.RESTAdapter
	baseURL string
	timeout time.Duration
}

func NewClient(baseURL string, rest *transport.RESTAdapter, timeout time.Duration) *Client {
	if rest == nil {
		rest = transport.NewRESTAdapter(nil)
	}
	return &Client{
		rest:    rest,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		timeout: timeout,
	}
}

type meetingResource struct {
	ID            string `json:"id"`
	Subject       string `json:"subject"`
	StartDateTime string `json:"startDateTime"`
}

func (c *Client) GetMeeting(ctx context.Context, organizerID string, meetingID string) (core.Meeting, error) {
	organizerID = strings.TrimSpace(organizerID)
	meetingID = strings.TrimSpace(meetingID)
	if organizerID == "" || meetingID == "" {
		return core.Meeting{}, core.BadInputError("graph: organizer id and meeting id are required", nil)
	}
	res, err := c.rest.Do(ctx, transport.Request{
		Operation: "get meeting",
		Method:    http.MethodGet,
		URL:       c.endpoint("users", organizerID, "onlineMeetings", meetingID),
		Query:     map[string]string{"$select": "id,subject,startDateTime"},
		Headers:   map[string]string{"Accept": "application/json"},
		Timeout:   c.timeout,
	})
	if err != nil {
		return core.Meeting{}, err
	}
	var resource meetingResource
	if err := json.Unmarshal(res.Body, &resource); err != nil {
		return core.Meeting{}, core.WrapError(err, goerrors.CategoryExternal, "graph: decode meeting", map[string]any{
			"meeting_id": meetingID,
		})
	}
	return core.Meeting{
		ID:            firstNonEmpty(resource.ID, meetingID),
		OrganizerID:   organizerID,
		Subject:       resource.Subject,
		StartDateTime: resource.StartDateTime,
	}, nil
}

func (c *Client) FetchTranscript(ctx context.Context, organizerID string, meetingID string, transcriptID string) ([]byte, error) {
	organizerID = strings.TrimSpace(organizerID)
	meetingID = strings.TrimSpace(meetingID)
	transcriptID = strings.TrimSpace(transcriptID)
	if organizerID == "" || meetingID == "" || transcriptID == "" {
		return nil, core.BadInputError("graph: organizer, meeting and transcript ids are required", nil)
	}
	res, err := c.rest.Do(ctx, transport.Request{
		Operation: "fetch transcript",
		Method:    http.MethodGet,
		URL:       c.endpoint("users", organizerID, "onlineMeetings", meetingID, "transcripts", transcriptID, "content"),
		Query:     map[string]string{"$format": transcriptContentFormat},
		Headers:   map[string]string{"Accept": transcriptContentFormat},
		Timeout:   c.timeout,
	})
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

type subscriptionPatch struct {
	ExpirationDateTime string `json:"expirationDateTime"`
}

type subscriptionResource struct {
	ID                 string `json:"id"`
	Resource           string `json:"resource"`
	ExpirationDateTime string `json:"expirationDateTime"`
	NotificationURL    string `json:"notificationUrl"`
	ClientState        string `json:"clientState"`
}

// RenewSubscription PATCHes the subscription expiry using the given bearer
// credential and returns the provider's view of the subscription.
func (c *Client) RenewSubscription(ctx context.Context, cred core.Credential, req core.RenewSubscriptionRequest) (core.Subscription, error) {
	subscriptionID := strings.TrimSpace(req.SubscriptionID)
	if subscriptionID == "" {
		return core.Subscription{}, core.BadInputError("graph: subscription id is required", nil)
	}
	if strings.TrimSpace(cred.AccessToken) == "" {
		return core.Subscription{}, core.BadInputError("graph: renewal requires a bearer credential", nil)
	}
	expiresAt := req.ExpiresAt.UTC()
	body, err := json.Marshal(subscriptionPatch{ExpirationDateTime: expiresAt.Format(time.RFC3339Nano)})
	if err != nil {
		return core.Subscription{}, err
	}
	res, err := c.rest.Do(ctx, transport.Request{
		Operation: "renew subscription",
		Method:    http.MethodPatch,
		URL:       c.endpoint("subscriptions", subscriptionID),
		Headers: map[string]string{
			"Authorization": cred.AuthorizationHeader(),
			"Content-Type":  "application/json",
			"Accept":        "application/json",
		},
		Body:    body,
		Timeout: c.timeout,
	})
	if err != nil {
		return core.Subscription{}, err
	}

	subscription := core.Subscription{ID: subscriptionID, ExpiresAt: expiresAt}
	if len(strings.TrimSpace(string(res.Body))) == 0 {
		return subscription, nil
	}
	var resource subscriptionResource
	if err := json.Unmarshal(res.Body, &resource); err != nil {
		return core.Subscription{}, core.WrapError(err, goerrors.CategoryExternal, "graph: decode subscription", map[string]any{
			"subscription": core.ShortSubscriptionID(subscriptionID),
		})
	}
	subscription.ID = firstNonEmpty(resource.ID, subscriptionID)
	subscription.Resource = resource.Resource
	subscription.NotificationURL = resource.NotificationURL
	subscription.ClientState = resource.ClientState
	if parsed, parseErr := time.Parse(time.RFC3339Nano, strings.TrimSpace(resource.ExpirationDateTime)); parseErr == nil {
		subscription.ExpiresAt = parsed.UTC()
	}
	return subscription, nil
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, 0, len(segments))
	for _, segment := range segments {
		escaped = append(escaped, url.PathEscape(segment))
	}
	return fmt.Sprintf("%s/%s", c.baseURL, strings.Join(escaped, "/"))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

var (
	_ core.MeetingLookup      = (*Client)(nil)
	_ core.TranscriptFetcher  = (*Client)(nil)
	_ core.SubscriptionClient = (*Client)(nil)
)
