package graph

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goliatone/go-transcript-intake/core"
	"github.com/goliatone/go-transcript-intake/transport"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL+"/v1.0/", transport.NewRESTAdapter(server.Client()), 5*time.Second)
}

func TestClient_GetMeeting(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1.0/users/org-1/onlineMeetings/MSo1N2E=" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("$select") != "id,subject,startDateTime" {
			t.Errorf("unexpected select %q", r.URL.Query().Get("$select"))
		}
		_, _ = w.Write([]byte(`{"id":"MSo1N2E=","subject":"[YakShaver] Sprint Review","startDateTime":"2026-01-26T09:00:00Z"}`))
	})
	meeting, err := client.GetMeeting(context.Background(), "org-1", "MSo1N2E=")
	if err != nil {
		t.Fatalf("get meeting: %v", err)
	}
	if meeting.Subject != "[YakShaver] Sprint Review" || meeting.StartDateTime != "2026-01-26T09:00:00Z" || meeting.OrganizerID != "org-1" {
		t.Fatalf("unexpected meeting %+v", meeting)
	}
}

func TestClient_GetMeetingNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := client.GetMeeting(context.Background(), "org-1", "missing")
	var providerErr *core.ProviderError
	if !errors.As(err, &providerErr) || providerErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 provider error, got %v", err)
	}
}

func TestClient_FetchTranscript(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1.0/users/org-1/onlineMeetings/m-1/transcripts/tr-1/content" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("$format") != "text/vtt" || r.Header.Get("Accept") != "text/vtt" {
			t.Errorf("expected vtt format negotiation")
		}
		_, _ = w.Write([]byte("WEBVTT\n\n00:00.000 --> 00:02.000\n<v Ana>Hello</v>"))
	})
	content, err := client.FetchTranscript(context.Background(), "org-1", "m-1", "tr-1")
	if err != nil {
		t.Fatalf("fetch transcript: %v", err)
	}
	if string(content[:6]) != "WEBVTT" {
		t.Fatalf("unexpected content %q", content)
	}
	if _, err := client.FetchTranscript(context.Background(), "org-1", "m-1", ""); err == nil {
		t.Fatalf("expected missing transcript id error")
	}
}

func TestClient_RenewSubscription(t *testing.T) {
	expiresAt := time.Date(2026, 1, 29, 4, 0, 0, 0, time.UTC)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/v1.0/subscriptions/sub-1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			t.Errorf("unexpected authorization %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		var patch map[string]string
		if err := json.Unmarshal(body, &patch); err != nil {
			t.Errorf("decode patch: %v", err)
		}
		if patch["expirationDateTime"] != "2026-01-29T04:00:00Z" {
			t.Errorf("unexpected expiration %q", patch["expirationDateTime"])
		}
		_, _ = w.Write([]byte(`{"id":"sub-1","resource":"communications/onlineMeetings/getAllTranscripts","expirationDateTime":"2026-01-29T04:00:00Z","notificationUrl":"https://intake.example/api/webhook"}`))
	})
	sub, err := client.RenewSubscription(context.Background(), core.Credential{AccessToken: "tok-1"}, core.RenewSubscriptionRequest{
		SubscriptionID: "sub-1",
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if !sub.ExpiresAt.Equal(expiresAt) || sub.NotificationURL != "https://intake.example/api/webhook" {
		t.Fatalf("unexpected subscription %+v", sub)
	}
}

func TestClient_RenewSubscriptionThrottled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := client.RenewSubscription(context.Background(), core.Credential{AccessToken: "tok"}, core.RenewSubscriptionRequest{
		SubscriptionID: "sub-1",
		ExpiresAt:      time.Now().Add(time.Hour),
	})
	if !core.IsTransient(err) {
		t.Fatalf("expected transient throttle error, got %v", err)
	}
	if hint, ok := core.RetryAfterHint(err); !ok || hint != 3*time.Second {
		t.Fatalf("expected 3s hint, got %v", hint)
	}
}
