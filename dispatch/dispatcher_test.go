package dispatch

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

	job "github.com/goliatone/go-job"
)

type stubEnqueuer struct {
	messages []*job.ExecutionMessage
	errs     []error
}

func (s *stubEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	s.messages = append(s.messages, msg)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return err
	}
	return nil
}

func noWait(context.Context, time.Duration) error { return nil }

func TestDispatcher_EnqueuesExecutionMessage(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	dispatchedAt := time.Date(2026, 1, 26, 10, 0, 0, 0, time.UTC)
	dispatcher := NewDispatcher(enqueuer, core.JobsConfig{Template: "transcript-analysis", Model: "large"},
		WithClock(func() time.Time { return dispatchedAt }))

	trigger, err := dispatcher.Dispatch(context.Background(), "yakshaver/2026-01-26-sprint-review.vtt", "yakshaver")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(enqueuer.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(enqueuer.messages))
	}
	msg := enqueuer.messages[0]
	if msg.JobID != "transcript-analysis" {
		t.Fatalf("unexpected job id %q", msg.JobID)
	}
	if msg.Parameters[ParamStoragePath] != "yakshaver/2026-01-26-sprint-review.vtt" {
		t.Fatalf("expected storage path parameter, got %v", msg.Parameters)
	}
	if msg.Parameters[ParamProjectName] != "yakshaver" || msg.Parameters[ParamModel] != "large" {
		t.Fatalf("unexpected parameters %v", msg.Parameters)
	}
	if msg.IdempotencyKey != "transcript:yakshaver/2026-01-26-sprint-review.vtt" {
		t.Fatalf("unexpected idempotency key %q", msg.IdempotencyKey)
	}
	if string(msg.DedupPolicy) != DedupPolicyDrop {
		t.Fatalf("expected drop dedup policy, got %q", msg.DedupPolicy)
	}
	if !trigger.DispatchedAt.Equal(dispatchedAt) || trigger.Template != "transcript-analysis" {
		t.Fatalf("unexpected trigger %+v", trigger)
	}
}

func TestDispatcher_SameArtifactSameKey(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	dispatcher := NewDispatcher(enqueuer, core.JobsConfig{Template: "transcript-analysis"})

	for i := 0; i < 2; i++ {
		if _, err := dispatcher.Dispatch(context.Background(), "tiger/2026-01-26-retro.vtt", "tiger"); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	if enqueuer.messages[0].IdempotencyKey != enqueuer.messages[1].IdempotencyKey {
		t.Fatalf("expected stable idempotency key across re-deliveries")
	}
	if _, ok := enqueuer.messages[0].Parameters[ParamModel]; ok {
		t.Fatalf("expected model parameter to be omitted when unset")
	}
}

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	enqueuer := &stubEnqueuer{errs: []error{
		&core.ProviderError{Operation: "job dispatch", StatusCode: http.StatusServiceUnavailable},
	}}
	dispatcher := NewDispatcher(enqueuer, core.JobsConfig{Template: "transcript-analysis"},
		WithRetryPolicy(core.RetryPolicy{MaxAttempts: 3, Wait: noWait}))

	if _, err := dispatcher.Dispatch(context.Background(), "general/2026-01-26-quick-chat.vtt", "general"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(enqueuer.messages) != 2 {
		t.Fatalf("expected one retry, got %d calls", len(enqueuer.messages))
	}
}

func TestDispatcher_BoundedRetrySurfacesError(t *testing.T) {
	failure := &core.ProviderError{Operation: "job dispatch", StatusCode: http.StatusBadGateway}
	enqueuer := &stubEnqueuer{errs: []error{failure, failure, failure, failure}}
	dispatcher := NewDispatcher(enqueuer, core.JobsConfig{Template: "transcript-analysis"},
		WithRetryPolicy(core.RetryPolicy{MaxAttempts: 2, Wait: noWait}))

	_, err := dispatcher.Dispatch(context.Background(), "general/2026-01-26-quick-chat.vtt", "general")
	if err == nil {
		t.Fatalf("expected dispatch failure")
	}
	if len(enqueuer.messages) != 2 {
		t.Fatalf("expected exactly two attempts, got %d", len(enqueuer.messages))
	}
}

func TestDispatcher_PermanentFailureNotRetried(t *testing.T) {
	enqueuer := &stubEnqueuer{errs: []error{
		&core.ProviderError{Operation: "job dispatch", StatusCode: http.StatusBadRequest},
	}}
	dispatcher := NewDispatcher(enqueuer, core.JobsConfig{Template: "transcript-analysis"},
		WithRetryPolicy(core.RetryPolicy{MaxAttempts: 3, Wait: noWait}))

	if _, err := dispatcher.Dispatch(context.Background(), "general/a.vtt", "general"); err == nil {
		t.Fatalf("expected error")
	}
	if len(enqueuer.messages) != 1 {
		t.Fatalf("expected no retry for a 400, got %d calls", len(enqueuer.messages))
	}
}

func TestDispatcher_RequiresTemplate(t *testing.T) {
	dispatcher := NewDispatcher(&stubEnqueuer{}, core.JobsConfig{})
	if _, err := dispatcher.Dispatch(context.Background(), "general/a.vtt", "general"); err == nil {
		t.Fatalf("expected configuration error")
	}
}

func TestMessageMappingRoundTrip(t *testing.T) {
	original := core.ProcessingJobTrigger{
		Template:       "transcript-analysis",
		StoragePath:    "tiger/2026-01-26-daily-standup.vtt",
		ProjectName:    "tiger",
		Model:          "small",
		IdempotencyKey: IdempotencyKey("tiger/2026-01-26-daily-standup.vtt"),
	}
	roundTrip := FromExecutionMessage(ToExecutionMessage(original))
	if roundTrip != original {
		t.Fatalf("expected %+v, got %+v", original, roundTrip)
	}
}

func TestHTTPJobBackend_PostsExecutionMessage(t *testing.T) {
	var received executionRequest
	var idempotencyHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		idempotencyHeader = r.Header.Get("Idempotency-Key")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	backend := NewHTTPJobBackend(server.URL+"/jobs", transport.NewRESTAdapter(server.Client()), time.Second)
	dispatcher := NewDispatcher(backend, core.JobsConfig{Template: "transcript-analysis"})
	if _, err := dispatcher.Dispatch(context.Background(), "tiger/2026-01-26-retro.vtt", "tiger"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if received.JobID != "transcript-analysis" || received.DedupPolicy != DedupPolicyDrop {
		t.Fatalf("unexpected request %+v", received)
	}
	if received.Parameters[ParamStoragePath] != "tiger/2026-01-26-retro.vtt" {
		t.Fatalf("unexpected parameters %v", received.Parameters)
	}
	if idempotencyHeader != "transcript:tiger/2026-01-26-retro.vtt" {
		t.Fatalf("unexpected idempotency header %q", idempotencyHeader)
	}
}

func TestHTTPJobBackend_ClassifiesFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	backend := NewHTTPJobBackend(server.URL, transport.NewRESTAdapter(server.Client()), time.Second)
	err := backend.Enqueue(context.Background(), ToExecutionMessage(core.ProcessingJobTrigger{
		Template:    "transcript-analysis",
		StoragePath: "tiger/a.vtt",
	}))
	if !core.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	var providerErr *core.ProviderError
	if !errors.As(err, &providerErr) || providerErr.RetryAfter != 2*time.Second {
		t.Fatalf("expected retry hint, got %v", err)
	}
}

func TestHTTPJobBackend_RequiresURL(t *testing.T) {
	backend := NewHTTPJobBackend("", nil, 0)
	if err := backend.Enqueue(context.Background(), &job.ExecutionMessage{JobID: "x"}); err == nil {
		t.Fatalf("expected configuration error")
	}
}
