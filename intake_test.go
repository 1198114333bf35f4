package intake_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	job "github.com/goliatone/go-job"
	intake "github.com/goliatone/go-transcript-intake"
	"github.com/goliatone/go-transcript-intake/artifacts"
	intakecommand "github.com/goliatone/go-transcript-intake/command"
	"github.com/goliatone/go-transcript-intake/core"
	"github.com/goliatone/go-transcript-intake/dispatch"
	"github.com/goliatone/go-transcript-intake/query"
)

const testClientState = "s3cr3t"

type recordingEnqueuer struct {
	mu       sync.Mutex
	messages []*job.ExecutionMessage
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, msg)
	return nil
}

func (e *recordingEnqueuer) snapshot() []*job.ExecutionMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*job.ExecutionMessage(nil), e.messages...)
}

type upstream struct {
	mu        sync.Mutex
	renewals  int
	fetches   int
	lookups   int
}

func (u *upstream) counts() (lookups, fetches, renewals int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lookups, u.fetches, u.renewals
}

func (u *upstream) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tenant-1/oauth2/v2.0/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"graph-token","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/v1.0/users/org-1/onlineMeetings/m-sprint", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.lookups++
		u.mu.Unlock()
		if got := r.Header.Get("Authorization"); got != "Bearer graph-token" {
			t.Errorf("expected bearer token on lookup, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"m-sprint","subject":"[YakShaver] Sprint Review","startDateTime":"2026-01-26T09:00:00Z"}`)
	})
	mux.HandleFunc("/v1.0/users/org-1/onlineMeetings/m-sprint/transcripts/tr-1/content", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.fetches++
		u.mu.Unlock()
		w.Header().Set("Content-Type", "text/vtt")
		_, _ = io.WriteString(w, "WEBVTT\n\n00:00:00.000 --> 00:00:02.000\nhello\n")
	})
	mux.HandleFunc("/v1.0/subscriptions/sub-1", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		u.mu.Lock()
		u.renewals++
		u.mu.Unlock()
		var patch struct {
			ExpirationDateTime string `json:"expirationDateTime"`
		}
		_ = json.Unmarshal(body, &patch)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"id":"sub-1","resource":"communications/onlineMeetings/getAllTranscripts","expirationDateTime":%q}`, patch.ExpirationDateTime)
	})
	return mux
}

func testConfig(serverURL string) intake.Config {
	cfg := intake.DefaultConfig()
	cfg.Subscription.ID = "sub-1"
	cfg.Subscription.ClientState = testClientState
	cfg.Subscription.NotificationURL = "https://intake.example.com/notifications"
	cfg.Identity.TenantID = "tenant-1"
	cfg.Identity.ClientID = "client-1"
	cfg.Identity.ClientSecret = "secret-1"
	cfg.Identity.AuthorityURL = serverURL
	cfg.Graph.BaseURL = serverURL + "/v1.0"
	cfg.Graph.Timeout = 5 * time.Second
	cfg.Receiver.InitialBackoff = time.Millisecond
	cfg.Receiver.MaxBackoff = time.Millisecond
	cfg.Storage.Backend = core.StorageBackendMemory
	cfg.Database.DSN = fmt.Sprintf("file:intake-app-%d?mode=memory&cache=shared&_foreign_keys=on", time.Now().UnixNano())
	return cfg
}

func setupApp(t *testing.T) (*intake.App, *upstream, *recordingEnqueuer, *artifacts.MemoryStore) {
	t.Helper()
	up := &upstream{}
	server := httptest.NewServer(up.handler(t))
	t.Cleanup(server.Close)

	enqueuer := &recordingEnqueuer{}
	store := artifacts.NewMemoryStore()
	app, err := intake.Setup(context.Background(), testConfig(server.URL),
		intake.WithEnqueuer(enqueuer),
		intake.WithArtifactStore(store),
		intake.WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app, up, enqueuer, store
}

func sprintNotification() core.Notification {
	return core.Notification{
		SubscriptionID: "sub-1",
		ChangeType:     "created",
		ClientState:    testClientState,
		ResourceData: core.ResourceData{
			ODataType:          core.TranscriptODataType,
			ID:                 "tr-1",
			MeetingID:          "m-sprint",
			MeetingOrganizerID: "org-1",
		},
	}
}

func TestSetup_DeliveryEndToEnd(t *testing.T) {
	app, up, enqueuer, store := setupApp(t)
	server := httptest.NewServer(app.Handler())
	defer server.Close()

	body, err := json.Marshal(core.DeliveryBatch{Value: []core.Notification{sprintNotification()}})
	if err != nil {
		t.Fatalf("marshal batch: %v", err)
	}
	resp, err := server.Client().Post(server.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post delivery: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var decoded core.DeliveryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(decoded.Results) != 1 || decoded.Results[0].Reason != core.ReasonProcessed {
		t.Fatalf("expected processed result, got %+v", decoded.Results)
	}
	const wantPath = "yakshaver/2026-01-26-sprint-review.vtt"
	if decoded.Results[0].BlobPath != wantPath {
		t.Fatalf("expected blob path %q, got %q", wantPath, decoded.Results[0].BlobPath)
	}

	content, err := store.Get(context.Background(), wantPath)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !strings.HasPrefix(string(content), "WEBVTT") {
		t.Fatalf("expected vtt content, got %q", content)
	}

	messages := enqueuer.snapshot()
	if len(messages) != 1 {
		t.Fatalf("expected one execution message, got %d", len(messages))
	}
	if messages[0].Parameters[dispatch.ParamStoragePath] != wantPath {
		t.Fatalf("unexpected dispatch parameters: %#v", messages[0].Parameters)
	}

	record, writes, err := app.Stores.ArtifactIndex().Get(context.Background(), wantPath)
	if err != nil {
		t.Fatalf("artifact index lookup: %v", err)
	}
	if writes != 1 || record.ProjectName != "yakshaver" {
		t.Fatalf("unexpected index row %+v (writes=%d)", record, writes)
	}
	if _, fetches, _ := up.counts(); fetches != 1 {
		t.Fatalf("expected one transcript fetch, got %d", fetches)
	}
}

func TestSetup_MeetingLookupIsCachedAcrossDeliveries(t *testing.T) {
	app, up, _, store := setupApp(t)

	for i := 0; i < 2; i++ {
		results := app.Receiver.Handle(context.Background(), fmt.Sprintf("req-%d", i), core.DeliveryBatch{
			Value: []core.Notification{sprintNotification()},
		})
		if results[0].Reason != core.ReasonProcessed {
			t.Fatalf("delivery %d: expected processed, got %+v", i, results[0])
		}
	}
	if lookups, _, _ := up.counts(); lookups != 1 {
		t.Fatalf("expected cached meeting lookup, got %d upstream calls", lookups)
	}
	if store.Writes() != 2 || len(store.Paths()) != 1 {
		t.Fatalf("expected overwrite of a single path, got writes=%d paths=%v", store.Writes(), store.Paths())
	}
}

func TestSetup_RenewalThroughFacadePersistsSubscription(t *testing.T) {
	app, up, _, _ := setupApp(t)
	facade, err := app.Facade()
	if err != nil {
		t.Fatalf("facade: %v", err)
	}

	outcome, err := facade.RenewSubscription(context.Background(), intakecommand.TriggerOnce)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if outcome.Skipped || outcome.Subscription.ID != "sub-1" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if _, _, renewals := up.counts(); renewals != 1 {
		t.Fatalf("expected one PATCH, got %d", renewals)
	}

	stored, err := app.Stores.SubscriptionStore().Get(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("load stored subscription: %v", err)
	}
	if stored.Status != core.SubscriptionStatusActive || stored.LastRenewedAt == nil {
		t.Fatalf("expected active subscription with renewal time, got %+v", stored)
	}
	if stored.NotificationURL != "https://intake.example.com/notifications" {
		t.Fatalf("expected notification url recorded, got %q", stored.NotificationURL)
	}
}

func TestSetup_ProcessDeliveryThroughFacade(t *testing.T) {
	app, _, enqueuer, _ := setupApp(t)
	facade, err := app.Facade()
	if err != nil {
		t.Fatalf("facade: %v", err)
	}
	forged := sprintNotification()
	forged.ClientState = "forged"

	response, err := facade.ProcessDelivery(context.Background(), "req-1", core.DeliveryBatch{
		Value: []core.Notification{sprintNotification(), forged},
	})
	if err != nil {
		t.Fatalf("process delivery: %v", err)
	}
	if len(response.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(response.Results))
	}
	if response.Results[1].Reason != core.ReasonAuth || !response.Results[1].Skipped {
		t.Fatalf("expected auth skip for forged entry, got %+v", response.Results[1])
	}
	if len(enqueuer.snapshot()) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(enqueuer.snapshot()))
	}
}

func TestSetup_RejectsInvalidConfig(t *testing.T) {
	cfg := intake.DefaultConfig()
	cfg.Subscription.RenewalWindow = cfg.Subscription.MaxLifetime
	if _, err := intake.Setup(context.Background(), cfg, intake.WithoutDatabase()); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestSetup_WithoutDatabaseSkipsStores(t *testing.T) {
	cfg := intake.DefaultConfig()
	cfg.Storage.Backend = core.StorageBackendMemory
	app, err := intake.Setup(context.Background(), cfg, intake.WithoutDatabase(), intake.WithEnqueuer(&recordingEnqueuer{}))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer func() { _ = app.Close() }()
	if app.Stores != nil {
		t.Fatalf("expected no stores")
	}
	if _, err := app.Queries(); err == nil {
		t.Fatalf("expected queries to require a database")
	}
	outcome, err := app.Renewer.Tick(context.Background())
	if err != nil {
		t.Fatalf("expected no-op tick without a subscription, got %v", err)
	}
	if !outcome.Skipped {
		t.Fatalf("expected skipped outcome, got %+v", outcome)
	}
}

func TestSetup_MirrorsCommandsIntoJobQueue(t *testing.T) {
	app, _, _, _ := setupApp(t)
	queue := app.Commands.Queue()
	if queue == nil {
		t.Fatalf("expected a queue registry")
	}
	for _, messageType := range []string{intakecommand.TypeProcessDelivery, intakecommand.TypeRenewSubscription} {
		if _, ok := queue.Get(messageType); !ok {
			t.Fatalf("expected %s mirrored for job workers", messageType)
		}
	}
}

func TestSetup_QueriesReadArtifactIndex(t *testing.T) {
	app, _, _, _ := setupApp(t)
	ctx := context.Background()
	results := app.Receiver.Handle(ctx, "req-q", core.DeliveryBatch{Value: []core.Notification{sprintNotification()}})
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("expected a processed result, got %#v", results)
	}

	queries, err := app.Queries()
	if err != nil {
		t.Fatalf("queries: %v", err)
	}
	records, err := queries.ProjectArtifacts.Query(ctx, query.ListProjectArtifactsMessage{ProjectName: "yakshaver"})
	if err != nil {
		t.Fatalf("list artifacts: %v", err)
	}
	if len(records) != 1 || records[0].StoragePath != "yakshaver/2026-01-26-sprint-review.vtt" {
		t.Fatalf("unexpected artifacts %#v", records)
	}
	entry, err := queries.Artifact.Query(ctx, query.GetArtifactMessage{StoragePath: records[0].StoragePath})
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	if entry.Writes != 1 {
		t.Fatalf("expected one write, got %d", entry.Writes)
	}
}
