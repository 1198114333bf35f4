package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-transcript-intake/artifacts"
	"github.com/goliatone/go-transcript-intake/classify"
	"github.com/goliatone/go-transcript-intake/core"
	"golang.org/x/sync/errgroup"
)

const (
	ValidationTokenParam = "validationToken"

	contentTypeText = "text/plain"
	contentTypeJSON = "application/json"

	defaultConcurrency  = 4
	defaultMaxBodyBytes = 4 << 20
)

type Classifier interface {
	Classify(ctx context.Context, notification core.Notification) (classify.Decision, error)
}

type ArtifactWriter interface {
	Write(ctx context.Context, req artifacts.WriteRequest) (core.TranscriptArtifact, error)
}

type JobDispatcher interface {
	Dispatch(ctx context.Context, storagePath string, projectName string) (core.ProcessingJobTrigger, error)
}

// Request is the transport-neutral view of one inbound call.
type Request struct {
	Method    string
	Query     url.Values
	Body      []byte
	RequestID string
}

type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

type Dependencies struct {
	Classifier Classifier
	Fetcher    core.TranscriptFetcher
	Writer     ArtifactWriter
	Dispatcher JobDispatcher
	Telemetry  core.Telemetry
}

// Receiver answers handshakes and processes notification batches. It holds no
// per-request state, so one value serves concurrent requests.
type Receiver struct {
	Verifier     ClientStateVerifier
	Classifier   Classifier
	Fetcher      core.TranscriptFetcher
	Writer       ArtifactWriter
	Dispatcher   JobDispatcher
	Retry        core.RetryPolicy
	Concurrency  int
	MaxBodyBytes int64
	Telemetry    core.Telemetry
}

func NewReceiver(cfg core.ReceiverConfig, clientState string, deps Dependencies) *Receiver {
	telemetry := deps.Telemetry
	if telemetry.Logger == nil {
		telemetry = core.NewTelemetry(nil, deps.Telemetry.Metrics)
	}
	return &Receiver{
		Verifier:     ClientStateVerifier{Secret: clientState},
		Classifier:   deps.Classifier,
		Fetcher:      deps.Fetcher,
		Writer:       deps.Writer,
		Dispatcher:   deps.Dispatcher,
		Retry:        cfg.RetryPolicy(),
		Concurrency:  cfg.Concurrency,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Telemetry:    telemetry,
	}
}

// ValidationToken returns the handshake token carried by query. The boolean
// is false when the request is not a handshake.
func ValidationToken(query url.Values) (string, bool) {
	values, ok := query[ValidationTokenParam]
	if !ok {
		return "", false
	}
	if len(values) == 0 {
		return "", true
	}
	return values[0], true
}

// Respond maps one request to its response without touching the network
// layer.
func (r *Receiver) Respond(ctx context.Context, req Request) Response {
	if token, ok := ValidationToken(req.Query); ok {
		if token == "" {
			return errorResponse(http.StatusBadRequest, core.BadInputError("webhooks: validation token is empty", nil))
		}
		return Response{
			StatusCode:  http.StatusOK,
			ContentType: contentTypeText,
			Body:        []byte(token),
		}
	}

	if method := strings.ToUpper(strings.TrimSpace(req.Method)); method != "" && method != http.MethodPost {
		return errorResponse(http.StatusMethodNotAllowed, core.BadInputError("webhooks: deliveries must be posted", map[string]any{
			"method": method,
		}))
	}
	if limit := r.maxBodyBytes(); int64(len(req.Body)) > limit {
		return errorResponse(http.StatusRequestEntityTooLarge, core.BadInputError("webhooks: delivery body too large", map[string]any{
			"limit_bytes": limit,
		}))
	}

	var batch core.DeliveryBatch
	if err := json.Unmarshal(req.Body, &batch); err != nil {
		return errorResponse(http.StatusBadRequest, core.BadInputError("webhooks: delivery body is not valid json", map[string]any{
			"error": err.Error(),
		}))
	}

	results := r.Handle(ctx, req.RequestID, batch)
	status := http.StatusOK
	if allAuthSkipped(results) {
		status = http.StatusUnauthorized
	}
	body, err := json.Marshal(core.DeliveryResponse{Results: results})
	if err != nil {
		return errorResponse(0, err)
	}
	return Response{StatusCode: status, ContentType: contentTypeJSON, Body: body}
}

// Handle processes every notification of batch and returns one result per
// entry in delivery order. A failing entry never affects its siblings.
func (r *Receiver) Handle(ctx context.Context, requestID string, batch core.DeliveryBatch) []core.NotificationResult {
	results := make([]core.NotificationResult, len(batch.Value))
	if len(batch.Value) == 0 {
		return results
	}

	var group errgroup.Group
	group.SetLimit(r.concurrency())
	for i, notification := range batch.Value {
		group.Go(func() error {
			results[i] = r.processSafely(ctx, requestID, notification)
			return nil
		})
	}
	_ = group.Wait()
	return results
}

func (r *Receiver) processSafely(ctx context.Context, requestID string, notification core.Notification) (result core.NotificationResult) {
	startedAt := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			result = core.FailedResult(notification.ResourceID(), core.ReasonInvalid, fmt.Errorf("webhooks: notification handler panic: %v", recovered))
		}
		r.observe(ctx, startedAt, requestID, result)
	}()
	return r.process(ctx, notification)
}

func (r *Receiver) process(ctx context.Context, notification core.Notification) core.NotificationResult {
	resourceID := notification.ResourceID()
	if err := r.Verifier.Verify(notification); err != nil {
		return core.SkippedResult(resourceID, core.ReasonAuth)
	}
	if r.Classifier == nil || r.Writer == nil || r.Dispatcher == nil {
		return core.FailedResult(resourceID, core.ReasonInvalid, fmt.Errorf("webhooks: receiver is not fully configured"))
	}

	decision, err := r.Classifier.Classify(ctx, notification)
	if err != nil {
		reason := decision.Reason
		if reason == "" {
			reason = core.ReasonLookupFailed
		}
		return core.FailedResult(resourceID, reason, err)
	}
	if !decision.Actionable {
		return core.SkippedResult(resourceID, decision.Reason)
	}

	content, reason, err := r.content(ctx, notification)
	if err != nil {
		return core.FailedResult(resourceID, reason, err)
	}

	resolution := decision.Resolution
	artifact, err := r.Writer.Write(ctx, artifacts.WriteRequest{
		ProjectName: resolution.ProjectName,
		Filename:    resolution.Filename,
		Content:     content,
		ResourceID:  resourceID,
		MeetingID:   notification.MeetingID(),
	})
	if err != nil {
		failed := core.FailedResult(resourceID, core.ReasonWriteFailed, err)
		failed.ProjectName = resolution.ProjectName
		failed.Filename = resolution.Filename
		return failed
	}

	processed := core.NotificationResult{
		Success:     true,
		Reason:      core.ReasonProcessed,
		ResourceID:  resourceID,
		BlobPath:    artifact.StoragePath,
		ProjectName: artifact.ProjectName,
		Filename:    artifact.Filename,
	}
	if _, err := r.Dispatcher.Dispatch(ctx, artifact.StoragePath, artifact.ProjectName); err != nil {
		processed.Success = false
		processed.Reason = core.ReasonDispatchFailed
		processed.Error = err.Error()
	}
	return processed
}

// content returns the inlined transcript or fetches it with bounded retry.
func (r *Receiver) content(ctx context.Context, notification core.Notification) ([]byte, string, error) {
	if inline := notification.ResourceData.Content; inline != "" {
		return []byte(inline), "", nil
	}
	transcriptID := notification.ResourceID()
	if transcriptID == "" {
		return nil, core.ReasonInvalid, core.BadInputError("webhooks: transcript id is missing", nil)
	}
	if r.Fetcher == nil {
		return nil, core.ReasonFetchFailed, fmt.Errorf("webhooks: transcript fetcher is not configured")
	}
	var content []byte
	_, err := r.Retry.Do(ctx, func(ctx context.Context) error {
		fetched, fetchErr := r.Fetcher.FetchTranscript(ctx, notification.OrganizerID(), notification.MeetingID(), transcriptID)
		if fetchErr != nil {
			return fetchErr
		}
		content = fetched
		return nil
	})
	if err != nil {
		return nil, core.ReasonFetchFailed, err
	}
	return content, "", nil
}

func (r *Receiver) observe(ctx context.Context, startedAt time.Time, requestID string, result core.NotificationResult) {
	status := "processed"
	switch {
	case result.Skipped:
		status = "skipped"
	case !result.Success:
		status = "failed"
	}
	fields := map[string]any{
		"request_id":  requestID,
		"resource_id": result.ResourceID,
		"reason":      result.Reason,
		"status":      status,
	}
	if result.BlobPath != "" {
		fields["blob_path"] = result.BlobPath
	}
	var err error
	if !result.Success {
		err = errors.New(result.Error)
	}
	r.Telemetry.Observe(ctx, startedAt, "notification", err, fields)
}

func (r *Receiver) concurrency() int {
	if r.Concurrency > 0 {
		return r.Concurrency
	}
	return defaultConcurrency
}

func (r *Receiver) maxBodyBytes() int64 {
	if r.MaxBodyBytes > 0 {
		return r.MaxBodyBytes
	}
	return defaultMaxBodyBytes
}

func allAuthSkipped(results []core.NotificationResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, result := range results {
		if !result.Skipped || result.Reason != core.ReasonAuth {
			return false
		}
	}
	return true
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code     int            `json:"code"`
	TextCode string         `json:"text_code"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// errorResponse renders err as the rich error envelope. A non-zero status
// overrides the mapped code.
func errorResponse(status int, err error) Response {
	mapped := core.MapError(err)
	if status > 0 {
		mapped.Code = status
	}
	body, _ := json.Marshal(errorBody{Error: errorDetail{
		Code:     mapped.Code,
		TextCode: mapped.TextCode,
		Message:  mapped.Message,
		Metadata: mapped.Metadata,
	}})
	return Response{
		StatusCode:  mapped.Code,
		ContentType: contentTypeJSON,
		Body:        body,
	}
}
