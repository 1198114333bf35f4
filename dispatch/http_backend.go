package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-transcript-intake/core"
	"github.com/goliatone/go-transcript-intake/transport"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

type executionRequest struct {
	JobID          string         `json:"job_id"`
	ScriptPath     string         `json:"script_path,omitempty"`
	Parameters     map[string]any `json:"parameters"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	DedupPolicy    string         `json:"dedup_policy,omitempty"`
}

// HTTPJobBackend acknowledges execution messages by posting them to a remote
// job runner. A 2xx answer means the job was accepted, not that it ran.
type HTTPJobBackend struct {
	rest    *transport.RESTAdapter
	url     string
	timeout time.Duration
	logger  job.Logger
}

func NewHTTPJobBackend(backendURL string, rest *transport.RESTAdapter, timeout time.Duration) *HTTPJobBackend {
	if rest == nil {
		rest = transport.NewRESTAdapter(nil)
	}
	return &HTTPJobBackend{
		rest:    rest,
		url:     strings.TrimSpace(backendURL),
		timeout: timeout,
	}
}

// WithLogger sets the go-job logger that records accepted jobs.
func (b *HTTPJobBackend) WithLogger(logger job.Logger) *HTTPJobBackend {
	if b != nil {
		b.logger = logger
	}
	return b
}

func (b *HTTPJobBackend) Enqueue(ctx context.Context, msg *job.ExecutionMessage) error {
	if b == nil || b.rest == nil {
		return fmt.Errorf("dispatch: http job backend is not configured")
	}
	if b.url == "" {
		return core.ConfigError("dispatch: jobs.backend_url is required", nil)
	}
	if msg == nil {
		return core.BadInputError("dispatch: execution message is required", nil)
	}
	payload, err := json.Marshal(executionRequest{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	})
	if err != nil {
		return core.WrapError(err, goerrors.CategoryInternal, "dispatch: encode execution message", nil)
	}
	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		headers["Idempotency-Key"] = key
	}
	res, err := b.rest.Do(ctx, transport.Request{
		Operation: "job dispatch",
		Method:    http.MethodPost,
		URL:       b.url,
		Headers:   headers,
		Body:      payload,
		Timeout:   b.timeout,
	})
	if err != nil {
		return err
	}
	if b.logger != nil {
		b.logger.Info("execution job accepted",
			"job_id", msg.JobID,
			"idempotency_key", msg.IdempotencyKey,
			"status_code", res.StatusCode,
		)
	}
	return nil
}

var _ queue.Enqueuer = (*HTTPJobBackend)(nil)
