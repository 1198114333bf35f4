// Package dispatch hands written artifacts to the execution-job backend.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-transcript-intake/core"

	"github.com/goliatone/go-job/queue"
)

type Option func(*Dispatcher)

func WithRetryPolicy(policy core.RetryPolicy) Option {
	return func(d *Dispatcher) {
		d.retry = policy
	}
}

func WithTelemetry(telemetry core.Telemetry) Option {
	return func(d *Dispatcher) {
		d.telemetry = telemetry
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// Dispatcher enqueues one execution message per artifact. It never waits for
// the job to run.
type Dispatcher struct {
	enqueuer  queue.Enqueuer
	template  string
	model     string
	retry     core.RetryPolicy
	telemetry core.Telemetry
	now       func() time.Time
}

func NewDispatcher(enqueuer queue.Enqueuer, cfg core.JobsConfig, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		enqueuer:  enqueuer,
		template:  strings.TrimSpace(cfg.Template),
		model:     strings.TrimSpace(cfg.Model),
		retry:     core.RetryPolicy{MaxAttempts: 3},
		telemetry: core.NewTelemetry(nil, nil),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Dispatch sends the trigger for storagePath. Transient backend failures are
// retried within the policy budget; the last error is returned after that.
func (d *Dispatcher) Dispatch(ctx context.Context, storagePath string, projectName string) (core.ProcessingJobTrigger, error) {
	if d == nil || d.enqueuer == nil {
		return core.ProcessingJobTrigger{}, fmt.Errorf("dispatch: enqueuer is not configured")
	}
	storagePath = strings.TrimSpace(storagePath)
	projectName = strings.TrimSpace(projectName)
	if storagePath == "" {
		return core.ProcessingJobTrigger{}, core.BadInputError("dispatch: storage path is required", nil)
	}
	if d.template == "" {
		return core.ProcessingJobTrigger{}, core.ConfigError("dispatch: jobs.template is required", nil)
	}

	trigger := core.ProcessingJobTrigger{
		Template:       d.template,
		StoragePath:    storagePath,
		ProjectName:    projectName,
		Model:          d.model,
		IdempotencyKey: IdempotencyKey(storagePath),
	}
	msg := ToExecutionMessage(trigger)

	startedAt := time.Now()
	attempts, err := d.retry.Do(ctx, func(ctx context.Context) error {
		return d.enqueuer.Enqueue(ctx, msg)
	})
	d.telemetry.Observe(ctx, startedAt, "job_dispatch", err, map[string]any{
		"blob_path":    storagePath,
		"project_name": projectName,
		"template":     d.template,
		"attempts":     attempts,
	})
	if err != nil {
		return core.ProcessingJobTrigger{}, err
	}
	trigger.DispatchedAt = d.now()
	return trigger, nil
}
