// Package renewal keeps the provider subscription alive by extending its
// expiry on a fixed schedule.
package renewal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-transcript-intake/core"
	"github.com/google/uuid"
)

const (
	defaultRenewAttempts = 2
	defaultRenewBackoff  = 5 * time.Second
	maxRenewHint         = time.Minute
)

var ErrRenewalInProgress = errors.New("renewal: a renewal is already in flight")

type State int32

const (
	StateIdle State = iota
	StateRenewing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRenewing:
		return "renewing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Outcome summarises one tick. Skipped is set when no subscription has been
// provisioned yet. Attempts counts renewal calls; CredentialAttempts counts
// token acquisitions, which retry on their own budget.
type Outcome struct {
	Skipped            bool
	RequestID          string
	Subscription       core.Subscription
	Attempts           int
	CredentialAttempts int
}

type attemptCounts struct {
	credential int
	renewal    int
}

type invalidator interface {
	Invalidate()
}

type Option func(*Renewer)

func WithStore(store core.SubscriptionStore) Option {
	return func(r *Renewer) {
		r.store = store
	}
}

func WithRetryPolicy(policy core.RetryPolicy) Option {
	return func(r *Renewer) {
		r.retry = policy
	}
}

func WithTelemetry(telemetry core.Telemetry) Option {
	return func(r *Renewer) {
		r.telemetry = telemetry
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Renewer) {
		if now != nil {
			r.now = now
		}
	}
}

func WithRequestIDs(next func() string) Option {
	return func(r *Renewer) {
		if next != nil {
			r.requestID = next
		}
	}
}

// Renewer is a two-state machine: Idle between ticks and Renewing while a
// renewal is in flight. Overlapping ticks are rejected, never queued.
type Renewer struct {
	cfg         core.Config
	credentials core.CredentialSource
	client      core.SubscriptionClient
	store       core.SubscriptionStore
	retry       core.RetryPolicy
	telemetry   core.Telemetry
	now         func() time.Time
	requestID   func() string
	state       atomic.Int32
}

func NewRenewer(cfg core.Config, credentials core.CredentialSource, client core.SubscriptionClient, opts ...Option) *Renewer {
	r := &Renewer{
		cfg:         cfg,
		credentials: credentials,
		client:      client,
		retry: core.RetryPolicy{
			MaxAttempts: defaultRenewAttempts,
			Backoff:     core.FixedBackoff(defaultRenewBackoff),
			MaxHint:     maxRenewHint,
		},
		telemetry: core.NewTelemetry(nil, nil),
		now:       func() time.Time { return time.Now().UTC() },
		requestID: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Renewer) State() State {
	return State(r.state.Load())
}

// NextExpiry is the expiry requested by a renewal issued at now.
func (r *Renewer) NextExpiry(now time.Time) time.Time {
	return now.Add(r.cfg.Subscription.RenewalWindow).UTC()
}

// Tick runs one renewal. Errors are logged and returned; the next scheduled
// tick is the recovery path.
func (r *Renewer) Tick(ctx context.Context) (Outcome, error) {
	if !r.state.CompareAndSwap(int32(StateIdle), int32(StateRenewing)) {
		return Outcome{}, ErrRenewalInProgress
	}
	defer r.state.Store(int32(StateIdle))

	subscriptionID := strings.TrimSpace(r.cfg.Subscription.ID)
	outcome := Outcome{RequestID: r.requestID()}
	fields := map[string]any{
		"subscription": core.ShortSubscriptionID(subscriptionID),
		"request_id":   outcome.RequestID,
	}

	if !r.cfg.HasSubscription() {
		outcome.Skipped = true
		r.telemetry.LogInfo(ctx, "no subscription configured, skipping renewal", fields)
		return outcome, nil
	}
	if err := r.cfg.ValidateRenewal(); err != nil {
		r.telemetry.LogError(ctx, "renewal aborted: configuration incomplete", withError(fields, err))
		return outcome, err
	}
	if r.credentials == nil || r.client == nil {
		err := core.ConfigError("renewal: credential source and subscription client are required", nil)
		r.telemetry.LogError(ctx, "renewal aborted: not wired", withError(fields, err))
		return outcome, err
	}

	if timeout := r.cfg.Subscription.RenewTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	startedAt := time.Now()
	renewed, attempts, err := r.renew(ctx, subscriptionID)
	outcome.Attempts = attempts.renewal
	outcome.CredentialAttempts = attempts.credential
	if err != nil {
		r.markErrored(context.WithoutCancel(ctx), subscriptionID, err, fields)
		r.telemetry.Observe(ctx, startedAt, "subscription_renewal", err, withAttempts(fields, attempts))
		return outcome, err
	}

	outcome.Subscription = r.persist(ctx, renewed, fields)
	observed := withAttempts(fields, attempts)
	observed["expires_at"] = renewed.ExpiresAt.Format(time.RFC3339)
	r.telemetry.Observe(ctx, startedAt, "subscription_renewal", nil, observed)
	return outcome, nil
}

func (r *Renewer) renew(ctx context.Context, subscriptionID string) (core.Subscription, attemptCounts, error) {
	var attempts attemptCounts
	var credential core.Credential
	var err error
	attempts.credential, err = r.retry.Do(ctx, func(ctx context.Context) error {
		found, credErr := r.credentials.Credential(ctx)
		if credErr != nil {
			return credErr
		}
		credential = found
		return nil
	})
	if err != nil {
		return core.Subscription{}, attempts, fmt.Errorf("renewal: acquire credential: %w", err)
	}

	expiresAt := r.NextExpiry(r.now())
	var renewed core.Subscription
	attempts.renewal, err = r.retry.Do(ctx, func(ctx context.Context) error {
		result, renewErr := r.client.RenewSubscription(ctx, credential, core.RenewSubscriptionRequest{
			SubscriptionID: subscriptionID,
			ExpiresAt:      expiresAt,
		})
		if renewErr != nil {
			r.invalidateOnUnauthorized(renewErr)
			return renewErr
		}
		renewed = result
		return nil
	})
	if err != nil {
		return core.Subscription{}, attempts, fmt.Errorf("renewal: renew subscription: %w", err)
	}
	if renewed.ID == "" {
		renewed.ID = subscriptionID
	}
	if renewed.ExpiresAt.IsZero() {
		renewed.ExpiresAt = expiresAt
	}
	return renewed, attempts, nil
}

// invalidateOnUnauthorized drops a cached token the provider rejected so the
// next tick exchanges a fresh one.
func (r *Renewer) invalidateOnUnauthorized(err error) {
	var providerErr *core.ProviderError
	if !errors.As(err, &providerErr) || providerErr.StatusCode != http.StatusUnauthorized {
		return
	}
	if source, ok := r.credentials.(invalidator); ok {
		source.Invalidate()
	}
}

func (r *Renewer) persist(ctx context.Context, renewed core.Subscription, fields map[string]any) core.Subscription {
	renewedAt := r.now()
	renewed.Status = core.SubscriptionStatusActive
	renewed.LastRenewedAt = &renewedAt
	if renewed.Resource == "" {
		renewed.Resource = r.cfg.Subscription.Resource
	}
	if renewed.NotificationURL == "" {
		renewed.NotificationURL = r.cfg.Subscription.NotificationURL
	}
	if r.store == nil {
		return renewed
	}
	record, err := r.store.Upsert(ctx, core.UpsertSubscriptionInput{
		ID:              renewed.ID,
		Resource:        renewed.Resource,
		ExpiresAt:       renewed.ExpiresAt,
		NotificationURL: renewed.NotificationURL,
		Status:          core.SubscriptionStatusActive,
		LastRenewedAt:   &renewedAt,
		Metadata:        map[string]any{"request_id": fields["request_id"]},
	})
	if err != nil {
		r.telemetry.LogWarn(ctx, "renewed subscription could not be recorded", withError(fields, err))
		return renewed
	}
	return record
}

func (r *Renewer) markErrored(ctx context.Context, subscriptionID string, cause error, fields map[string]any) {
	if r.store == nil {
		return
	}
	if err := r.store.UpdateState(ctx, subscriptionID, core.SubscriptionStatusErrored, cause.Error()); err != nil {
		r.telemetry.LogWarn(ctx, "subscription state could not be updated", withError(fields, err))
	}
}

func withError(fields map[string]any, err error) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		out[key] = value
	}
	out["error"] = err.Error()
	return out
}

func withAttempts(fields map[string]any, attempts attemptCounts) map[string]any {
	out := make(map[string]any, len(fields)+2)
	for key, value := range fields {
		out[key] = value
	}
	out["attempts"] = attempts.renewal
	out["credential_attempts"] = attempts.credential
	return out
}
