// Package auth obtains bearer credentials from the identity provider using
// the OAuth2 client-credential grant.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-transcript-intake/core"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultRenewBefore = 2 * time.Minute
	defaultTokenTTL    = 5 * time.Minute
)

type ClientCredentialsConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
	RenewBefore  time.Duration
	HTTPClient   *http.Client
	Now          func() time.Time
}

// ClientCredentialsSource caches the issued token and exchanges a new one
// once the cached token is within RenewBefore of expiring. It does not retry;
// callers wrap it in their own retry policy.
type ClientCredentialsSource struct {
	config   ClientCredentialsConfig
	exchange clientcredentials.Config

	mu     sync.Mutex
	cached core.Credential
}

func NewClientCredentialsSource(cfg ClientCredentialsConfig) *ClientCredentialsSource {
	renewBefore := cfg.RenewBefore
	if renewBefore <= 0 {
		renewBefore = defaultRenewBefore
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	scopes := scopeSet(cfg.Scopes)
	normalized := ClientCredentialsConfig{
		ClientID:     strings.TrimSpace(cfg.ClientID),
		ClientSecret: strings.TrimSpace(cfg.ClientSecret),
		TokenURL:     strings.TrimSpace(cfg.TokenURL),
		Scopes:       scopes,
		RenewBefore:  renewBefore,
		HTTPClient:   cfg.HTTPClient,
		Now:          now,
	}
	return &ClientCredentialsSource{
		config: normalized,
		exchange: clientcredentials.Config{
			ClientID:     normalized.ClientID,
			ClientSecret: normalized.ClientSecret,
			TokenURL:     normalized.TokenURL,
			Scopes:       scopes,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
	}
}

// FromIdentityConfig builds a source for the configured tenant, failing when
// credentials are missing.
func FromIdentityConfig(cfg core.IdentityConfig, client *http.Client) (*ClientCredentialsSource, error) {
	if err := (core.Config{Identity: cfg}).ValidateRenewal(); err != nil {
		return nil, err
	}
	return NewClientCredentialsSource(ClientCredentialsConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL(),
		Scopes:       cfg.Scopes,
		HTTPClient:   client,
	}), nil
}

func (s *ClientCredentialsSource) Credential(ctx context.Context) (core.Credential, error) {
	if s == nil {
		return core.Credential{}, core.ConfigError("auth: credential source is not configured", nil)
	}
	if s.config.ClientID == "" || s.config.ClientSecret == "" {
		return core.Credential{}, core.ConfigError("auth: client id and secret are required", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.config.Now()
	if s.cached.AccessToken != "" && s.cached.ExpiresAt.After(now.Add(s.config.RenewBefore)) {
		return s.cached, nil
	}

	exchangeCtx := ctx
	if s.config.HTTPClient != nil {
		exchangeCtx = context.WithValue(ctx, oauth2.HTTPClient, s.config.HTTPClient)
	}
	token, err := s.exchange.Token(exchangeCtx)
	if err != nil {
		s.cached = core.Credential{}
		return core.Credential{}, classifyTokenError(err, now)
	}

	expiresAt := token.Expiry.UTC()
	if token.Expiry.IsZero() {
		expiresAt = now.Add(defaultTokenTTL)
	}
	s.cached = core.Credential{
		TokenType:   token.Type(),
		AccessToken: token.AccessToken,
		ExpiresAt:   expiresAt,
	}
	return s.cached, nil
}

// Invalidate drops the cached token so the next call exchanges again.
func (s *ClientCredentialsSource) Invalidate() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.cached = core.Credential{}
	s.mu.Unlock()
}

func classifyTokenError(err error, now time.Time) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		retryAfter, _ := core.ParseRetryAfter(retrieveErr.Response.Header, now)
		return &core.ProviderError{
			Operation:  "token exchange",
			StatusCode: retrieveErr.Response.StatusCode,
			RetryAfter: retryAfter,
			Body:       tokenErrorBody(retrieveErr.ErrorCode, retrieveErr.Body),
			Err:        err,
		}
	}
	return &core.ProviderError{Operation: "token exchange", Err: err}
}

var _ core.CredentialSource = (*ClientCredentialsSource)(nil)
