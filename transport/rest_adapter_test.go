package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-transcript-intake/core"
)

type staticCredentials struct {
	token string
	err   error
	calls int
}

func (s *staticCredentials) Credential(context.Context) (core.Credential, error) {
	s.calls++
	if s.err != nil {
		return core.Credential{}, s.err
	}
	return core.Credential{AccessToken: s.token}, nil
}

func TestRESTAdapter_SendsRequestWithBearerToken(t *testing.T) {
	var gotAuth, gotQuery, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("$format")
		gotMethod = r.Method
		_, _ = w.Write([]byte("WEBVTT"))
	}))
	defer server.Close()

	credentials := &staticCredentials{token: "tok-1"}
	adapter := NewRESTAdapter(server.Client()).WithCredentials(credentials)
	res, err := adapter.Do(context.Background(), Request{
		Operation: "fetch transcript",
		URL:       server.URL + "/content",
		Query:     map[string]string{"$format": "text/vtt"},
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if string(res.Body) != "WEBVTT" || res.StatusCode != http.StatusOK {
		t.Fatalf("unexpected response %+v", res)
	}
	if gotAuth != "Bearer tok-1" || gotQuery != "text/vtt" || gotMethod != http.MethodGet {
		t.Fatalf("unexpected request auth=%q query=%q method=%q", gotAuth, gotQuery, gotMethod)
	}
}

func TestRESTAdapter_ExplicitAuthorizationWins(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	credentials := &staticCredentials{token: "tok-1"}
	adapter := NewRESTAdapter(server.Client()).WithCredentials(credentials)
	if _, err := adapter.Do(context.Background(), Request{
		URL:     server.URL,
		Headers: map[string]string{"Authorization": "Bearer explicit"},
	}); err != nil {
		t.Fatalf("do: %v", err)
	}
	if gotAuth != "Bearer explicit" || credentials.calls != 0 {
		t.Fatalf("expected explicit header to be kept, got %q after %d credential calls", gotAuth, credentials.calls)
	}
}

func TestRESTAdapter_NonSuccessBecomesProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "4")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":"TooManyRequests"}}`))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	_, err := adapter.Do(context.Background(), Request{Operation: "renew subscription", Method: http.MethodPatch, URL: server.URL})
	var providerErr *core.ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected provider error, got %T %v", err, err)
	}
	if providerErr.StatusCode != http.StatusTooManyRequests || providerErr.RetryAfter != 4*time.Second {
		t.Fatalf("unexpected provider error %+v", providerErr)
	}
	if !core.IsTransient(err) {
		t.Fatalf("expected throttling to be transient")
	}
}

func TestRESTAdapter_TransportFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewRESTAdapter(nil).Do(context.Background(), Request{URL: url})
	if err == nil {
		t.Fatalf("expected transport failure")
	}
	if !core.IsTransient(err) {
		t.Fatalf("expected transport failure to be transient, got %v", err)
	}
}

func TestRESTAdapter_ResponseLimitReturnsRichError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.MaxResponseBodyBytes = 4

	_, err := adapter.Do(context.Background(), Request{Method: http.MethodGet, URL: server.URL})
	if err == nil {
		t.Fatalf("expected response body limit error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryExternal {
		t.Fatalf("expected external category, got %q", rich.Category)
	}
	if rich.TextCode != core.ErrorExternalFailure {
		t.Fatalf("expected %q text code, got %q", core.ErrorExternalFailure, rich.TextCode)
	}
	if rich.Code != http.StatusBadGateway {
		t.Fatalf("expected %d code, got %d", http.StatusBadGateway, rich.Code)
	}
}

func TestRESTAdapter_InvalidURLIsNotTransient(t *testing.T) {
	_, err := NewRESTAdapter(nil).Do(context.Background(), Request{URL: "not a url"})
	if err == nil {
		t.Fatalf("expected invalid url error")
	}
	if core.IsTransient(err) {
		t.Fatalf("expected invalid url to be permanent")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.ErrorBadInput {
		t.Fatalf("expected bad input envelope, got %v", err)
	}
}

func TestRESTAdapter_CredentialFailureStopsRequest(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer server.Close()

	credErr := &core.ProviderError{Operation: "token exchange", StatusCode: http.StatusServiceUnavailable}
	adapter := NewRESTAdapter(server.Client()).WithCredentials(&staticCredentials{err: credErr})
	_, err := adapter.Do(context.Background(), Request{URL: server.URL})
	if !errors.Is(err, credErr) {
		t.Fatalf("expected credential error, got %v", err)
	}
	if called {
		t.Fatalf("expected no upstream call without a credential")
	}
}
