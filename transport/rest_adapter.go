// Package transport executes REST calls against upstream collaborators and
// turns non-2xx answers into classified provider errors.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-transcript-intake/core"
)

const defaultRESTClientTimeout = 30 * time.Second
const defaultRESTResponseBodyLimit int64 = 10 << 20 // 10 MiB

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Request struct {
	Operation            string
	Method               string
	URL                  string
	Query                map[string]string
	Headers              map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// RESTAdapter sends requests through Client. When Credentials is set every
// request without an explicit Authorization header carries a bearer token.
type RESTAdapter struct {
	Client               HTTPDoer
	Credentials          core.CredentialSource
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
	Now                  func() time.Time
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultRESTClientTimeout}
	}
	return &RESTAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: defaultRESTResponseBodyLimit,
	}
}

func (a *RESTAdapter) WithCredentials(source core.CredentialSource) *RESTAdapter {
	if a != nil {
		a.Credentials = source
	}
	return a
}

// Do executes req. Transport failures and non-2xx responses come back as
// *core.ProviderError so callers can classify them; malformed requests come
// back as validation errors.
func (a *RESTAdapter) Do(ctx context.Context, req Request) (Response, error) {
	if a == nil || a.Client == nil {
		return Response{}, core.WrapError(
			nil,
			goerrors.CategoryInternal,
			"transport: rest adapter requires an http client",
			nil,
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	operation := strings.TrimSpace(req.Operation)
	if operation == "" {
		operation = "rest call"
	}

	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	parsedURL, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return Response{}, core.WrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: invalid request url",
			map[string]any{"operation": operation, "url": strings.TrimSpace(req.URL)},
		)
	}

	if len(req.Query) > 0 {
		query := parsedURL.Query()
		for key, value := range req.Query {
			if strings.TrimSpace(key) == "" {
				continue
			}
			query.Set(strings.TrimSpace(key), strings.TrimSpace(value))
		}
		parsedURL.RawQuery = query.Encode()
	}

	requestCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, method, parsedURL.String(), bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, core.WrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: create http request",
			map[string]any{"operation": operation, "method": method},
		)
	}
	for key, value := range a.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	for key, value := range req.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	if a.Credentials != nil && httpReq.Header.Get("Authorization") == "" {
		credential, credErr := a.Credentials.Credential(ctx)
		if credErr != nil {
			return Response{}, credErr
		}
		httpReq.Header.Set("Authorization", credential.AuthorizationHeader())
	}

	startedAt := time.Now()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, &core.ProviderError{
			Operation: operation,
			Err: core.WrapError(
				err,
				goerrors.CategoryExternal,
				"transport: execute http request",
				map[string]any{"operation": operation, "method": method},
			),
		}
	}
	defer httpRes.Body.Close()

	maxBodyBytes := resolveResponseBodyLimit(req.MaxResponseBodyBytes, a.MaxResponseBodyBytes)
	body, err := io.ReadAll(io.LimitReader(httpRes.Body, maxBodyBytes+1))
	if err != nil {
		return Response{}, &core.ProviderError{
			Operation: operation,
			Err: core.WrapError(
				err,
				goerrors.CategoryExternal,
				"transport: read response body",
				map[string]any{"operation": operation, "status_code": httpRes.StatusCode},
			),
		}
	}
	if int64(len(body)) > maxBodyBytes {
		return Response{}, core.WrapError(
			nil,
			goerrors.CategoryExternal,
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", maxBodyBytes),
			map[string]any{
				"operation":        operation,
				"status_code":      httpRes.StatusCode,
				"response_limit_b": maxBodyBytes,
			},
		)
	}

	res := Response{
		StatusCode: httpRes.StatusCode,
		Headers:    httpRes.Header.Clone(),
		Body:       body,
		Duration:   time.Since(startedAt),
	}
	if httpRes.StatusCode < 200 || httpRes.StatusCode > 299 {
		retryAfter, _ := core.ParseRetryAfter(httpRes.Header, a.now())
		return res, &core.ProviderError{
			Operation:  operation,
			StatusCode: httpRes.StatusCode,
			RetryAfter: retryAfter,
			Body:       string(body),
		}
	}
	return res, nil
}

func (a *RESTAdapter) now() time.Time {
	if a != nil && a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}

func resolveResponseBodyLimit(requestLimit int64, adapterLimit int64) int64 {
	if requestLimit > 0 {
		return requestLimit
	}
	if adapterLimit > 0 {
		return adapterLimit
	}
	return defaultRESTResponseBodyLimit
}
