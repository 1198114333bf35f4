package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput        = "INTAKE_BAD_INPUT"
	ErrorUnauthorized    = "INTAKE_UNAUTHORIZED"
	ErrorNotFound        = "INTAKE_NOT_FOUND"
	ErrorRateLimited     = "INTAKE_RATE_LIMITED"
	ErrorExternalFailure = "INTAKE_EXTERNAL_FAILURE"
	ErrorConfigInvalid   = "INTAKE_CONFIG_INVALID"
	ErrorInternal        = "INTAKE_INTERNAL_ERROR"
)

// ProviderError describes a failed call to an upstream HTTP collaborator.
// StatusCode is zero when the request never produced a response.
type ProviderError struct {
	Operation  string
	StatusCode int
	RetryAfter time.Duration
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}
	operation := strings.TrimSpace(e.Operation)
	if operation == "" {
		operation = "provider call"
	}
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("%s failed: %v", operation, e.Err)
	case strings.TrimSpace(e.Body) != "":
		return fmt.Sprintf("%s failed with status %d: %s", operation, e.StatusCode, truncate(e.Body, 256))
	default:
		return fmt.Sprintf("%s failed with status %d", operation, e.StatusCode)
	}
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Transient reports whether the failure is worth retrying: throttling, server
// errors and transport failures.
func (e *ProviderError) Transient() bool {
	if e == nil {
		return false
	}
	if e.StatusCode == 0 {
		return e.Err != nil && !errors.Is(e.Err, context.Canceled)
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func (e *ProviderError) ToServiceError() *goerrors.Error {
	if e == nil {
		return nil
	}
	category := goerrors.CategoryExternal
	textCode := ErrorExternalFailure
	code := http.StatusBadGateway
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		category = goerrors.CategoryRateLimit
		textCode = ErrorRateLimited
		code = http.StatusTooManyRequests
	case e.StatusCode == http.StatusUnauthorized:
		category = goerrors.CategoryAuth
		textCode = ErrorUnauthorized
		code = http.StatusUnauthorized
	case e.StatusCode == http.StatusNotFound:
		category = goerrors.CategoryNotFound
		textCode = ErrorNotFound
		code = http.StatusNotFound
	case e.StatusCode >= 400 && e.StatusCode < 500:
		category = goerrors.CategoryBadInput
		textCode = ErrorBadInput
		code = e.StatusCode
	}
	metadata := map[string]any{
		"operation":   strings.TrimSpace(e.Operation),
		"status_code": e.StatusCode,
		"transient":   e.Transient(),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.Wrap(e, category, e.Error()).
		WithCode(code).
		WithTextCode(textCode).
		WithMetadata(metadata)
}

// IsTransient is the single classification entry point used by RetryPolicy.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient()
	}
	var transient interface{ Transient() bool }
	if errors.As(err, &transient) {
		return transient.Transient()
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryRateLimit, goerrors.CategoryExternal:
			return true
		}
	}
	return false
}

// RetryAfterHint returns the provider supplied backoff hint, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) && providerErr.RetryAfter > 0 {
		return providerErr.RetryAfter, true
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Metadata != nil {
		switch typed := richErr.Metadata["retry_after_ms"].(type) {
		case int64:
			if typed > 0 {
				return time.Duration(typed) * time.Millisecond, true
			}
		case int:
			if typed > 0 {
				return time.Duration(typed) * time.Millisecond, true
			}
		}
	}
	return 0, false
}

func ConfigError(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryValidation).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorConfigInvalid)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func BadInputError(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func NotFoundError(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(ErrorNotFound)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// FieldError reports one invalid message field as a validation envelope.
func FieldError(field string, message string) error {
	return goerrors.NewValidation("validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

// MissingDependencyError marks a handler invoked without its collaborator.
func MissingDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorInternal)
}

func WrapError(source error, category goerrors.Category, message string, metadata map[string]any) error {
	if source == nil {
		source = errors.New(message)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(httpStatus(category)).
		WithTextCode(defaultTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// MapError converts any error into the rich envelope returned to operators.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		var richErr *goerrors.Error
		if !goerrors.As(err, &richErr) {
			return providerErr.ToServiceError()
		}
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryRateLimit))
	case strings.Contains(msg, "not found"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryNotFound))
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput))
	}

	return ensureErrorEnvelope(goerrors.MapToError(err, goerrors.DefaultErrorMappers()))
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorUnauthorized
	case goerrors.CategoryRateLimit:
		return ErrorRateLimited
	case goerrors.CategoryExternal:
		return ErrorExternalFailure
	default:
		return ErrorInternal
	}
}

func httpStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 || len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
