package webhooks

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/goliatone/go-transcript-intake/core"
)

var (
	ErrClientStateNotConfigured = errors.New("webhooks: client state is not configured")
	ErrClientStateMismatch      = errors.New("webhooks: client state mismatch")
)

// ClientStateVerifier compares the shared secret echoed in each notification
// against the configured one in constant time. The echoed value must match
// byte for byte; only the configured secret is trimmed.
type ClientStateVerifier struct {
	Secret string
}

func (v ClientStateVerifier) Verify(notification core.Notification) error {
	expected := strings.TrimSpace(v.Secret)
	if expected == "" {
		return ErrClientStateNotConfigured
	}
	if subtle.ConstantTimeCompare([]byte(notification.ClientState), []byte(expected)) != 1 {
		return ErrClientStateMismatch
	}
	return nil
}
