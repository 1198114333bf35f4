// Package artifacts persists transcript payloads at their canonical storage
// path. Writes are idempotent: the same path always overwrites.
package artifacts

import (
	"errors"
	"path"
	"strings"

	"github.com/goliatone/go-transcript-intake/core"
)

var (
	ErrArtifactNotFound = errors.New("artifacts: artifact not found")
	ErrInvalidPath      = errors.New("artifacts: invalid storage path")
)

// CleanPath normalises a storage path and rejects anything that could escape
// the store root.
func CleanPath(storagePath string) (string, error) {
	storagePath = strings.TrimSpace(storagePath)
	if storagePath == "" || strings.HasPrefix(storagePath, "/") || strings.Contains(storagePath, "\\") {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean(storagePath)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}

// unavailable marks a backend failure as transient so the writer retries it.
func unavailable(operation string, err error) error {
	if err == nil {
		return nil
	}
	return &core.ProviderError{Operation: operation, Err: err}
}
