package artifacts

import (
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-transcript-intake/core"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenStore builds the backend selected by cfg.Backend. The returned closer
// releases backend resources and is never nil on success.
func OpenStore(cfg core.StorageConfig) (core.ArtifactStore, io.Closer, error) {
	switch strings.TrimSpace(cfg.Backend) {
	case core.StorageBackendFile, "":
		store, err := NewFileStore(cfg.Root)
		if err != nil {
			return nil, nil, err
		}
		return store, nopCloser{}, nil
	case core.StorageBackendBadger:
		store, err := OpenBadgerStore(cfg.Root)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case core.StorageBackendMemory:
		return NewMemoryStore(), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("artifacts: unsupported backend %q", cfg.Backend)
	}
}

var (
	_ core.ArtifactStore = (*FileStore)(nil)
	_ core.ArtifactStore = (*MemoryStore)(nil)
	_ core.ArtifactStore = (*BadgerStore)(nil)
)
