package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-transcript-intake/core"
)

type WriteRequest struct {
	ProjectName string
	Filename    string
	Content     []byte
	ResourceID  string
	MeetingID   string
}

type WriterOption func(*Writer)

func WithIndex(index core.ArtifactIndex) WriterOption {
	return func(w *Writer) {
		w.index = index
	}
}

func WithRetryPolicy(policy core.RetryPolicy) WriterOption {
	return func(w *Writer) {
		w.retry = policy
	}
}

func WithTelemetry(telemetry core.Telemetry) WriterOption {
	return func(w *Writer) {
		w.telemetry = telemetry
	}
}

func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

// Writer stores artifact content and records it in the optional index. Writes
// to one path are serialized so the index always describes the stored bytes.
type Writer struct {
	store     core.ArtifactStore
	index     core.ArtifactIndex
	retry     core.RetryPolicy
	telemetry core.Telemetry
	now       func() time.Time
	paths     pathLocks
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

// pathLocks is a keyed mutex; entries are dropped once no writer holds them.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

func (l *pathLocks) lock(path string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*pathLock{}
	}
	entry, ok := l.locks[path]
	if !ok {
		entry = &pathLock{}
		l.locks[path] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, path)
		}
		l.mu.Unlock()
	}
}

func NewWriter(store core.ArtifactStore, opts ...WriterOption) *Writer {
	w := &Writer{
		store:     store,
		retry:     core.RetryPolicy{MaxAttempts: 3},
		telemetry: core.NewTelemetry(nil, nil),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Write persists the content at "{project}/{filename}" and returns the
// resulting artifact. Writing the same path twice overwrites.
func (w *Writer) Write(ctx context.Context, req WriteRequest) (core.TranscriptArtifact, error) {
	if w == nil || w.store == nil {
		return core.TranscriptArtifact{}, fmt.Errorf("artifacts: writer is not configured")
	}
	projectName := strings.TrimSpace(req.ProjectName)
	filename := strings.TrimSpace(req.Filename)
	if projectName == "" || filename == "" {
		return core.TranscriptArtifact{}, core.BadInputError("artifacts: project name and filename are required", nil)
	}
	storagePath, err := CleanPath(core.ArtifactPath(projectName, filename))
	if err != nil {
		return core.TranscriptArtifact{}, err
	}

	unlock := w.paths.lock(storagePath)
	defer unlock()

	startedAt := time.Now()
	attempts, err := w.retry.Do(ctx, func(ctx context.Context) error {
		return w.store.Put(ctx, storagePath, req.Content)
	})
	w.telemetry.Observe(ctx, startedAt, "artifact_write", err, map[string]any{
		"blob_path":   storagePath,
		"resource_id": req.ResourceID,
		"attempts":    attempts,
		"size_bytes":  len(req.Content),
	})
	if err != nil {
		return core.TranscriptArtifact{}, err
	}

	artifact := core.TranscriptArtifact{
		ProjectName: projectName,
		Filename:    filename,
		Content:     req.Content,
		StoragePath: storagePath,
		ResourceID:  strings.TrimSpace(req.ResourceID),
		MeetingID:   strings.TrimSpace(req.MeetingID),
	}
	w.record(ctx, artifact)
	return artifact, nil
}

// record indexes the artifact. The content is already durable, so index
// failures are logged and not returned.
func (w *Writer) record(ctx context.Context, artifact core.TranscriptArtifact) {
	if w.index == nil {
		return
	}
	sum := sha256.Sum256(artifact.Content)
	err := w.index.Record(ctx, core.ArtifactRecord{
		StoragePath:   artifact.StoragePath,
		ProjectName:   artifact.ProjectName,
		Filename:      artifact.Filename,
		ResourceID:    artifact.ResourceID,
		MeetingID:     artifact.MeetingID,
		ContentSHA256: hex.EncodeToString(sum[:]),
		SizeBytes:     int64(len(artifact.Content)),
		WrittenAt:     w.now(),
	})
	if err != nil {
		w.telemetry.LogWarn(ctx, "artifact index update failed", map[string]any{
			"blob_path": artifact.StoragePath,
			"error":     err.Error(),
		})
	}
}
