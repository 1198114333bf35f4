package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-transcript-intake/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ArtifactIndexStore records every successful artifact write, last write wins.
type ArtifactIndexStore struct {
	db   *bun.DB
	repo repository.Repository[*artifactRecord]
	now  func() time.Time
}

func NewArtifactIndexStore(db *bun.DB) (*ArtifactIndexStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*artifactRecord](db, artifactHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid artifact repository wiring: %w", err)
		}
	}
	return &ArtifactIndexStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *ArtifactIndexStore) Record(ctx context.Context, in core.ArtifactRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: artifact index is not configured")
	}
	if strings.TrimSpace(in.StoragePath) == "" {
		return core.BadInputError("sqlstore: artifact storage path is required", nil)
	}
	next := newArtifactRecord(in, s.now())
	next.ID = uuid.NewString()

	// One statement, so concurrent first writes to a path cannot both insert.
	_, err := s.db.NewInsert().
		Model(next).
		On("CONFLICT (storage_path) DO UPDATE").
		Set("project_name = EXCLUDED.project_name").
		Set("filename = EXCLUDED.filename").
		Set("resource_id = EXCLUDED.resource_id").
		Set("meeting_id = EXCLUDED.meeting_id").
		Set("content_sha256 = EXCLUDED.content_sha256").
		Set("size_bytes = EXCLUDED.size_bytes").
		Set("written_at = EXCLUDED.written_at").
		Set("updated_at = EXCLUDED.updated_at").
		Set("write_count = ?TableAlias.write_count + 1").
		Exec(ctx)
	return err
}

// Get returns the index row for storagePath.
func (s *ArtifactIndexStore) Get(ctx context.Context, storagePath string) (core.ArtifactRecord, int, error) {
	if s == nil || s.repo == nil {
		return core.ArtifactRecord{}, 0, fmt.Errorf("sqlstore: artifact index is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("storage_path", "=", strings.TrimSpace(storagePath)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.ArtifactRecord{}, 0, err
	}
	if len(records) == 0 {
		return core.ArtifactRecord{}, 0, core.NotFoundError("sqlstore: artifact not indexed", map[string]any{
			"storage_path": storagePath,
		})
	}
	return records[0].toDomain(), records[0].WriteCount, nil
}

// ListByProject returns the newest writes first.
func (s *ArtifactIndexStore) ListByProject(ctx context.Context, projectName string, limit int) ([]core.ArtifactRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: artifact index is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("project_name", "=", strings.TrimSpace(projectName)),
		repository.OrderBy("written_at DESC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.ArtifactRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
