package query

import (
	"context"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-transcript-intake/core"
)

type stubSubscriptionReader struct {
	getFn func(ctx context.Context, id string) (core.Subscription, error)
}

func (s stubSubscriptionReader) Get(ctx context.Context, id string) (core.Subscription, error) {
	return s.getFn(ctx, id)
}

type stubArtifactReader struct {
	records map[string]core.ArtifactRecord
	writes  map[string]int
	limit   int
}

func (s *stubArtifactReader) Get(_ context.Context, storagePath string) (core.ArtifactRecord, int, error) {
	record, ok := s.records[storagePath]
	if !ok {
		return core.ArtifactRecord{}, 0, core.NotFoundError("artifact not indexed", nil)
	}
	return record, s.writes[storagePath], nil
}

func (s *stubArtifactReader) ListByProject(_ context.Context, projectName string, limit int) ([]core.ArtifactRecord, error) {
	s.limit = limit
	out := []core.ArtifactRecord{}
	for _, record := range s.records {
		if record.ProjectName == projectName {
			out = append(out, record)
		}
	}
	return out, nil
}

func TestGetSubscriptionQuery_QueryDelegates(t *testing.T) {
	called := false
	qry := NewGetSubscriptionQuery(stubSubscriptionReader{
		getFn: func(_ context.Context, id string) (core.Subscription, error) {
			called = true
			if id != "sub-1" {
				t.Fatalf("unexpected subscription id %q", id)
			}
			return core.Subscription{ID: id, Status: core.SubscriptionStatusActive}, nil
		},
	})

	result, err := qry.Query(context.Background(), GetSubscriptionMessage{SubscriptionID: "sub-1"})
	if err != nil {
		t.Fatalf("query subscription: %v", err)
	}
	if !called || result.Status != core.SubscriptionStatusActive {
		t.Fatalf("unexpected subscription result: %#v", result)
	}
}

func TestGetArtifactQuery_ReturnsWriteCount(t *testing.T) {
	reader := &stubArtifactReader{
		records: map[string]core.ArtifactRecord{
			"yakshaver/2026-01-26-sprint-review.vtt": {StoragePath: "yakshaver/2026-01-26-sprint-review.vtt", ProjectName: "yakshaver"},
		},
		writes: map[string]int{"yakshaver/2026-01-26-sprint-review.vtt": 2},
	}

	entry, err := NewGetArtifactQuery(reader).Query(context.Background(), GetArtifactMessage{
		StoragePath: "yakshaver/2026-01-26-sprint-review.vtt",
	})
	if err != nil {
		t.Fatalf("query artifact: %v", err)
	}
	if entry.Writes != 2 || entry.ProjectName != "yakshaver" {
		t.Fatalf("unexpected artifact entry: %#v", entry)
	}

	_, err = NewGetArtifactQuery(reader).Query(context.Background(), GetArtifactMessage{StoragePath: "other/x.vtt"})
	if core.MapError(err).Code != http.StatusNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListProjectArtifactsQuery_PassesLimit(t *testing.T) {
	reader := &stubArtifactReader{
		records: map[string]core.ArtifactRecord{
			"a/1.vtt": {StoragePath: "a/1.vtt", ProjectName: "a"},
			"b/1.vtt": {StoragePath: "b/1.vtt", ProjectName: "b"},
		},
	}

	records, err := NewListProjectArtifactsQuery(reader).Query(context.Background(), ListProjectArtifactsMessage{
		ProjectName: "a",
		Limit:       10,
	})
	if err != nil {
		t.Fatalf("list artifacts: %v", err)
	}
	if len(records) != 1 || reader.limit != 10 {
		t.Fatalf("unexpected listing %#v (limit %d)", records, reader.limit)
	}
}

func TestMessages_ValidateReturnsRichError(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		field string
	}{
		{name: "subscription", err: GetSubscriptionMessage{}.Validate(), field: "subscription_id"},
		{name: "artifact", err: GetArtifactMessage{StoragePath: "  "}.Validate(), field: "storage_path"},
		{name: "project", err: ListProjectArtifactsMessage{}.Validate(), field: "project_name"},
		{name: "limit", err: ListProjectArtifactsMessage{ProjectName: "a", Limit: 501}.Validate(), field: "limit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var rich *goerrors.Error
			if !goerrors.As(tc.err, &rich) {
				t.Fatalf("expected go-errors envelope, got %T", tc.err)
			}
			if rich.TextCode != core.ErrorBadInput || rich.Code != http.StatusBadRequest {
				t.Fatalf("unexpected envelope %q %d", rich.TextCode, rich.Code)
			}
			validation := rich.AllValidationErrors()
			if len(validation) == 0 || validation[0].Field != tc.field {
				t.Fatalf("expected %s validation field, got %#v", tc.field, validation)
			}
		})
	}
}

func TestQueries_NilReaderReturnsInternalError(t *testing.T) {
	var q *GetArtifactQuery
	_, err := q.Query(context.Background(), GetArtifactMessage{StoragePath: "a/1.vtt"})

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal || rich.TextCode != core.ErrorInternal {
		t.Fatalf("unexpected envelope %q %q", rich.Category, rich.TextCode)
	}
}
