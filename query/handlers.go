// Package query holds the read side: subscription status and the artifact
// index, exposed as go-command queriers.
package query

import (
	"context"

	"github.com/goliatone/go-transcript-intake/core"
)

type SubscriptionReader interface {
	Get(ctx context.Context, id string) (core.Subscription, error)
}

type ArtifactReader interface {
	Get(ctx context.Context, storagePath string) (core.ArtifactRecord, int, error)
	ListByProject(ctx context.Context, projectName string, limit int) ([]core.ArtifactRecord, error)
}

// ArtifactEntry is an index row plus how many times its path was written.
type ArtifactEntry struct {
	core.ArtifactRecord
	Writes int
}

type GetSubscriptionQuery struct {
	reader SubscriptionReader
}

func NewGetSubscriptionQuery(reader SubscriptionReader) *GetSubscriptionQuery {
	return &GetSubscriptionQuery{reader: reader}
}

func (q *GetSubscriptionQuery) Query(ctx context.Context, msg GetSubscriptionMessage) (core.Subscription, error) {
	if q == nil || q.reader == nil {
		return core.Subscription{}, core.MissingDependencyError("query: subscription reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.Subscription{}, err
	}
	return q.reader.Get(ctx, msg.SubscriptionID)
}

type GetArtifactQuery struct {
	reader ArtifactReader
}

func NewGetArtifactQuery(reader ArtifactReader) *GetArtifactQuery {
	return &GetArtifactQuery{reader: reader}
}

func (q *GetArtifactQuery) Query(ctx context.Context, msg GetArtifactMessage) (ArtifactEntry, error) {
	if q == nil || q.reader == nil {
		return ArtifactEntry{}, core.MissingDependencyError("query: artifact reader is required")
	}
	if err := msg.Validate(); err != nil {
		return ArtifactEntry{}, err
	}
	record, writes, err := q.reader.Get(ctx, msg.StoragePath)
	if err != nil {
		return ArtifactEntry{}, err
	}
	return ArtifactEntry{ArtifactRecord: record, Writes: writes}, nil
}

type ListProjectArtifactsQuery struct {
	reader ArtifactReader
}

func NewListProjectArtifactsQuery(reader ArtifactReader) *ListProjectArtifactsQuery {
	return &ListProjectArtifactsQuery{reader: reader}
}

func (q *ListProjectArtifactsQuery) Query(ctx context.Context, msg ListProjectArtifactsMessage) ([]core.ArtifactRecord, error) {
	if q == nil || q.reader == nil {
		return nil, core.MissingDependencyError("query: artifact reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.ListByProject(ctx, msg.ProjectName, msg.Limit)
}
