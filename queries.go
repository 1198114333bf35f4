package intake

import (
	"github.com/goliatone/go-transcript-intake/core"
	"github.com/goliatone/go-transcript-intake/query"
)

// Queries is the read side over the subscription store and artifact index.
type Queries struct {
	Subscription     *query.GetSubscriptionQuery
	Artifact         *query.GetArtifactQuery
	ProjectArtifacts *query.ListProjectArtifactsQuery
}

func NewQueries(subscriptions query.SubscriptionReader, artifacts query.ArtifactReader) Queries {
	return Queries{
		Subscription:     query.NewGetSubscriptionQuery(subscriptions),
		Artifact:         query.NewGetArtifactQuery(artifacts),
		ProjectArtifacts: query.NewListProjectArtifactsQuery(artifacts),
	}
}

// Queries needs the database; an app built WithoutDatabase has no read side.
func (a *App) Queries() (Queries, error) {
	if a == nil || a.Stores == nil {
		return Queries{}, core.ConfigError("intake: queries require a database", nil)
	}
	return NewQueries(a.Stores.SubscriptionStore(), a.Stores.ArtifactIndex()), nil
}
