package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-transcript-intake/core"
)

var (
	_ gocmd.Querier[GetSubscriptionMessage, core.Subscription]          = (*GetSubscriptionQuery)(nil)
	_ gocmd.Querier[GetArtifactMessage, ArtifactEntry]                  = (*GetArtifactQuery)(nil)
	_ gocmd.Querier[ListProjectArtifactsMessage, []core.ArtifactRecord] = (*ListProjectArtifactsQuery)(nil)
	_ gocmd.Message                                                     = GetSubscriptionMessage{}
	_ gocmd.Message                                                     = ListProjectArtifactsMessage{}
)
