package sqlstore

import "github.com/goliatone/go-transcript-intake/core"

var (
	_ core.SubscriptionStore = (*SubscriptionStore)(nil)
	_ core.ArtifactIndex     = (*ArtifactIndexStore)(nil)
)
