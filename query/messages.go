package query

import (
	"strings"

	"github.com/goliatone/go-transcript-intake/core"
)

const (
	TypeGetSubscription      = "intake.query.subscription.get"
	TypeGetArtifact          = "intake.query.artifact.get"
	TypeListProjectArtifacts = "intake.query.artifact.list_by_project"

	maxListLimit = 500
)

type GetSubscriptionMessage struct {
	SubscriptionID string
}

func (GetSubscriptionMessage) Type() string { return TypeGetSubscription }

func (m GetSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.SubscriptionID) == "" {
		return core.FieldError("subscription_id", "subscription id is required")
	}
	return nil
}

type GetArtifactMessage struct {
	StoragePath string
}

func (GetArtifactMessage) Type() string { return TypeGetArtifact }

func (m GetArtifactMessage) Validate() error {
	if strings.TrimSpace(m.StoragePath) == "" {
		return core.FieldError("storage_path", "storage path is required")
	}
	return nil
}

// ListProjectArtifactsMessage lists the newest artifacts of one project. A
// zero Limit uses the index default.
type ListProjectArtifactsMessage struct {
	ProjectName string
	Limit       int
}

func (ListProjectArtifactsMessage) Type() string { return TypeListProjectArtifacts }

func (m ListProjectArtifactsMessage) Validate() error {
	if strings.TrimSpace(m.ProjectName) == "" {
		return core.FieldError("project_name", "project name is required")
	}
	if m.Limit < 0 || m.Limit > maxListLimit {
		return core.FieldError("limit", "limit must be between 0 and 500")
	}
	return nil
}
