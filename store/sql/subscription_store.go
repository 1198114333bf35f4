package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-transcript-intake/core"
	"github.com/uptrace/bun"
)

const (
	metadataStatusReason   = "status_reason"
	metadataStatusReasonAt = "status_reason_at"
)

// SubscriptionStore keeps the local mirror of the provider subscription.
type SubscriptionStore struct {
	db   *bun.DB
	repo repository.Repository[*subscriptionRecord]
	now  func() time.Time
}

func NewSubscriptionStore(db *bun.DB) (*SubscriptionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*subscriptionRecord](db, subscriptionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid subscription repository wiring: %w", err)
		}
	}
	return &SubscriptionStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Upsert writes the subscription keyed by its provider id. A successful
// renewal clears any recorded error reason.
func (s *SubscriptionStore) Upsert(ctx context.Context, in core.UpsertSubscriptionInput) (core.Subscription, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	in.ID = strings.TrimSpace(in.ID)
	in.Resource = strings.TrimSpace(in.Resource)
	in.NotificationURL = strings.TrimSpace(in.NotificationURL)
	if in.ID == "" {
		return core.Subscription{}, core.BadInputError("sqlstore: subscription id is required", nil)
	}
	if strings.TrimSpace(string(in.Status)) == "" {
		in.Status = core.SubscriptionStatusActive
	}
	now := s.now()

	var out core.Subscription
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := findSubscriptionTx(ctx, tx, in.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			record := newSubscriptionRecord(in, now)
			if _, createErr := tx.NewInsert().Model(record).Exec(ctx); createErr != nil {
				return createErr
			}
			out = record.toDomain()
			return nil
		}

		existing.apply(in, now)
		if in.Status == core.SubscriptionStatusActive {
			delete(existing.Metadata, metadataStatusReason)
			delete(existing.Metadata, metadataStatusReasonAt)
		}
		if _, updateErr := tx.NewUpdate().
			Model(existing).
			Where("id = ?", existing.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = existing.toDomain()
		return nil
	})
	if err != nil {
		return core.Subscription{}, err
	}
	return out, nil
}

func (s *SubscriptionStore) Get(ctx context.Context, id string) (core.Subscription, error) {
	if s == nil || s.repo == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return core.Subscription{}, err
	}
	return record.toDomain(), nil
}

// UpdateState moves the subscription to status, recording reason in its
// metadata. A subscription never recorded before is created in that state so
// the first failed renewal still leaves a trace.
func (s *SubscriptionStore) UpdateState(ctx context.Context, id string, status core.SubscriptionStatus, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: subscription store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return core.BadInputError("sqlstore: subscription id is required", nil)
	}
	if strings.TrimSpace(string(status)) == "" {
		return core.BadInputError("sqlstore: subscription status is required", nil)
	}
	now := s.now()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findSubscriptionTx(ctx, tx, trimmedID)
		if err != nil {
			return err
		}
		if record == nil {
			record = newSubscriptionRecord(core.UpsertSubscriptionInput{ID: trimmedID, Status: status}, now)
			setStatusReason(record, reason, now)
			_, err = tx.NewInsert().Model(record).Exec(ctx)
			return err
		}

		subscription := record.toDomain()
		if err := subscription.TransitionTo(status, now); err != nil {
			return err
		}
		record.Status = string(subscription.Status)
		record.UpdatedAt = now
		record.Metadata = copyAnyMap(record.Metadata)
		setStatusReason(record, reason, now)
		_, err = tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx)
		return err
	})
}

func setStatusReason(record *subscriptionRecord, reason string, now time.Time) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return
	}
	if record.Metadata == nil {
		record.Metadata = map[string]any{}
	}
	record.Metadata[metadataStatusReason] = reason
	record.Metadata[metadataStatusReasonAt] = now.Format(time.RFC3339Nano)
}

func findSubscriptionTx(ctx context.Context, tx bun.Tx, id string) (*subscriptionRecord, error) {
	record := &subscriptionRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}
