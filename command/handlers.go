package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-transcript-intake/core"
	"github.com/goliatone/go-transcript-intake/renewal"
)

type DeliveryProcessor interface {
	Handle(ctx context.Context, requestID string, batch core.DeliveryBatch) []core.NotificationResult
}

type SubscriptionRenewer interface {
	Tick(ctx context.Context) (renewal.Outcome, error)
}

type ProcessDeliveryCommand struct {
	processor DeliveryProcessor
}

func NewProcessDeliveryCommand(processor DeliveryProcessor) *ProcessDeliveryCommand {
	return &ProcessDeliveryCommand{processor: processor}
}

// Execute processes the batch and stores a core.DeliveryResponse on the
// context result collector. Per-item failures are data, so the command only
// fails on an invalid message or missing wiring.
func (c *ProcessDeliveryCommand) Execute(ctx context.Context, msg ProcessDeliveryMessage) error {
	if c == nil || c.processor == nil {
		return core.MissingDependencyError("command: delivery processor is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	results := c.processor.Handle(ctx, msg.RequestID, msg.Batch)
	storeResult(ctx, core.DeliveryResponse{Results: results})
	return nil
}

type RenewSubscriptionCommand struct {
	renewer SubscriptionRenewer
}

func NewRenewSubscriptionCommand(renewer SubscriptionRenewer) *RenewSubscriptionCommand {
	return &RenewSubscriptionCommand{renewer: renewer}
}

func (c *RenewSubscriptionCommand) Execute(ctx context.Context, msg RenewSubscriptionMessage) error {
	if c == nil || c.renewer == nil {
		return core.MissingDependencyError("command: subscription renewer is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	outcome, err := c.renewer.Tick(ctx)
	storeResult(ctx, outcome)
	return err
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
