package command

import (
	"strings"

	"github.com/goliatone/go-transcript-intake/core"
)

const (
	TypeProcessDelivery   = "intake.command.delivery.process"
	TypeRenewSubscription = "intake.command.subscription.renew"
)

const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerOnce     = "once"
)

// ProcessDeliveryMessage carries one decoded notification batch.
type ProcessDeliveryMessage struct {
	RequestID string
	Batch     core.DeliveryBatch
}

func (ProcessDeliveryMessage) Type() string { return TypeProcessDelivery }

func (m ProcessDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.RequestID) == "" {
		return core.FieldError("request_id", "request id is required")
	}
	return nil
}

type RenewSubscriptionMessage struct {
	Trigger string
}

func (RenewSubscriptionMessage) Type() string { return TypeRenewSubscription }

func (m RenewSubscriptionMessage) Validate() error {
	switch strings.TrimSpace(m.Trigger) {
	case TriggerSchedule, TriggerManual, TriggerOnce:
		return nil
	default:
		return core.FieldError("trigger", "trigger must be schedule, manual or once")
	}
}
