package intake

import (
	"context"
	"fmt"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-transcript-intake/adapters/gocommand"
	intakecommand "github.com/goliatone/go-transcript-intake/command"
	"github.com/goliatone/go-transcript-intake/core"
	"github.com/goliatone/go-transcript-intake/renewal"
)

type Commands struct {
	ProcessDelivery   *intakecommand.ProcessDeliveryCommand
	RenewSubscription *intakecommand.RenewSubscriptionCommand
}

// Facade exposes the intake operations as commands, either invoked directly
// or sent over the go-command dispatcher.
type Facade struct {
	commands Commands
	// dispatched routes messages through the go-command dispatcher, where
	// the app has subscribed the same commanders.
	dispatched bool
}

func NewFacade(processor intakecommand.DeliveryProcessor, renewer intakecommand.SubscriptionRenewer) (*Facade, error) {
	if processor == nil && renewer == nil {
		return nil, fmt.Errorf("intake: a delivery processor or subscription renewer is required")
	}
	return &Facade{
		commands: Commands{
			ProcessDelivery:   intakecommand.NewProcessDeliveryCommand(processor),
			RenewSubscription: intakecommand.NewRenewSubscriptionCommand(renewer),
		},
	}, nil
}

// Facade returns the command facade over the app's receiver and renewer.
func (a *App) Facade() (*Facade, error) {
	if a == nil {
		return nil, fmt.Errorf("intake: app is nil")
	}
	facade, err := NewFacade(a.Receiver, a.Renewer)
	if err != nil {
		return nil, err
	}
	facade.dispatched = a.Commands.Subscribed() > 0
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

// ProcessDelivery runs the batch and returns the per-notification results
// stored by the commander.
func (f *Facade) ProcessDelivery(ctx context.Context, requestID string, batch core.DeliveryBatch) (core.DeliveryResponse, error) {
	if f == nil {
		return core.DeliveryResponse{}, fmt.Errorf("intake: facade is nil")
	}
	result := gocmd.NewResult[core.DeliveryResponse]()
	ctx = gocmd.ContextWithResult(ctx, result)
	msg := intakecommand.ProcessDeliveryMessage{RequestID: requestID, Batch: batch}
	var err error
	if f.dispatched {
		err = gocommand.Dispatch(ctx, msg)
	} else {
		err = f.commands.ProcessDelivery.Execute(ctx, msg)
	}
	if err != nil {
		return core.DeliveryResponse{}, err
	}
	response, _ := result.Load()
	return response, nil
}

// RenewSubscription runs one renewal tick. The outcome is returned alongside
// the tick error so callers can still report the request id.
func (f *Facade) RenewSubscription(ctx context.Context, trigger string) (renewal.Outcome, error) {
	if f == nil {
		return renewal.Outcome{}, fmt.Errorf("intake: facade is nil")
	}
	result := gocmd.NewResult[renewal.Outcome]()
	ctx = gocmd.ContextWithResult(ctx, result)
	msg := intakecommand.RenewSubscriptionMessage{Trigger: trigger}
	var err error
	if f.dispatched {
		err = gocommand.Dispatch(ctx, msg)
	} else {
		err = f.commands.RenewSubscription.Execute(ctx, msg)
	}
	outcome, _ := result.Load()
	return outcome, err
}
