// Package gocommand puts the intake commanders on go-command: the registry
// for discovery, the process-wide dispatcher for invocation and, optionally,
// a go-job queue registry so workers can run them as jobs.
package gocommand

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	intakecommand "github.com/goliatone/go-transcript-intake/command"
)

const queueResolverKey = "intake.queue"

// Bus owns the dispatcher subscriptions it creates. The dispatcher is global,
// so a Bus must be closed before another one registers the same messages.
type Bus struct {
	registry *command.Registry
	queue    *jobqueuecommand.Registry

	mu            sync.Mutex
	subscriptions []commanddispatcher.Subscription
}

func NewBus(registry *command.Registry) *Bus {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &Bus{registry: registry}
}

func (b *Bus) Registry() *command.Registry {
	if b == nil {
		return nil
	}
	return b.registry
}

// Queue is the mirrored go-job registry, nil unless MirrorToQueue was called.
func (b *Bus) Queue() *jobqueuecommand.Registry {
	if b == nil {
		return nil
	}
	return b.queue
}

// MirrorToQueue makes every commander resolvable by go-job workers under its
// message type. It must run before RegisterIntake initializes the registry.
func (b *Bus) MirrorToQueue(queue *jobqueuecommand.Registry) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if queue == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	if err := b.registry.AddResolver(queueResolverKey, jobqueuecommand.QueueResolver(queue)); err != nil {
		return err
	}
	b.queue = queue
	return nil
}

// RegisterIntake registers and subscribes the delivery and renewal
// commanders, then initializes the registry. A nil dependency skips its
// commander. On failure every subscription made so far is released.
func (b *Bus) RegisterIntake(
	processor intakecommand.DeliveryProcessor,
	renewer intakecommand.SubscriptionRenewer,
	runnerOpts ...runner.Option,
) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if processor != nil {
		if err := subscribe(b, intakecommand.NewProcessDeliveryCommand(processor), runnerOpts...); err != nil {
			_ = b.Close()
			return err
		}
	}
	if renewer != nil {
		if err := subscribe(b, intakecommand.NewRenewSubscriptionCommand(renewer), runnerOpts...); err != nil {
			_ = b.Close()
			return err
		}
	}
	if err := b.registry.Initialize(); err != nil {
		_ = b.Close()
		return fmt.Errorf("gocommand: initialize registry: %w", err)
	}
	return nil
}

func subscribe[T any](b *Bus, cmd command.Commander[T], runnerOpts ...runner.Option) error {
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := b.registry.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return err
	}
	b.mu.Lock()
	b.subscriptions = append(b.subscriptions, subscription)
	b.mu.Unlock()
	return nil
}

// Subscribed reports how many commanders are reachable through Dispatch.
func (b *Bus) Subscribed() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscriptions)
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	subscriptions := b.subscriptions
	b.subscriptions = nil
	b.mu.Unlock()
	for _, subscription := range subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	return nil
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}
