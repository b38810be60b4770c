// Package gocommand exposes the dispatcher over the go-command bus so a
// host application can trigger pushes and drain runs the same way it
// dispatches the rest of its commands.
package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/boxyhq/go-dsync/core"
	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

const (
	TypeProcessDirectoryEvents = "dsync.command.events.process"
	TypePushDirectoryEvent     = "dsync.command.events.push"
)

// ProcessDirectoryEvents asks the dispatcher to drain the event queue.
type ProcessDirectoryEvents struct{}

func (ProcessDirectoryEvents) Type() string { return TypeProcessDirectoryEvents }

// PushDirectoryEvent enqueues one directory-sync event.
type PushDirectoryEvent struct {
	Event core.DirectorySyncEvent
}

func (PushDirectoryEvent) Type() string { return TypePushDirectoryEvent }

func (m PushDirectoryEvent) Validate() error {
	return m.Event.Validate()
}

// DispatcherService is the slice of the dispatcher the commands need.
type DispatcherService interface {
	Push(ctx context.Context, event core.DirectorySyncEvent) (core.QueuedEvent, error)
	Process(ctx context.Context) error
}

type ProcessCommand struct {
	service DispatcherService
}

func NewProcessCommand(service DispatcherService) *ProcessCommand {
	return &ProcessCommand{service: service}
}

func (c *ProcessCommand) Execute(ctx context.Context, msg ProcessDirectoryEvents) error {
	if c == nil || c.service == nil {
		return fmt.Errorf("gocommand: dispatcher service is required")
	}
	return c.service.Process(ctx)
}

type PushCommand struct {
	service DispatcherService
}

func NewPushCommand(service DispatcherService) *PushCommand {
	return &PushCommand{service: service}
}

func (c *PushCommand) Execute(ctx context.Context, msg PushDirectoryEvent) error {
	if c == nil || c.service == nil {
		return fmt.Errorf("gocommand: dispatcher service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	_, err := c.service.Push(ctx, msg.Event)
	return err
}

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver routes command execution through a go-job queue registry,
// letting drain triggers run on workers instead of in the caller.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

// RegisterAndSubscribe wires both dispatcher commands into a registry and
// the in-process dispatcher in one call.
func RegisterAndSubscribe(
	adapter *RegistryAdapter,
	service DispatcherService,
	runnerOpts ...runner.Option,
) ([]commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if service == nil {
		return nil, fmt.Errorf("gocommand: dispatcher service is required")
	}

	processCmd := NewProcessCommand(service)
	pushCmd := NewPushCommand(service)

	subscriptions := []commanddispatcher.Subscription{
		SubscribeCommand[ProcessDirectoryEvents](processCmd),
		SubscribeCommand[PushDirectoryEvent](pushCmd),
	}
	for _, cmd := range []any{processCmd, pushCmd} {
		if err := adapter.RegisterCommand(cmd); err != nil {
			for _, subscription := range subscriptions {
				if subscription != nil {
					subscription.Unsubscribe()
				}
			}
			return nil, err
		}
	}
	return subscriptions, nil
}

var (
	_ command.Commander[ProcessDirectoryEvents] = (*ProcessCommand)(nil)
	_ command.Commander[PushDirectoryEvent]     = (*PushCommand)(nil)
)
