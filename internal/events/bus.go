// Package events provides the in-process event bus that broadcasts
// instance lifecycle, provisioning progress, and credential changes.
package events

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gookit/event"

	"github.com/rizaleow/ovpn-manager/pkg/logger"
)

// Bus wraps the gookit event manager for instance lifecycle events.
type Bus struct {
	manager *event.Manager
	logger  *logger.Logger
}

// NewBus creates an event bus.
func NewBus(log *logger.Logger) *Bus {
	return &Bus{
		manager: event.NewManager("ovpn-manager"),
		logger:  log.WithComponent("events"),
	}
}

func (b *Bus) fire(eventType string, payload any) error {
	err, _ := b.manager.Fire(eventType, event.M{"payload": payload})
	if err != nil {
		b.logger.Error("failed to publish event",
			slog.String("type", eventType),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	return nil
}

// PublishInstanceCreated fires an instance created event.
func (b *Bus) PublishInstanceCreated(instanceID, name string) error {
	b.logger.Debug("publishing instance created event",
		slog.String("instance_id", instanceID),
		slog.String("name", name))
	return b.fire(EventInstanceCreated, InstanceCreatedEvent{
		InstanceID: instanceID,
		Name:       name,
		Timestamp:  time.Now(),
	})
}

// PublishInstanceDeleted fires an instance deleted event.
func (b *Bus) PublishInstanceDeleted(instanceID, name string, warnings []string) error {
	b.logger.Debug("publishing instance deleted event",
		slog.String("instance_id", instanceID),
		slog.String("name", name),
		slog.Int("warnings", len(warnings)))
	return b.fire(EventInstanceDeleted, InstanceDeletedEvent{
		InstanceID: instanceID,
		Name:       name,
		Warnings:   warnings,
		Timestamp:  time.Now(),
	})
}

// PublishProvisionStep fires a provisioning step event.
func (b *Bus) PublishProvisionStep(instanceID, name, step string) error {
	b.logger.Debug("publishing provision step event",
		slog.String("instance_id", instanceID),
		slog.String("step", step))
	return b.fire(EventProvisionStep, ProvisionStepEvent{
		InstanceID: instanceID,
		Name:       name,
		Step:       step,
		Timestamp:  time.Now(),
	})
}

// PublishProvisionCompleted fires a provisioning completed event.
func (b *Bus) PublishProvisionCompleted(instanceID, name string, duration time.Duration) error {
	b.logger.Info("publishing provision completed event",
		slog.String("instance_id", instanceID),
		slog.String("name", name),
		slog.Duration("duration", duration))
	return b.fire(EventProvisionCompleted, ProvisionCompletedEvent{
		InstanceID: instanceID,
		Name:       name,
		Duration:   duration,
		Timestamp:  time.Now(),
	})
}

// PublishProvisionFailed fires a provisioning failed event.
func (b *Bus) PublishProvisionFailed(instanceID, name, step, errMsg string) error {
	b.logger.Error("publishing provision failed event",
		slog.String("instance_id", instanceID),
		slog.String("step", step),
		slog.String("error", errMsg))
	return b.fire(EventProvisionFailed, ProvisionFailedEvent{
		InstanceID: instanceID,
		Name:       name,
		Step:       step,
		Error:      errMsg,
		Timestamp:  time.Now(),
	})
}

// PublishClientIssued fires a client issued event.
func (b *Bus) PublishClientIssued(instanceID, client string, renewed bool) error {
	b.logger.Debug("publishing client issued event",
		slog.String("instance_id", instanceID),
		slog.String("client", client),
		slog.Bool("renewed", renewed))
	return b.fire(EventClientIssued, ClientIssuedEvent{
		InstanceID: instanceID,
		Client:     client,
		Renewed:    renewed,
		Timestamp:  time.Now(),
	})
}

// PublishClientRevoked fires a client revoked event.
func (b *Bus) PublishClientRevoked(instanceID, client string, fenced bool) error {
	b.logger.Debug("publishing client revoked event",
		slog.String("instance_id", instanceID),
		slog.String("client", client),
		slog.Bool("fenced", fenced))
	return b.fire(EventClientRevoked, ClientRevokedEvent{
		InstanceID: instanceID,
		Client:     client,
		Fenced:     fenced,
		Timestamp:  time.Now(),
	})
}

// Subscribe registers a listener for the given event type.
func (b *Bus) Subscribe(eventType string, listener event.Listener) {
	b.manager.On(eventType, listener, event.Normal)
	b.logger.Debug("subscribed to event type", slog.String("type", eventType))
}

// Close clears all listeners.
func (b *Bus) Close() error {
	b.logger.Debug("closing event bus")
	b.manager.Clear()
	return nil
}

// Listener adapts a payload handler into a gookit listener.
func Listener(handler func(payload any) error) event.Listener {
	return event.ListenerFunc(func(e event.Event) error {
		return handler(e.Get("payload"))
	})
}

// ExtractPayload safely extracts and casts an event payload.
func ExtractPayload[T any](e event.Event) (T, error) {
	var zero T

	payload := e.Get("payload")
	if payload == nil {
		return zero, fmt.Errorf("no payload found in event")
	}

	typed, ok := payload.(T)
	if !ok {
		return zero, fmt.Errorf("payload type mismatch: expected %T, got %T", zero, payload)
	}

	return typed, nil
}
