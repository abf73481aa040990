package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"commission-service/internal/models"
	"commission-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events. It stamps event id, type
// and timestamp so callers only fill the payload.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func stamp(base *models.BaseEvent, eventType string) {
	if base.EventID == "" {
		base.EventID = uuid.New().String()
	}
	base.EventType = eventType
	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now()
	}
}

// PublishCommissionCreated publishes CommissionCreated event
func (ep *EventPublisher) PublishCommissionCreated(ctx context.Context, event *models.CommissionCreatedEvent) error {
	stamp(&event.BaseEvent, models.EventTypeCommissionCreated)
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishCommissionPaid publishes CommissionPaid event
func (ep *EventPublisher) PublishCommissionPaid(ctx context.Context, event *models.CommissionPaidEvent) error {
	stamp(&event.BaseEvent, models.EventTypeCommissionPaid)
	return ep.producer.PublishEvent(ctx, "commission-paid", event)
}

// PublishRelationshipEstablished publishes RelationshipEstablished event
func (ep *EventPublisher) PublishRelationshipEstablished(ctx context.Context, event *models.RelationshipEstablishedEvent) error {
	stamp(&event.BaseEvent, models.EventTypeRelationshipEstablished)
	key := fmt.Sprintf("account-%d", event.ChildID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming order-workflow events.
type EventHandler struct {
	onOrderFinalized func(context.Context, *models.OrderFinalizedEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderFinalized registers a handler for OrderFinalized events
func (eh *EventHandler) OnOrderFinalized(handler func(context.Context, *models.OrderFinalizedEvent) error) {
	eh.onOrderFinalized = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderFinalized:
		if eh.onOrderFinalized != nil {
			var event models.OrderFinalizedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderFinalized event: %w", err)
			}
			return eh.onOrderFinalized(ctx, &event)
		}

	default:
		eh.logger.Debug("Ignoring event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
