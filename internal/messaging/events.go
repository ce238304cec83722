package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "gameflow/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"
)

const (
	// EventSource identifies this service on the bus.
	EventSource = "gameflow.server"
	// EventTypeFlowSaved is the detail type of a save announcement.
	EventTypeFlowSaved = "FlowSaved"
)

// FlowSaved announces a persisted snapshot.
type FlowSaved struct {
	Origin  string    `json:"origin,omitempty"`
	Nodes   int       `json:"nodes"`
	Edges   int       `json:"edges"`
	SavedAt time.Time `json:"savedAt"`
}

// EventPublisher announces domain events.
type EventPublisher interface {
	PublishFlowSaved(ctx context.Context, e FlowSaved) error
}

// NoopPublisher drops every event. It is used when no bus is configured.
type NoopPublisher struct{}

// PublishFlowSaved implements EventPublisher.
func (NoopPublisher) PublishFlowSaved(context.Context, FlowSaved) error { return nil }

// EventBridgeAPI is the subset of the EventBridge client the publisher uses.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgePublisher sends events to an EventBridge bus.
type EventBridgePublisher struct {
	client       EventBridgeAPI
	eventBusName string
	logger       *zap.Logger
}

// NewEventBridgePublisher publishes to eventBusName through client.
func NewEventBridgePublisher(client EventBridgeAPI, eventBusName string, logger *zap.Logger) *EventBridgePublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBridgePublisher{
		client:       client,
		eventBusName: eventBusName,
		logger:       logger.Named("eventbridge"),
	}
}

// PublishFlowSaved implements EventPublisher.
func (p *EventBridgePublisher) PublishFlowSaved(ctx context.Context, e FlowSaved) error {
	detail, err := json.Marshal(e)
	if err != nil {
		return apperrors.Wrap(err, "encode event")
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{{
			EventBusName: aws.String(p.eventBusName),
			Source:       aws.String(EventSource),
			DetailType:   aws.String(EventTypeFlowSaved),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(e.SavedAt),
		}},
	})
	if err != nil {
		return apperrors.NewExternalError("eventbridge", err)
	}

	if result.FailedEntryCount > 0 {
		for _, entry := range result.Entries {
			if entry.ErrorCode != nil {
				p.logger.Error("Failed to publish event",
					zap.String("eventType", EventTypeFlowSaved),
					zap.String("errorCode", aws.ToString(entry.ErrorCode)),
					zap.String("errorMessage", aws.ToString(entry.ErrorMessage)),
				)
			}
		}
		return apperrors.NewExternalError("eventbridge",
			fmt.Errorf("%d of %d events failed", result.FailedEntryCount, len(result.Entries)))
	}
	return nil
}
