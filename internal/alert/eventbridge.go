package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	"github.com/dwsmith1983/rollcall/pkg/types"
)

// DefaultEventSource is the EventBridge source used when none is configured.
const DefaultEventSource = "rollcall.attendance"

// EventBridgeAPI is the subset of the EventBridge client used by EventBridgeSink.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgeSink publishes alerts as events on a bus. The detail type is the
// alert category, e.g. "absent3_subject".
type EventBridgeSink struct {
	client  EventBridgeAPI
	busName string
	source  string
}

// NewEventBridgeSink creates an EventBridge sink.
func NewEventBridgeSink(busName, source string, client EventBridgeAPI) (*EventBridgeSink, error) {
	if busName == "" {
		return nil, fmt.Errorf("EventBridge bus name required")
	}
	if source == "" {
		source = DefaultEventSource
	}
	return &EventBridgeSink{client: client, busName: busName, source: source}, nil
}

func newEventBridgeClient(cfg aws.Config) EventBridgeAPI {
	return eventbridge.NewFromConfig(cfg)
}

// Name returns the sink identifier.
func (s *EventBridgeSink) Name() string { return "eventbridge" }

// Send puts a single event and fails if the bus rejected it.
func (s *EventBridgeSink) Send(ctx context.Context, alert types.Alert) error {
	detail, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshaling alert: %w", err)
	}
	detailType := alert.Category
	if detailType == "" {
		detailType = "alert"
	}

	out, err := s.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []ebtypes.PutEventsRequestEntry{{
			EventBusName: aws.String(s.busName),
			Source:       aws.String(s.source),
			DetailType:   aws.String(detailType),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(alert.Timestamp),
		}},
	})
	if err != nil {
		return fmt.Errorf("put event: %w", err)
	}
	if out.FailedEntryCount > 0 {
		msg := "unknown"
		if len(out.Entries) > 0 && out.Entries[0].ErrorMessage != nil {
			msg = *out.Entries[0].ErrorMessage
		}
		return fmt.Errorf("event rejected: %s", msg)
	}
	return nil
}
