package lambda

import (
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/dwsmith1983/rollcall/internal/provider/dynamodb"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// StreamEvent is the input to the stream-router Lambda.
type StreamEvent = events.DynamoDBEvent

// StreamNotification is a notification decoded from a stream record, with
// the record's sequence number for reporting partial batch failures.
type StreamNotification struct {
	types.Notification
	SequenceNumber string
}

// NotificationsFromStream returns the notifications inserted by a stream
// batch. Other record types, updates (resolution) and removals are ignored;
// undecodable notification records are logged and skipped.
func NotificationsFromStream(event StreamEvent, logger *slog.Logger) []StreamNotification {
	if logger == nil {
		logger = slog.Default()
	}
	var notes []StreamNotification
	for _, record := range event.Records {
		if record.EventName != "INSERT" {
			continue
		}
		pk, okPK := stringAttr(record.Change.Keys, "PK")
		sk, okSK := stringAttr(record.Change.Keys, "SK")
		if !okPK || !okSK {
			logger.Warn("stream record missing PK/SK", "eventID", record.EventID)
			continue
		}
		if !dynamodb.IsNotificationKey(pk, sk) {
			continue
		}
		data, ok := stringAttr(record.Change.NewImage, dynamodb.DataAttribute)
		if !ok {
			logger.Warn("notification record without data; is the stream view NEW_IMAGE?", "eventID", record.EventID, "sk", sk)
			continue
		}
		n, err := dynamodb.DecodeNotification(data)
		if err != nil {
			logger.Error("skipping notification record", "eventID", record.EventID, "sk", sk, "error", err)
			continue
		}
		notes = append(notes, StreamNotification{Notification: n, SequenceNumber: record.Change.SequenceNumber})
	}
	return notes
}

func stringAttr(attrs map[string]events.DynamoDBAttributeValue, name string) (string, bool) {
	av, ok := attrs[name]
	if !ok || av.DataType() != events.DataTypeString {
		return "", false
	}
	return av.String(), true
}
