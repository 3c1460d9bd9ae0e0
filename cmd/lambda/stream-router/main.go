// stream-router Lambda receives DynamoDB Stream events and delivers each newly
// committed absence notification to the configured alert sinks.
package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"

	"github.com/dwsmith1983/rollcall/internal/alert"
	intlambda "github.com/dwsmith1983/rollcall/internal/lambda"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

var (
	deps     *intlambda.Deps
	depsOnce sync.Once
	depsErr  error
)

func getDeps() (*intlambda.Deps, error) {
	depsOnce.Do(func() {
		deps, depsErr = intlambda.Init(context.Background())
	})
	return deps, depsErr
}

// Notifier delivers alerts and reports delivery failures.
type Notifier interface {
	DispatchErr(ctx context.Context, a types.Alert) error
}

// handleStreamEvent fans out every notification inserted in the batch. A
// notification that any sink failed to take is returned as a batch item
// failure so Lambda retries the stream from that record.
func handleStreamEvent(ctx context.Context, n Notifier, logger *slog.Logger, event intlambda.StreamEvent) events.DynamoDBEventResponse {
	var resp events.DynamoDBEventResponse
	notes := intlambda.NotificationsFromStream(event, logger)
	for _, note := range notes {
		if err := n.DispatchErr(ctx, alert.ForNotification(note.Notification)); err != nil {
			logger.Error("notification delivery failed", "notificationId", note.ID, "studentId", note.StudentID,
				"sequenceNumber", note.SequenceNumber, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.DynamoDBBatchItemFailure{
				ItemIdentifier: note.SequenceNumber,
			})
		}
	}
	if len(notes) > 0 {
		logger.Info("notifications routed", "count", len(notes), "failed", len(resp.BatchItemFailures), "records", len(event.Records))
	}
	return resp
}

func handler(ctx context.Context, event intlambda.StreamEvent) (events.DynamoDBEventResponse, error) {
	d, err := getDeps()
	if err != nil {
		return events.DynamoDBEventResponse{}, err
	}
	return handleStreamEvent(ctx, d.Notifier, d.Logger, event), nil
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
