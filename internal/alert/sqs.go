package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/dwsmith1983/rollcall/pkg/types"
)

// SQSAPI is the subset of the SQS client used by SQSSink.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSink enqueues alerts for a downstream consumer.
type SQSSink struct {
	client   SQSAPI
	queueURL string
}

// NewSQSSink creates an SQS sink.
func NewSQSSink(queueURL string, client SQSAPI) (*SQSSink, error) {
	if queueURL == "" {
		return nil, fmt.Errorf("SQS queue URL required")
	}
	return &SQSSink{client: client, queueURL: queueURL}, nil
}

func newSQSClient(cfg aws.Config) SQSAPI {
	return sqs.NewFromConfig(cfg)
}

// Name returns the sink identifier.
func (s *SQSSink) Name() string { return "sqs" }

// Send enqueues the alert as a JSON message with its category and student as
// message attributes.
func (s *SQSSink) Send(ctx context.Context, alert types.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshaling alert: %w", err)
	}

	attrs := map[string]sqstypes.MessageAttributeValue{
		"level": {DataType: aws.String("String"), StringValue: aws.String(string(alert.Level))},
	}
	if alert.Category != "" {
		attrs["category"] = sqstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(alert.Category)}
	}
	if alert.StudentID != "" {
		attrs["studentId"] = sqstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(alert.StudentID)}
	}

	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(s.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
