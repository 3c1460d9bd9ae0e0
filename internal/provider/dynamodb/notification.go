package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/rollcall/internal/provider"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

const defaultNotificationLimit = 50

// DataAttribute names the attribute holding a record's JSON payload.
const DataAttribute = attrData

// IsNotificationKey reports whether a PK/SK pair addresses a notification
// record, as seen on the table's stream.
func IsNotificationKey(pk, sk string) bool {
	return strings.HasPrefix(pk, prefixStudent) && strings.HasPrefix(sk, prefixNotification)
}

// DecodeNotification parses the data attribute of a notification record.
func DecodeNotification(data string) (types.Notification, error) {
	var n types.Notification
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		return types.Notification{}, fmt.Errorf("decoding notification: %w", err)
	}
	if n.ID == "" || n.StudentID == "" {
		return types.Notification{}, fmt.Errorf("decoding notification: missing id or student")
	}
	return n, nil
}

func notificationItem(n types.Notification) (map[string]ddbtypes.AttributeValue, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshaling notification: %w", err)
	}
	return map[string]ddbtypes.AttributeValue{
		"PK":     strAttr(studentPK(n.StudentID)),
		"SK":     strAttr(notificationSK(n.ID)),
		"GSI1PK": strAttr(typeNotification),
		"GSI1SK": strAttr(notificationSK(n.ID)),
		attrData: strAttr(string(data)),
	}, nil
}

// ListNotifications returns notifications newest first. An empty studentID
// lists across all students via GSI1.
func (p *DynamoDBProvider) ListNotifications(ctx context.Context, studentID string, limit int) ([]types.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}

	input := &dynamodb.QueryInput{
		TableName:        &p.tableName,
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}
	if studentID == "" {
		input.IndexName = aws.String(gsiName)
		input.KeyConditionExpression = aws.String("GSI1PK = :pk")
		input.ExpressionAttributeValues = map[string]ddbtypes.AttributeValue{
			":pk": strAttr(typeNotification),
		}
	} else {
		input.KeyConditionExpression = aws.String("PK = :pk AND begins_with(SK, :prefix)")
		input.ExpressionAttributeValues = map[string]ddbtypes.AttributeValue{
			":pk":     strAttr(studentPK(studentID)),
			":prefix": strAttr(prefixNotification),
		}
	}

	var notes []types.Notification
	pager := dynamodb.NewQueryPaginator(p.client, input)
	for pager.HasMorePages() && len(notes) < limit {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing notifications: %w", err)
		}
		for _, item := range page.Items {
			data, err := attributeStr(item, attrData)
			if err != nil {
				p.logger.Warn("skipping corrupt notification entry", "error", err)
				continue
			}
			var n types.Notification
			if err := json.Unmarshal([]byte(data), &n); err != nil {
				p.logger.Warn("skipping corrupt notification data", "error", err)
				continue
			}
			n.Resolved = n.Resolved || attributeBool(item, attrResolved)
			notes = append(notes, n)
			if len(notes) == limit {
				break
			}
		}
	}
	return notes, nil
}

// ResolveNotification marks a notification resolved.
func (p *DynamoDBProvider) ResolveNotification(ctx context.Context, studentID, notificationID string) error {
	_, err := p.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &p.tableName,
		Key:                 itemKey(studentPK(studentID), notificationSK(notificationID)),
		UpdateExpression:    aws.String("SET #resolved = :t"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames: map[string]string{
			"#resolved": attrResolved,
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":t": &ddbtypes.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return fmt.Errorf("notification %q: %w", notificationID, provider.ErrNotFound)
		}
		return err
	}
	return nil
}
