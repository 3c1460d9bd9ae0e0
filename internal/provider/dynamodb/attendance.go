package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/rollcall/pkg/types"
)

func attendanceItem(fact types.AttendanceFact) (map[string]ddbtypes.AttributeValue, error) {
	data, err := json.Marshal(fact)
	if err != nil {
		return nil, fmt.Errorf("marshaling attendance: %w", err)
	}
	return map[string]ddbtypes.AttributeValue{
		"PK":     strAttr(attendancePK(fact.Date, fact.SubjectID)),
		"SK":     strAttr(studentSK(fact.StudentID)),
		attrData: strAttr(string(data)),
	}, nil
}

// PutAttendance writes a fact, replacing any existing one for the same key.
func (p *DynamoDBProvider) PutAttendance(ctx context.Context, fact types.AttendanceFact) error {
	item, err := attendanceItem(fact)
	if err != nil {
		return err
	}
	_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &p.tableName,
		Item:      item,
	})
	return err
}

// CreateAttendance writes a fact only when no fact exists for its key.
func (p *DynamoDBProvider) CreateAttendance(ctx context.Context, fact types.AttendanceFact) (bool, error) {
	item, err := attendanceItem(fact)
	if err != nil {
		return false, err
	}
	_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &p.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListAttendance returns every fact recorded for a subject on a day.
func (p *DynamoDBProvider) ListAttendance(ctx context.Context, date, subjectID string) ([]types.AttendanceFact, error) {
	items, err := p.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              &p.tableName,
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk": strAttr(attendancePK(date, subjectID)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("listing attendance for %s/%s: %w", date, subjectID, err)
	}

	facts := make([]types.AttendanceFact, 0, len(items))
	for _, item := range items {
		data, err := attributeStr(item, attrData)
		if err != nil {
			p.logger.Warn("skipping corrupt attendance entry", "date", date, "subject", subjectID, "error", err)
			continue
		}
		var f types.AttendanceFact
		if err := json.Unmarshal([]byte(data), &f); err != nil {
			p.logger.Warn("skipping corrupt attendance data", "date", date, "subject", subjectID, "error", err)
			continue
		}
		facts = append(facts, f)
	}
	return facts, nil
}
