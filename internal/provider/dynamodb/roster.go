package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/rollcall/pkg/types"
)

// PutSubject stores a subject definition.
func (p *DynamoDBProvider) PutSubject(ctx context.Context, subject types.Subject) error {
	data, err := json.Marshal(subject)
	if err != nil {
		return fmt.Errorf("marshaling subject: %w", err)
	}

	_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &p.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":     strAttr(subjectPK(subject.ID)),
			"SK":     strAttr(skMeta),
			"GSI1PK": strAttr(typeSubject),
			"GSI1SK": strAttr(subjectPK(subject.ID)),
			attrData: strAttr(string(data)),
		},
	})
	return err
}

// ListSubjects returns every subject via GSI1, ordered by ID.
func (p *DynamoDBProvider) ListSubjects(ctx context.Context) ([]types.Subject, error) {
	items, err := p.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              &p.tableName,
		IndexName:              aws.String(gsiName),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk": strAttr(typeSubject),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("listing subjects: %w", err)
	}

	subjects := make([]types.Subject, 0, len(items))
	for _, item := range items {
		data, err := attributeStr(item, attrData)
		if err != nil {
			p.logger.Warn("skipping corrupt subject entry", "error", err)
			continue
		}
		var s types.Subject
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			p.logger.Warn("skipping corrupt subject data", "error", err)
			continue
		}
		subjects = append(subjects, s)
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].ID < subjects[j].ID })
	return subjects, nil
}

// PutRosterEntry enrolls a student without touching the streak state stored
// on the same item.
func (p *DynamoDBProvider) PutRosterEntry(ctx context.Context, subjectID string, entry types.RosterEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling roster entry: %w", err)
	}

	_, err = p.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &p.tableName,
		Key:              itemKey(subjectPK(subjectID), studentSK(entry.StudentID)),
		UpdateExpression: aws.String("SET #data = :data"),
		ExpressionAttributeNames: map[string]string{
			"#data": attrData,
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":data": strAttr(string(data)),
		},
	})
	return err
}

// ListRoster returns the subject's enrolled students with their per-subject
// streak state.
func (p *DynamoDBProvider) ListRoster(ctx context.Context, subjectID string) ([]types.RosterEntry, error) {
	items, err := p.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              &p.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     strAttr(subjectPK(subjectID)),
			":prefix": strAttr(prefixStudent),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("listing roster for %q: %w", subjectID, err)
	}

	entries := make([]types.RosterEntry, 0, len(items))
	for _, item := range items {
		sk, err := attributeStr(item, "SK")
		if err != nil {
			p.logger.Warn("skipping roster entry without SK", "subject", subjectID, "error", err)
			continue
		}
		entry := types.RosterEntry{StudentID: strings.TrimPrefix(sk, prefixStudent)}
		if data, err := attributeStr(item, attrData); err == nil {
			if err := json.Unmarshal([]byte(data), &entry); err != nil {
				p.logger.Warn("skipping corrupt roster data", "subject", subjectID, "sk", sk, "error", err)
				continue
			}
		}
		st, err := streakFromItem(item)
		if err != nil {
			p.logger.Warn("ignoring corrupt streak state", "subject", subjectID, "sk", sk, "error", err)
		}
		entry.Streak = st
		entries = append(entries, entry)
	}
	return entries, nil
}

// queryAll drains every page of a query.
func (p *DynamoDBProvider) queryAll(ctx context.Context, input *dynamodb.QueryInput) ([]map[string]ddbtypes.AttributeValue, error) {
	var items []map[string]ddbtypes.AttributeValue
	pager := dynamodb.NewQueryPaginator(p.client, input)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}
