package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/rollcall/pkg/types"
)

// applyConcurrency bounds in-flight writes per ApplyStreakUpdates call.
const applyConcurrency = 16

// guardCondition rejects updates for days the stored state already reflects.
const guardCondition = "attribute_not_exists(#lastDate) OR #lastDate < :day"

func streakKey(u types.StreakUpdate) map[string]ddbtypes.AttributeValue {
	if u.Scope == types.ScopeGlobal {
		return itemKey(studentPK(u.StudentID), skGlobalStreak)
	}
	return itemKey(subjectPK(u.SubjectID), studentSK(u.StudentID))
}

func streakFromItem(item map[string]ddbtypes.AttributeValue) (types.StreakState, error) {
	var st types.StreakState
	raw, err := attributeStr(item, attrStreak)
	if err != nil {
		return st, nil
	}
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return types.StreakState{}, fmt.Errorf("unmarshaling streak: %w", err)
	}
	return st, nil
}

// GetGlobalStreaks batch-reads global streak state. Students without state
// are absent from the result.
func (p *DynamoDBProvider) GetGlobalStreaks(ctx context.Context, studentIDs []string) (map[string]types.StreakState, error) {
	result := make(map[string]types.StreakState, len(studentIDs))
	seen := make(map[string]bool, len(studentIDs))
	var keys []map[string]ddbtypes.AttributeValue
	for _, id := range studentIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, itemKey(studentPK(id), skGlobalStreak))
	}

	for start := 0; start < len(keys); start += batchGetChunkSize {
		end := min(start+batchGetChunkSize, len(keys))
		if err := p.batchGetStreaks(ctx, keys[start:end], result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (p *DynamoDBProvider) batchGetStreaks(ctx context.Context, keys []map[string]ddbtypes.AttributeValue, into map[string]types.StreakState) error {
	request := map[string]ddbtypes.KeysAndAttributes{
		p.tableName: {Keys: keys, ConsistentRead: aws.Bool(true)},
	}
	for attempt := 0; len(request) > 0; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
			}
		}
		out, err := p.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
		if err != nil {
			return fmt.Errorf("reading global streaks: %w", err)
		}
		for _, item := range out.Responses[p.tableName] {
			pk, err := attributeStr(item, "PK")
			if err != nil {
				continue
			}
			st, err := streakFromItem(item)
			if err != nil {
				p.logger.Warn("ignoring corrupt global streak", "pk", pk, "error", err)
				continue
			}
			into[strings.TrimPrefix(pk, prefixStudent)] = st
		}
		request = out.UnprocessedKeys
	}
	return nil
}

// ApplyStreakUpdates writes each update under a conditional guard on the
// stored LastDate. An update carrying a notification is written in one
// transaction with the notification record.
func (p *DynamoDBProvider) ApplyStreakUpdates(ctx context.Context, updates []types.StreakUpdate) (types.ApplyResult, error) {
	applied := make([]bool, len(updates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(applyConcurrency)
	for i := range updates {
		g.Go(func() error {
			ok, err := p.applyOne(gctx, updates[i])
			if err != nil {
				return fmt.Errorf("applying %s streak for %s on %s: %w", updates[i].Scope, updates[i].StudentID, updates[i].Date, err)
			}
			applied[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.ApplyResult{}, err
	}

	var res types.ApplyResult
	for i, ok := range applied {
		if !ok {
			res.Skipped++
			continue
		}
		res.Applied++
		if n := updates[i].Notification; n != nil {
			res.Notifications = append(res.Notifications, *n)
		}
	}
	return res, nil
}

func (p *DynamoDBProvider) applyOne(ctx context.Context, u types.StreakUpdate) (bool, error) {
	state, err := json.Marshal(u.State)
	if err != nil {
		return false, fmt.Errorf("marshaling streak: %w", err)
	}
	update := &ddbtypes.Update{
		TableName:           &p.tableName,
		Key:                 streakKey(u),
		UpdateExpression:    aws.String("SET #streak = :streak, #lastDate = :day"),
		ConditionExpression: aws.String(guardCondition),
		ExpressionAttributeNames: map[string]string{
			"#streak":   attrStreak,
			"#lastDate": attrLastDate,
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":streak": strAttr(string(state)),
			":day":    strAttr(u.Date),
		},
	}

	if u.Notification == nil {
		_, err := p.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 update.TableName,
			Key:                       update.Key,
			UpdateExpression:          update.UpdateExpression,
			ConditionExpression:       update.ConditionExpression,
			ExpressionAttributeNames:  update.ExpressionAttributeNames,
			ExpressionAttributeValues: update.ExpressionAttributeValues,
		})
		if err != nil {
			if isConditionalCheckFailed(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}

	note, err := notificationItem(*u.Notification)
	if err != nil {
		return false, err
	}
	_, err = p.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []ddbtypes.TransactWriteItem{
			{Update: update},
			{Put: &ddbtypes.Put{
				TableName:           &p.tableName,
				Item:                note,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
		},
	})
	if err != nil {
		if isTransactionConditionFailed(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
