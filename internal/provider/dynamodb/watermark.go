package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/rollcall/internal/provider"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// watermarkMaxAttempts bounds optimistic retries of UpdateWatermark.
const watermarkMaxAttempts = 8

// GetWatermark returns the singleton progress record, or the zero value when
// none has been written yet.
func (p *DynamoDBProvider) GetWatermark(ctx context.Context) (types.Watermark, error) {
	wm, _, err := p.readWatermark(ctx)
	return wm, err
}

func (p *DynamoDBProvider) readWatermark(ctx context.Context) (types.Watermark, int64, error) {
	out, err := p.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &p.tableName,
		Key:            itemKey(pkWatermark, skWatermark),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return types.Watermark{}, 0, fmt.Errorf("reading watermark: %w", err)
	}
	if out.Item == nil {
		return types.Watermark{}, 0, nil
	}

	var wm types.Watermark
	data, err := attributeStr(out.Item, attrData)
	if err != nil {
		return types.Watermark{}, 0, err
	}
	if err := json.Unmarshal([]byte(data), &wm); err != nil {
		return types.Watermark{}, 0, fmt.Errorf("unmarshaling watermark: %w", err)
	}
	version, err := attributeInt(out.Item, attrVersion)
	if err != nil {
		return types.Watermark{}, 0, err
	}
	return wm, version, nil
}

// UpdateWatermark applies fn as an optimistic read-modify-write guarded by a
// version attribute. A lost race re-reads and re-runs fn.
func (p *DynamoDBProvider) UpdateWatermark(ctx context.Context, fn provider.WatermarkMutator) (bool, error) {
	for attempt := 0; attempt < watermarkMaxAttempts; attempt++ {
		cur, version, err := p.readWatermark(ctx)
		if err != nil {
			return false, err
		}
		next, write := fn(cur)
		if !write {
			return false, nil
		}

		data, err := json.Marshal(next)
		if err != nil {
			return false, fmt.Errorf("marshaling watermark: %w", err)
		}
		input := &dynamodb.PutItemInput{
			TableName: &p.tableName,
			Item: map[string]ddbtypes.AttributeValue{
				"PK":        strAttr(pkWatermark),
				"SK":        strAttr(skWatermark),
				attrData:    strAttr(string(data)),
				attrVersion: &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(version+1, 10)},
			},
		}
		input.ExpressionAttributeNames = map[string]string{"#version": attrVersion}
		if version == 0 {
			input.ConditionExpression = aws.String("attribute_not_exists(PK) OR attribute_not_exists(#version)")
		} else {
			input.ConditionExpression = aws.String("#version = :v")
			input.ExpressionAttributeValues = map[string]ddbtypes.AttributeValue{
				":v": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(version, 10)},
			}
		}

		if _, err := p.client.PutItem(ctx, input); err != nil {
			if isConditionalCheckFailed(err) {
				p.logger.Debug("watermark write lost race, retrying", "attempt", attempt+1)
				continue
			}
			return false, fmt.Errorf("writing watermark: %w", err)
		}
		return true, nil
	}
	return false, fmt.Errorf("writing watermark: still contended after %d attempts", watermarkMaxAttempts)
}
