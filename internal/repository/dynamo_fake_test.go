package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is an in-memory DynamoAPI that understands the handful of
// condition and update expressions the repositories send.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	err   error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func itemID(key map[string]types.AttributeValue) string {
	return attrString(key["PK"]) + "|" + attrString(key["SK"])
}

func attrString(v types.AttributeValue) string {
	switch a := v.(type) {
	case *types.AttributeValueMemberS:
		return a.Value
	case *types.AttributeValueMemberN:
		return a.Value
	case *types.AttributeValueMemberBOOL:
		return fmt.Sprint(a.Value)
	default:
		return ""
	}
}

func copyItem(in map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

// checkCondition evaluates attribute_(not_)exists(PK) and "A = :a AND B = :b".
func checkCondition(expr *string, item map[string]types.AttributeValue, values map[string]types.AttributeValue) bool {
	if expr == nil {
		return true
	}
	switch *expr {
	case "attribute_not_exists(PK)":
		return item == nil
	case "attribute_exists(PK)":
		return item != nil
	}
	if item == nil {
		return false
	}
	for _, clause := range strings.Split(*expr, " AND ") {
		parts := strings.SplitN(clause, " = ", 2)
		if len(parts) != 2 {
			return false
		}
		if attrString(item[strings.TrimSpace(parts[0])]) != attrString(values[strings.TrimSpace(parts[1])]) {
			return false
		}
	}
	return true
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	item, ok := f.items[itemID(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	id := itemID(in.Item)
	if !checkCondition(in.ConditionExpression, f.items[id], in.ExpressionAttributeValues) {
		return nil, conditionFailed()
	}
	f.items[id] = copyItem(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	id := itemID(in.Key)
	if !checkCondition(in.ConditionExpression, f.items[id], in.ExpressionAttributeValues) {
		return nil, conditionFailed()
	}
	delete(f.items, id)
	return &dynamodb.DeleteItemOutput{}, nil
}

// UpdateItem supports "SET a = :x, b = :y".
func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	id := itemID(in.Key)
	item := f.items[id]
	if !checkCondition(in.ConditionExpression, item, in.ExpressionAttributeValues) {
		return nil, conditionFailed()
	}
	if item == nil {
		item = copyItem(in.Key)
	}
	set := strings.TrimPrefix(aws.ToString(in.UpdateExpression), "SET ")
	for _, assignment := range strings.Split(set, ",") {
		parts := strings.SplitN(assignment, " = ", 2)
		if len(parts) != 2 {
			continue
		}
		item[strings.TrimSpace(parts[0])] = in.ExpressionAttributeValues[strings.TrimSpace(parts[1])]
	}
	f.items[id] = item
	return &dynamodb.UpdateItemOutput{}, nil
}
