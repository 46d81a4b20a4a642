package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/qcom/phoneauth/internal/models"
	"github.com/sirupsen/logrus"
)

type DynamoOTPStore struct {
	client    DynamoAPI
	tableName string
	logger    *logrus.Logger
}

func NewDynamoOTPStore(client DynamoAPI, tableName string, logger *logrus.Logger) *DynamoOTPStore {
	return &DynamoOTPStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func otpItemKey(phone string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("OTP#%s", phone)},
		"SK": &types.AttributeValueMemberS{Value: "METADATA"},
	}
}

// Upsert stores the record with an unconditional PutItem. The TTL attribute
// lets DynamoDB reclaim the item; it is not used for validity.
func (r *DynamoOTPStore) Upsert(ctx context.Context, rec models.OTPRecord, ttl time.Duration) error {
	item := otpItemKey(rec.Phone)
	item["Phone"] = &types.AttributeValueMemberS{Value: rec.Phone}
	item["CodeHash"] = &types.AttributeValueMemberS{Value: rec.CodeHash}
	item["CreatedAt"] = &types.AttributeValueMemberS{Value: rec.CreatedAt.Format(time.RFC3339Nano)}
	item["TTL"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", rec.CreatedAt.Add(ttl).Unix())}

	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		r.logger.WithError(err).WithField("phone", rec.Phone).Error("Failed to store OTP in DynamoDB")
		return fmt.Errorf("failed to store OTP: %w", err)
	}
	return nil
}

func (r *DynamoOTPStore) Get(ctx context.Context, phone string) (*models.OTPRecord, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            otpItemKey(phone),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var rec models.OTPRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP data: %w", err)
	}
	return &rec, nil
}

// Consume deletes the item only if CodeHash and CreatedAt still equal what
// match saw, so a concurrent consume or re-issue makes the delete fail.
func (r *DynamoOTPStore) Consume(ctx context.Context, phone string, match MatchFunc) (bool, error) {
	rec, err := r.Get(ctx, phone)
	if err != nil {
		return false, err
	}
	if rec == nil || !match(rec) {
		return false, nil
	}

	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 otpItemKey(phone),
		ConditionExpression: aws.String("CodeHash = :hash AND CreatedAt = :created"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":hash":    &types.AttributeValueMemberS{Value: rec.CodeHash},
			":created": &types.AttributeValueMemberS{Value: rec.CreatedAt.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		r.logger.WithError(err).WithField("phone", phone).Error("Failed to consume OTP in DynamoDB")
		return false, fmt.Errorf("failed to consume OTP: %w", err)
	}
	return true, nil
}

func (r *DynamoOTPStore) Delete(ctx context.Context, phone string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       otpItemKey(phone),
	})
	if err != nil {
		return fmt.Errorf("failed to delete OTP: %w", err)
	}
	return nil
}
