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

type UserRepository struct {
	client    DynamoAPI
	tableName string
	logger    *logrus.Logger
}

func NewUserRepository(client DynamoAPI, tableName string, logger *logrus.Logger) *UserRepository {
	return &UserRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func userKey(phone string) map[string]types.AttributeValue {
	u := &models.User{PhoneNumber: phone}
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: u.GetPK()},
		"SK": &types.AttributeValueMemberS{Value: u.GetSK()},
	}
}

func (r *UserRepository) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            userKey(phone),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		r.logger.WithError(err).WithField("phone", phone).Error("Failed to get user from DynamoDB")
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var user models.User
	if err := attributevalue.UnmarshalMap(result.Item, &user); err != nil {
		r.logger.WithError(err).Error("Failed to unmarshal user from DynamoDB")
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) Exists(ctx context.Context, phone string) (bool, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(r.tableName),
		Key:                  userKey(phone),
		ConsistentRead:       aws.Bool(true),
		ProjectionExpression: aws.String("PK"),
	})
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return result.Item != nil, nil
}

// Create inserts the user with attribute_not_exists(PK), so two concurrent
// registrations for one phone cannot both succeed.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	item, err := attributevalue.MarshalMap(user)
	if err != nil {
		r.logger.WithError(err).Error("Failed to marshal user for DynamoDB")
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	for k, v := range userKey(user.PhoneNumber) {
		item[k] = v
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrUserExists
		}
		r.logger.WithError(err).WithField("phone", user.PhoneNumber).Error("Failed to create user in DynamoDB")
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, phone string, at time.Time) error {
	ts := at.UTC().Format(time.RFC3339Nano)
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 userKey(phone),
		UpdateExpression:    aws.String("SET last_login = :ts, updated_at = :ts"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ts": &types.AttributeValueMemberS{Value: ts},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}
