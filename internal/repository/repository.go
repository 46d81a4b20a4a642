package repository

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/qcom/phoneauth/internal/models"
)

// ErrUserExists is returned by UserStore.Create when the phone is taken.
var ErrUserExists = errors.New("user already exists")

// MatchFunc decides whether a loaded OTP record may be consumed.
type MatchFunc func(rec *models.OTPRecord) bool

// OTPStore keeps at most one OTP record per phone.
type OTPStore interface {
	// Upsert replaces any record for rec.Phone. ttl only bounds physical
	// retention; logical expiry is checked by the caller.
	Upsert(ctx context.Context, rec models.OTPRecord, ttl time.Duration) error
	// Get returns the record for phone, or nil if none is stored.
	Get(ctx context.Context, phone string) (*models.OTPRecord, error)
	// Consume loads the record, calls match and deletes the record only if
	// match returned true and nobody changed the record in between. At most
	// one concurrent caller observes true for a given record.
	Consume(ctx context.Context, phone string, match MatchFunc) (bool, error)
	// Delete removes any record for phone. Deleting nothing is not an error.
	Delete(ctx context.Context, phone string) error
}

// UserStore is the directory of registered identities.
type UserStore interface {
	// FindByPhone returns nil, nil when no user has the phone.
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
	Exists(ctx context.Context, phone string) (bool, error)
	// Create fails with ErrUserExists if the phone is already registered.
	Create(ctx context.Context, user *models.User) error
	TouchLastLogin(ctx context.Context, phone string, at time.Time) error
}

// DynamoAPI is the subset of the DynamoDB client the repositories use.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}
