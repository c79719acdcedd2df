package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"decivue/application/ports"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DistributedLock is a lease held in the table with conditional writes.
// Instances running the outbox processor use it so only one of them
// drains the outbox at a time.
type DistributedLock struct {
	client    *dynamodb.Client
	tableName string
	owner     string
	logger    *zap.Logger
}

// LockRecord represents a lock record in DynamoDB
type LockRecord struct {
	PK         string `dynamodbav:"PK"` // LOCK#<resource>
	SK         string `dynamodbav:"SK"` // LOCK
	LockID     string `dynamodbav:"LockID"`
	Owner      string `dynamodbav:"Owner"`
	AcquiredAt string `dynamodbav:"AcquiredAt"`
	ExpiresAt  string `dynamodbav:"ExpiresAt"`
	TTL        int64  `dynamodbav:"TTL"`
}

// NewDistributedLock creates a lock client. owner identifies this process;
// an empty owner gets a random one.
func NewDistributedLock(client *dynamodb.Client, tableName, owner string, logger *zap.Logger) *DistributedLock {
	if owner == "" {
		owner = uuid.NewString()
	}
	return &DistributedLock{client: client, tableName: tableName, owner: owner, logger: logger}
}

var _ ports.Locker = (*DistributedLock)(nil)

// TryLock takes the lease on resource unless another owner holds an
// unexpired one. It never blocks.
func (dl *DistributedLock) TryLock(ctx context.Context, resource string, ttl time.Duration) (ports.Lease, bool, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	lockID := uuid.NewString()

	item, err := attributevalue.MarshalMap(LockRecord{
		PK:         lockPK(resource),
		SK:         "LOCK",
		LockID:     lockID,
		Owner:      dl.owner,
		AcquiredAt: now.Format(time.RFC3339),
		ExpiresAt:  expiresAt.Format(time.RFC3339),
		TTL:        expiresAt.Unix(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal lock: %w", err)
	}

	_, err = dl.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(dl.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR ExpiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	if err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			dl.logger.Debug("Lock already held", zap.String("resource", resource))
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	dl.logger.Debug("Lock acquired",
		zap.String("resource", resource),
		zap.String("owner", dl.owner),
		zap.Duration("ttl", ttl),
	)
	return &lease{dl: dl, resource: resource, lockID: lockID}, true, nil
}

func (dl *DistributedLock) release(ctx context.Context, resource, lockID string) error {
	_, err := dl.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(dl.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: lockPK(resource)},
			"SK": &types.AttributeValueMemberS{Value: "LOCK"},
		},
		ConditionExpression: aws.String("LockID = :lockId AND #owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "Owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lockId": &types.AttributeValueMemberS{Value: lockID},
			":owner":  &types.AttributeValueMemberS{Value: dl.owner},
		},
	})
	if err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			// Expired and taken over; nothing left to release.
			return nil
		}
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

type lease struct {
	dl       *DistributedLock
	resource string
	lockID   string
}

func (l *lease) Release(ctx context.Context) error {
	return l.dl.release(ctx, l.resource, l.lockID)
}

func lockPK(resource string) string { return fmt.Sprintf("LOCK#%s", resource) }
