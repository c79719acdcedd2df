// Package realtime tracks websocket connections and pushes decision
// events to them.
package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ConnectionIndex is the inverted index used to find a connection's owner.
const ConnectionIndex = "GSI1"

// DefaultConnectionTTL bounds how long a connection row outlives a missed
// $disconnect.
const DefaultConnectionTTL = 2 * time.Hour

// DynamoDBAPI is the part of the DynamoDB client the store uses.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Connection is one open websocket.
type Connection struct {
	ConnectionID string
	UserID       string
	ConnectedAt  time.Time
}

// connectionItem is stored under PK=USER#<user>, SK=CONN#<connection>,
// with the keys swapped in the GSI.
type connectionItem struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	GSI1PK      string `dynamodbav:"GSI1PK"`
	GSI1SK      string `dynamodbav:"GSI1SK"`
	ConnectedAt string `dynamodbav:"ConnectedAt"`
	ExpireAt    int64  `dynamodbav:"expireAt"`
}

// ConnectionStore keeps connection rows in DynamoDB.
type ConnectionStore struct {
	client    DynamoDBAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

func NewConnectionStore(client DynamoDBAPI, tableName string, ttl time.Duration) *ConnectionStore {
	if ttl <= 0 {
		ttl = DefaultConnectionTTL
	}
	return &ConnectionStore{client: client, tableName: tableName, ttl: ttl, now: time.Now}
}

// Save records that connectionID belongs to userID.
func (s *ConnectionStore) Save(ctx context.Context, userID, connectionID string) error {
	now := s.now().UTC()
	item, err := attributevalue.MarshalMap(connectionItem{
		PK:          userKey(userID),
		SK:          connKey(connectionID),
		GSI1PK:      connKey(connectionID),
		GSI1SK:      userKey(userID),
		ConnectedAt: now.Format(time.RFC3339),
		ExpireAt:    now.Add(s.ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal connection: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}
	return nil
}

// Remove deletes a connection whose owner is unknown, as on $disconnect.
// A missing connection is not an error.
func (s *ConnectionStore) Remove(ctx context.Context, connectionID string) error {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("GSI1PK").Equal(expression.Value(connKey(connectionID)))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build key condition: %w", err)
	}
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(ConnectionIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return fmt.Errorf("failed to look up connection: %w", err)
	}

	for _, raw := range out.Items {
		var item connectionItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return fmt.Errorf("failed to unmarshal connection: %w", err)
		}
		if err := s.delete(ctx, item.PK, item.SK); err != nil {
			return err
		}
	}
	return nil
}

// RemoveForUser deletes a connection of a known owner.
func (s *ConnectionStore) RemoveForUser(ctx context.Context, userID, connectionID string) error {
	return s.delete(ctx, userKey(userID), connKey(connectionID))
}

// ListForUser returns the user's open connections.
func (s *ConnectionStore) ListForUser(ctx context.Context, userID string) ([]Connection, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(userKey(userID))).
		And(expression.Key("SK").BeginsWith("CONN#"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build key condition: %w", err)
	}

	var conns []Connection
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query connections: %w", err)
		}
		for _, raw := range page.Items {
			var item connectionItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("failed to unmarshal connection: %w", err)
			}
			connectedAt, _ := time.Parse(time.RFC3339, item.ConnectedAt)
			conns = append(conns, Connection{
				ConnectionID: item.SK[len("CONN#"):],
				UserID:       userID,
				ConnectedAt:  connectedAt,
			})
		}
	}
	return conns, nil
}

func (s *ConnectionStore) delete(ctx context.Context, pk, sk string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}

func userKey(userID string) string { return "USER#" + userID }
func connKey(connID string) string { return "CONN#" + connID }
