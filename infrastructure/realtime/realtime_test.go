package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwtypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeTable matches Query key conditions against any string value bound
// in the expression, which is enough for the equality and prefix
// conditions the store issues.
type fakeTable struct {
	mu    sync.Mutex
	items []connectionItem
}

func (f *fakeTable) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	var item connectionItem
	if err := attributevalue.UnmarshalMap(in.Item, &item); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	pk := in.Key["PK"].(*types.AttributeValueMemberS).Value
	sk := in.Key["SK"].(*types.AttributeValueMemberS).Value
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.items[:0]
	for _, it := range f.items {
		if it.PK != pk || it.SK != sk {
			kept = append(kept, it)
		}
	}
	f.items = kept
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeTable) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	values := map[string]bool{}
	for _, v := range in.ExpressionAttributeValues {
		if s, ok := v.(*types.AttributeValueMemberS); ok {
			values[s.Value] = true
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := &dynamodb.QueryOutput{}
	for _, it := range f.items {
		key := it.PK
		if aws.ToString(in.IndexName) == ConnectionIndex {
			key = it.GSI1PK
		}
		if !values[key] {
			continue
		}
		av, err := attributevalue.MarshalMap(it)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, av)
	}
	return out, nil
}

type fakeGateway struct {
	gone   map[string]bool
	failed map[string]bool
	posted []string
}

func (g *fakeGateway) PostToConnection(ctx context.Context, in *apigatewaymanagementapi.PostToConnectionInput, _ ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error) {
	id := aws.ToString(in.ConnectionId)
	switch {
	case g.gone[id]:
		return nil, &apigwtypes.GoneException{}
	case g.failed[id]:
		return nil, errors.New("throttled")
	}
	g.posted = append(g.posted, id)

	var msg Message
	if err := json.Unmarshal(in.Data, &msg); err != nil {
		return nil, err
	}
	return &apigatewaymanagementapi.PostToConnectionOutput{}, nil
}

func newStore(table *fakeTable) *ConnectionStore {
	s := NewConnectionStore(table, "connections", time.Hour)
	s.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestConnectionStore_SaveListRemove(t *testing.T) {
	ctx := context.Background()
	table := &fakeTable{}
	store := newStore(table)

	require.NoError(t, store.Save(ctx, "u1", "c1"))
	require.NoError(t, store.Save(ctx, "u1", "c2"))
	require.NoError(t, store.Save(ctx, "u2", "c3"))

	assert.Equal(t, time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC).Unix(), table.items[0].ExpireAt)

	conns, err := store.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, conns, 2)
	assert.Equal(t, "c1", conns[0].ConnectionID)
	assert.Equal(t, "u1", conns[0].UserID)

	require.NoError(t, store.Remove(ctx, "c1"))
	conns, err = store.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "c2", conns[0].ConnectionID)

	// unknown connection
	require.NoError(t, store.Remove(ctx, "missing"))
}

func TestPusher_SendsAndForgetsGoneConnections(t *testing.T) {
	ctx := context.Background()
	table := &fakeTable{}
	store := newStore(table)
	require.NoError(t, store.Save(ctx, "u1", "live"))
	require.NoError(t, store.Save(ctx, "u1", "stale"))

	gw := &fakeGateway{gone: map[string]bool{"stale": true}}
	pusher := NewPusher(store, gw, zap.NewNop())

	result, err := pusher.Push(ctx, "u1", "decision.revised", json.RawMessage(`{"user_id":"u1"}`), time.Now())
	require.NoError(t, err)
	assert.Equal(t, PushResult{Sent: 1, Gone: 1, Targets: 2}, result)
	assert.Equal(t, []string{"live"}, gw.posted)

	conns, err := store.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "live", conns[0].ConnectionID)
}

func TestPusher_FailsWhenNothingDelivered(t *testing.T) {
	ctx := context.Background()
	store := newStore(&fakeTable{})
	require.NoError(t, store.Save(ctx, "u1", "c1"))

	pusher := NewPusher(store, &fakeGateway{failed: map[string]bool{"c1": true}}, zap.NewNop())

	result, err := pusher.Push(ctx, "u1", "decision.created", json.RawMessage(`{}`), time.Now())
	require.Error(t, err)
	assert.Equal(t, 1, result.Failed)
}

func TestPusher_NoConnectionsIsNotAnError(t *testing.T) {
	pusher := NewPusher(newStore(&fakeTable{}), &fakeGateway{}, zap.NewNop())

	result, err := pusher.Push(context.Background(), "nobody", "decision.created", json.RawMessage(`{}`), time.Now())
	require.NoError(t, err)
	assert.Zero(t, result.Targets)
}
