package eventbridge_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"decivue/domain/core/valueobjects"
	"decivue/domain/events"
	"decivue/infrastructure/messaging/eventbridge"

	"github.com/aws/aws-sdk-go-v2/aws"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClient struct {
	calls  []*awseventbridge.PutEventsInput
	failed int32
	err    error
}

func (f *fakeClient) PutEvents(ctx context.Context, in *awseventbridge.PutEventsInput, _ ...func(*awseventbridge.Options)) (*awseventbridge.PutEventsOutput, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return nil, f.err
	}
	out := &awseventbridge.PutEventsOutput{FailedEntryCount: f.failed}
	for range in.Entries {
		entry := types.PutEventsResultEntry{}
		if f.failed > 0 {
			entry.ErrorCode = aws.String("InternalFailure")
		}
		out.Entries = append(out.Entries, entry)
	}
	return out, nil
}

func decisionEvents(n int) []events.DomainEvent {
	out := make([]events.DomainEvent, n)
	for i := range out {
		out[i] = events.NewDecisionEvent(
			valueobjects.NewDecisionID(), "user-1", valueobjects.EventCreated, "",
			0, nil, valueobjects.StatusFresh, 1, time.Now().UTC(),
		)
	}
	return out
}

func TestPublishBatch_ChunksByTen(t *testing.T) {
	client := &fakeClient{}
	p := eventbridge.NewPublisher(client, "decivue-events", zap.NewNop())

	require.NoError(t, p.PublishBatch(context.Background(), decisionEvents(23)))

	require.Len(t, client.calls, 3)
	assert.Len(t, client.calls[0].Entries, 10)
	assert.Len(t, client.calls[2].Entries, 3)

	entry := client.calls[0].Entries[0]
	assert.Equal(t, "decivue-events", aws.ToString(entry.EventBusName))
	assert.Equal(t, eventbridge.Source, aws.ToString(entry.Source))
	assert.Equal(t, events.TypeDecisionCreated, aws.ToString(entry.DetailType))

	var detail map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail))
	assert.Equal(t, "user-1", detail["user_id"])
	assert.Equal(t, "created", detail["kind"])
}

func TestPublish_ReportsFailedEntries(t *testing.T) {
	client := &fakeClient{failed: 1}
	p := eventbridge.NewPublisher(client, "bus", zap.NewNop())

	err := p.Publish(context.Background(), decisionEvents(1)[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 events failed")
}

func TestPublish_WrapsClientError(t *testing.T) {
	client := &fakeClient{err: errors.New("throttled")}
	p := eventbridge.NewPublisher(client, "bus", zap.NewNop())

	err := p.Publish(context.Background(), decisionEvents(1)[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestPublishBatch_Empty(t *testing.T) {
	client := &fakeClient{}
	p := eventbridge.NewPublisher(client, "bus", zap.NewNop())
	require.NoError(t, p.PublishBatch(context.Background(), nil))
	assert.Empty(t, client.calls)
}
