package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwtypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"go.uber.org/zap"
)

// PostToConnectionAPI is the part of the API Gateway management client the
// pusher uses.
type PostToConnectionAPI interface {
	PostToConnection(ctx context.Context, params *apigatewaymanagementapi.PostToConnectionInput, optFns ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error)
}

// Message is the frame sent to clients.
type Message struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// PushResult counts the outcome of one push.
type PushResult struct {
	Sent    int
	Gone    int
	Failed  int
	Targets int
}

// Pusher delivers messages to every connection of a user and forgets
// connections API Gateway reports as gone.
type Pusher struct {
	store  *ConnectionStore
	api    PostToConnectionAPI
	logger *zap.Logger
}

func NewPusher(store *ConnectionStore, api PostToConnectionAPI, logger *zap.Logger) *Pusher {
	return &Pusher{store: store, api: api, logger: logger}
}

// NewManagementClient points the API Gateway management API at the
// websocket stage endpoint, e.g. "abc.execute-api.eu-west-1.amazonaws.com/prod".
func NewManagementClient(cfg aws.Config, endpoint string) *apigatewaymanagementapi.Client {
	return apigatewaymanagementapi.NewFromConfig(cfg, func(o *apigatewaymanagementapi.Options) {
		o.BaseEndpoint = aws.String("https://" + endpoint)
	})
}

// Push sends a message of the given type to all of userID's connections.
// It fails only when no connection could be reached for a reason other
// than the connection being gone.
func (p *Pusher) Push(ctx context.Context, userID, msgType string, data json.RawMessage, at time.Time) (PushResult, error) {
	var result PushResult

	frame, err := json.Marshal(Message{Type: msgType, Timestamp: at.Unix(), Data: data})
	if err != nil {
		return result, fmt.Errorf("failed to marshal message: %w", err)
	}

	conns, err := p.store.ListForUser(ctx, userID)
	if err != nil {
		return result, err
	}
	result.Targets = len(conns)

	var lastErr error
	for _, conn := range conns {
		_, err := p.api.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
			ConnectionId: aws.String(conn.ConnectionID),
			Data:         frame,
		})
		if err == nil {
			result.Sent++
			continue
		}

		var gone *apigwtypes.GoneException
		if errors.As(err, &gone) {
			result.Gone++
			if err := p.store.RemoveForUser(ctx, userID, conn.ConnectionID); err != nil {
				p.logger.Warn("Failed to remove gone connection", zap.String("connectionID", conn.ConnectionID), zap.Error(err))
			}
			continue
		}

		result.Failed++
		lastErr = err
		p.logger.Warn("Failed to push to connection", zap.String("connectionID", conn.ConnectionID), zap.Error(err))
	}

	if result.Failed > 0 && result.Sent == 0 {
		return result, fmt.Errorf("all %d pushes failed: %w", result.Failed, lastErr)
	}
	return result, nil
}
