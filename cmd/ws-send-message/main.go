// Package main pushes decision events from EventBridge to the owner's
// websocket connections.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"decivue/infrastructure/config"
	"decivue/infrastructure/di"
	"decivue/infrastructure/messaging/eventbridge"
	"decivue/infrastructure/realtime"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

var (
	pusher *realtime.Pusher
	logger *zap.Logger
)

func init() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.AWS.WebSocketEndpoint == "" {
		log.Fatal("WEBSOCKET_ENDPOINT must be set")
	}
	logger, err = di.ProvideLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	awsCfg, err := di.ProvideAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("Unable to load SDK config: %v", err)
	}
	store := realtime.NewConnectionStore(dynamodb.NewFromConfig(awsCfg), cfg.AWS.ConnectionsTable, realtime.DefaultConnectionTTL)
	pusher = realtime.NewPusher(store, realtime.NewManagementClient(awsCfg, cfg.AWS.WebSocketEndpoint), logger)
}

// eventOwner is the part of every decision event detail used for routing.
type eventOwner struct {
	UserID string `json:"user_id"`
}

func handler(ctx context.Context, event events.CloudWatchEvent) error {
	if event.Source != eventbridge.Source {
		logger.Debug("Ignoring event from another source", zap.String("source", event.Source))
		return nil
	}

	var owner eventOwner
	if err := json.Unmarshal(event.Detail, &owner); err != nil {
		return fmt.Errorf("failed to parse event detail: %w", err)
	}
	if owner.UserID == "" {
		logger.Warn("Event without owner", zap.String("detailType", event.DetailType))
		return nil
	}

	result, err := pusher.Push(ctx, owner.UserID, event.DetailType, event.Detail, event.Time)
	logger.Info("Pushed event",
		zap.String("detailType", event.DetailType),
		zap.String("userID", owner.UserID),
		zap.Int("targets", result.Targets),
		zap.Int("sent", result.Sent),
		zap.Int("gone", result.Gone),
		zap.Int("failed", result.Failed),
	)
	return err
}

func main() {
	lambda.Start(handler)
}
