// Package main handles the websocket $connect and $disconnect routes.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"decivue/infrastructure/config"
	"decivue/infrastructure/di"
	"decivue/infrastructure/realtime"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"
)

var (
	store     *realtime.ConnectionStore
	authorize func(token string) (string, error)
	logger    *zap.Logger
)

func init() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err = di.ProvideLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	awsCfg, err := di.ProvideAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("Unable to load SDK config: %v", err)
	}
	store = realtime.NewConnectionStore(dynamodb.NewFromConfig(awsCfg), cfg.AWS.ConnectionsTable, realtime.DefaultConnectionTTL)

	authorize, err = newAuthorizer(cfg)
	if err != nil {
		log.Fatalf("Failed to create authorizer: %v", err)
	}
}

// newAuthorizer asks Supabase for the token's user when Supabase is
// configured and validates the JWT locally otherwise.
func newAuthorizer(cfg *config.Config) (func(string) (string, error), error) {
	key := cfg.Storage.SupabaseServiceKey
	if key == "" {
		key = cfg.Auth.SupabaseAnonKey
	}
	if cfg.Auth.SupabaseURL != "" && key != "" {
		client, err := supabase.NewClient(cfg.Auth.SupabaseURL, key, nil)
		if err != nil {
			return nil, fmt.Errorf("unable to create supabase client: %w", err)
		}
		return func(token string) (string, error) {
			user, err := client.Auth.WithToken(token).GetUser()
			if err != nil {
				return "", err
			}
			return user.ID.String(), nil
		}, nil
	}

	validator, err := di.ProvideJWTValidator(cfg, logger)
	if err != nil {
		return nil, err
	}
	return func(token string) (string, error) {
		claims, err := validator.ValidateToken(token)
		if err != nil {
			return "", err
		}
		return claims.UserID(), nil
	}, nil
}

func handler(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connectionID := req.RequestContext.ConnectionID

	switch req.RequestContext.RouteKey {
	case "$disconnect":
		if err := store.Remove(ctx, connectionID); err != nil {
			logger.Error("Failed to remove connection", zap.String("connectionID", connectionID), zap.Error(err))
			return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
		}
		logger.Info("Disconnected", zap.String("connectionID", connectionID))
		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
	}

	token := req.QueryStringParameters["token"]
	if token == "" {
		token = strings.TrimPrefix(req.Headers["Authorization"], "Bearer ")
	}
	if token == "" {
		logger.Warn("Connection request missing token", zap.String("connectionID", connectionID))
		return events.APIGatewayProxyResponse{StatusCode: http.StatusUnauthorized}, nil
	}

	userID, err := authorize(token)
	if err != nil || userID == "" {
		logger.Warn("Invalid websocket token", zap.String("connectionID", connectionID), zap.Error(err))
		return events.APIGatewayProxyResponse{StatusCode: http.StatusUnauthorized}, nil
	}

	if err := store.Save(ctx, userID, connectionID); err != nil {
		logger.Error("Failed to save connection", zap.String("connectionID", connectionID), zap.Error(err))
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
	}

	logger.Info("Connected", zap.String("userID", userID), zap.String("connectionID", connectionID))
	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
}

func main() {
	lambda.Start(handler)
}
