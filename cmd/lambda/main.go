package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"decivue/infrastructure/config"
	"decivue/infrastructure/di"
	"decivue/pkg/auth"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

var (
	chiLambda *chiadapter.ChiLambdaV2
	container *di.Container

	coldStart     = true
	coldStartTime time.Time
)

// init runs during cold start
func init() {
	coldStartTime = time.Now()
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.IsLambda = true

	// The container lives as long as the execution environment, so its
	// cleanup never runs.
	container, _, err = di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	mux, ok := container.HTTPHandler(authorizerClaims).(*chi.Mux)
	if !ok {
		log.Fatal("Failed to cast handler to chi.Mux")
	}
	chiLambda = chiadapter.NewV2(mux)

	container.Logger.Info("Lambda cold start completed", zap.Duration("duration", time.Since(coldStartTime)))
}

// authorizerClaims reads the caller verified by the API Gateway JWT or
// Lambda authorizer.
func authorizerClaims(ctx context.Context) (*auth.UserContext, bool) {
	proxyCtx, ok := core.GetAPIGatewayV2ContextFromContext(ctx)
	if !ok || proxyCtx.Authorizer == nil {
		return nil, false
	}

	if jwt := proxyCtx.Authorizer.JWT; jwt != nil && jwt.Claims["sub"] != "" {
		return &auth.UserContext{
			UserID: jwt.Claims["sub"],
			Email:  jwt.Claims["email"],
			Role:   jwt.Claims["role"],
		}, true
	}

	if sub, ok := proxyCtx.Authorizer.Lambda["sub"].(string); ok && sub != "" {
		user := &auth.UserContext{UserID: sub}
		user.Email, _ = proxyCtx.Authorizer.Lambda["email"].(string)
		user.Role, _ = proxyCtx.Authorizer.Lambda["role"].(string)
		return user, true
	}
	return nil, false
}

// Handler is the Lambda function handler
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	resp, err := chiLambda.ProxyWithContextV2(ctx, req)

	if container.Outbox != nil {
		if _, outboxErr := container.Outbox.ProcessOnce(ctx); outboxErr != nil {
			container.Logger.Warn("Outbox drain failed", zap.Error(outboxErr))
		}
	}
	if container.CloudWatch != nil {
		container.CloudWatch.Flush(ctx)
	}

	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	if coldStart {
		resp.Headers["X-Cold-Start"] = "true"
		coldStart = false
	}
	if req.RequestContext.RequestID != "" {
		resp.Headers["X-Lambda-Request-ID"] = req.RequestContext.RequestID
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		container.Logger.Error("Lambda error response",
			zap.String("method", req.RequestContext.HTTP.Method),
			zap.String("path", req.RequestContext.HTTP.Path),
			zap.Int("status_code", resp.StatusCode),
			zap.String("request_id", req.RequestContext.RequestID),
		)
	}
	return resp, err
}

func main() {
	lambda.Start(Handler)
}
