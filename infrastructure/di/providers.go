package di

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"decivue/application/commands"
	"decivue/application/commands/bus"
	commandhandlers "decivue/application/commands/handlers"
	"decivue/application/ports"
	"decivue/application/queries"
	querybus "decivue/application/queries/bus"
	queryhandlers "decivue/application/queries/handlers"
	domainconfig "decivue/domain/config"
	"decivue/domain/core/lifecycle"
	"decivue/domain/events"
	"decivue/infrastructure/cache/redis"
	"decivue/infrastructure/config"
	"decivue/infrastructure/messaging"
	"decivue/infrastructure/messaging/eventbridge"
	"decivue/pkg/auth"
	pkgerrors "decivue/pkg/errors"
	"decivue/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DevJWTSecret signs tokens outside production when no secret is set.
const DevJWTSecret = "decivue-development-secret"

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() || cfg.IsLambda {
		zcfg = zap.NewProductionConfig()
	}
	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("env", cfg.Environment)), nil
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWS.Region),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

func ProvideDomainConfig(cfg *config.Config) *domainconfig.DomainConfig {
	return cfg.Domain()
}

func ProvideEngine(dc *domainconfig.DomainConfig) (*lifecycle.Engine, error) {
	return lifecycle.NewEngine(lifecycle.ThresholdsFrom(dc))
}

func ProvideClock() ports.Clock {
	return ports.SystemClock{}
}

// ProvideCollector returns nil when metrics are disabled.
func ProvideCollector(cfg *config.Config) *observability.Collector {
	if !cfg.Features.EnableMetrics {
		return nil
	}
	return observability.NewCollector("decivue")
}

// ProvideCloudWatchRecorder buffers bus metrics for CloudWatch. Only Lambda
// deployments use it, since nothing scrapes /metrics there.
func ProvideCloudWatchRecorder(cfg *config.Config, client *awscloudwatch.Client, logger *zap.Logger) *observability.CloudWatchRecorder {
	if !cfg.IsLambda || !cfg.Features.EnableMetrics {
		return nil
	}
	namespace := fmt.Sprintf("%s/%s", cfg.Features.CloudWatchNamespace, cfg.Environment)
	return observability.NewCloudWatchRecorder(client, namespace, logger)
}

// ProvideBusMetrics combines the enabled metric sinks.
func ProvideBusMetrics(collector *observability.Collector, recorder *observability.CloudWatchRecorder) observability.Fanout {
	var sinks observability.Fanout
	if collector != nil {
		sinks = append(sinks, collector)
	}
	if recorder != nil {
		sinks = append(sinks, recorder)
	}
	return sinks
}

func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer("decivue-"+cfg.Environment, cfg.Features.EnableTracing)
}

// ProvideCache returns the stats cache, counting hits when metrics are on.
func ProvideCache(ctx context.Context, cfg *config.Config, collector *observability.Collector, logger *zap.Logger) (ports.Cache, func(), error) {
	var (
		cache   ports.Cache
		cleanup func()
	)
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		rc, err := redis.New(ctx, redis.Options{
			Addr:      cfg.Cache.RedisAddr,
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.KeyPrefix,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		cache = rc
		cleanup = func() {
			if err := rc.Close(); err != nil {
				logger.Warn("Failed to close redis client", zap.Error(err))
			}
		}
	default:
		mc := NewInMemoryCache(time.Minute)
		cache = mc
		cleanup = mc.Close
	}

	if collector != nil {
		cache = &meteredCache{Cache: cache, observe: collector.ObserveCache}
	}
	return cache, cleanup, nil
}

// ProvideLocalEventBus creates the in-process bus and its subscribers.
func ProvideLocalEventBus(cache ports.Cache, collector *observability.Collector, logger *zap.Logger) *messaging.LocalEventBus {
	local := messaging.NewLocalEventBus(logger)
	local.Subscribe(messaging.AllEvents, messaging.StatsInvalidator(cache))
	if collector != nil {
		local.Subscribe(messaging.AllEvents, ports.EventHandlerFunc(func(ctx context.Context, event events.DomainEvent) error {
			if e, ok := event.(events.DecisionEvent); ok {
				collector.ObserveTransition(string(e.Kind))
			}
			return nil
		}))
	}
	return local
}

// ProvideEventPublisher publishes to EventBridge when a bus name is
// configured, behind a circuit breaker, and always to the local bus.
func ProvideEventPublisher(cfg *config.Config, client *awseventbridge.Client, local *messaging.LocalEventBus, logger *zap.Logger) ports.EventPublisher {
	if cfg.AWS.EventBusName == "" {
		return local
	}
	remote := messaging.NewBreakerPublisher(
		eventbridge.NewPublisher(client, cfg.AWS.EventBusName, logger),
		cfg.Breaker.ConsecutiveFailures,
		cfg.Breaker.OpenTimeout,
		logger,
	)
	return &teePublisher{remote: remote, local: local, logger: logger}
}

// teePublisher delivers to the remote bus first; local subscribers are
// best effort and never fail the publish.
type teePublisher struct {
	remote ports.EventPublisher
	local  ports.EventPublisher
	logger *zap.Logger
}

func (p *teePublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	if err := p.remote.Publish(ctx, event); err != nil {
		return err
	}
	if err := p.local.Publish(ctx, event); err != nil {
		p.logger.Warn("Local event handler failed", zap.String("eventType", event.GetEventType()), zap.Error(err))
	}
	return nil
}

func (p *teePublisher) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	if err := p.remote.PublishBatch(ctx, batch); err != nil {
		return err
	}
	if err := p.local.PublishBatch(ctx, batch); err != nil {
		p.logger.Warn("Local event handler failed", zap.Int("count", len(batch)), zap.Error(err))
	}
	return nil
}

// ProvideCommandBus creates a command bus with registered handlers
func ProvideCommandBus(
	storage *Storage,
	publisher ports.EventPublisher,
	cache ports.Cache,
	engine *lifecycle.Engine,
	dc *domainconfig.DomainConfig,
	clock ports.Clock,
	metrics observability.Fanout,
	tracer *observability.Tracer,
	logger *zap.Logger,
) (*bus.CommandBus, error) {
	commandBus := bus.NewCommandBus(
		bus.LoggingMiddleware(&zapLoggerAdapter{logger}),
		bus.MetricsMiddleware(metrics),
		traceCommands(tracer),
		bus.ValidationMiddleware(),
	)

	create := commandhandlers.NewCreateDecisionHandler(storage.Decisions, storage.Assumptions, storage.Events, publisher, cache, engine, dc, clock, logger)
	review := commandhandlers.NewReviewDecisionHandler(storage.Decisions, storage.Events, publisher, cache, engine, clock, logger)
	remove := commandhandlers.NewDeleteDecisionHandler(storage.Decisions, storage.Assumptions, publisher, cache, clock, logger)
	addAssumption := commandhandlers.NewAddAssumptionHandler(storage.Decisions, storage.Assumptions, dc, clock, logger)
	validateAssumption := commandhandlers.NewValidateAssumptionHandler(storage.Decisions, storage.Assumptions, publisher, clock, logger)
	dismiss := commandhandlers.NewDismissInsightHandler(storage.Insights, publisher, clock, logger)

	registrations := []struct {
		cmd     bus.Command
		handler bus.CommandHandler
	}{
		{commands.CreateDecisionCommand{}, bus.Typed(create.Handle)},
		{commands.ReviewDecisionCommand{}, bus.Typed(review.Handle)},
		{commands.DeleteDecisionCommand{}, bus.Typed(remove.Handle)},
		{commands.AddAssumptionCommand{}, bus.Typed(addAssumption.Handle)},
		{commands.ValidateAssumptionCommand{}, bus.Typed(validateAssumption.Handle)},
		{commands.DismissInsightCommand{}, bus.Typed(dismiss.Handle)},
	}
	for _, r := range registrations {
		if err := commandBus.Register(r.cmd, r.handler); err != nil {
			return nil, err
		}
	}
	return commandBus, nil
}

// ProvideQueryBus creates a query bus with registered handlers
func ProvideQueryBus(
	cfg *config.Config,
	storage *Storage,
	cache ports.Cache,
	engine *lifecycle.Engine,
	dc *domainconfig.DomainConfig,
	clock ports.Clock,
	metrics observability.Fanout,
	tracer *observability.Tracer,
	logger *zap.Logger,
) (*querybus.QueryBus, error) {
	queryBus := querybus.NewQueryBus(
		querybus.LoggingMiddleware(&zapLoggerAdapter{logger}),
		querybus.MetricsMiddleware(metrics),
		traceQueries(tracer),
	)

	stats := queryhandlers.NewGetDecisionStatsHandler(storage.Decisions, cache, cfg.Cache.StatsTTL, engine, clock, logger)

	registrations := []struct {
		query   querybus.Query
		handler querybus.QueryHandler
	}{
		{queries.GetDecisionQuery{}, querybus.Typed(queryhandlers.NewGetDecisionHandler(storage.Decisions, storage.Assumptions, storage.Insights, storage.Events, engine, clock, logger).Handle)},
		{queries.ListDecisionsQuery{}, querybus.Typed(queryhandlers.NewListDecisionsHandler(storage.Decisions, engine, dc, clock, logger).Handle)},
		{queries.ListDecisionEventsQuery{}, querybus.Typed(queryhandlers.NewListDecisionEventsHandler(storage.Decisions, storage.Events).Handle)},
		{queries.GetDecisionStatsQuery{}, querybus.Typed(stats.Handle)},
		{queries.GetDashboardQuery{}, querybus.Typed(queryhandlers.NewGetDashboardHandler(stats, storage.Decisions, storage.Insights, engine, dc, clock).Handle)},
		{queries.ListInsightsQuery{}, querybus.Typed(queryhandlers.NewListInsightsHandler(storage.Insights).Handle)},
		{queries.ComputeLifeScoreQuery{}, querybus.Typed(queryhandlers.NewComputeLifeScoreHandler().Handle)},
	}
	for _, r := range registrations {
		if err := queryBus.Register(r.query, r.handler); err != nil {
			return nil, err
		}
	}
	return queryBus, nil
}

// ProvideOutboxProcessor returns nil when the outbox is disabled or the
// event log does not track publication.
func ProvideOutboxProcessor(
	cfg *config.Config,
	storage *Storage,
	publisher ports.EventPublisher,
	collector *observability.Collector,
	logger *zap.Logger,
) *messaging.OutboxProcessor {
	if !cfg.Outbox.Enabled || storage.Outbox == nil {
		return nil
	}
	processor := messaging.NewOutboxProcessor(storage.Outbox, publisher, storage.Locker, messaging.OutboxProcessorConfig{
		BatchSize: cfg.Outbox.BatchSize,
		Interval:  cfg.Outbox.Interval,
		LockTTL:   cfg.Outbox.LockTTL,
	}, logger)
	if collector != nil {
		processor.OnBatch(collector.ObserveOutbox)
	}
	return processor
}

// ProvideJWTValidator falls back to DevJWTSecret outside production.
func ProvideJWTValidator(cfg *config.Config, logger *zap.Logger) (*auth.JWTValidator, error) {
	secret := cfg.Auth.JWTSecret
	if secret == "" && cfg.Auth.SigningMethod != "RS256" && !cfg.IsProduction() {
		logger.Warn("JWT_SECRET not set, using the development secret")
		secret = DevJWTSecret
	}
	return auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: cfg.Auth.SigningMethod,
		PublicKey:     cfg.Auth.JWTPublicKey,
		SecretKey:     secret,
		Issuer:        cfg.Auth.JWTIssuer,
		Audience:      cfg.Auth.JWTAudience,
	})
}

// ProvideRateLimiter returns nil when rate limiting is disabled. The
// in-process limiter is pruned once per window.
func ProvideRateLimiter(cfg *config.Config, client *awsdynamodb.Client) (auth.RateLimiter, func()) {
	rl := cfg.RateLimit
	if !rl.Enabled {
		return nil, func() {}
	}
	if rl.Distributed {
		return auth.NewDistributedRateLimiter(client, cfg.Storage.DynamoDBTable, rl.RequestsPerWindow, rl.Window), func() {}
	}

	limiter := auth.NewSlidingWindowLimiter(rl.RequestsPerWindow, rl.Window)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(rl.Window)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				limiter.Prune()
			}
		}
	}()
	return limiter, func() { close(done) }
}

func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *pkgerrors.ErrorHandler {
	return pkgerrors.NewErrorHandler(logger, cfg.IsDevelopment())
}

func traceCommands(tracer *observability.Tracer) bus.Middleware {
	return func(next bus.CommandHandler) bus.CommandHandler {
		if !tracer.Enabled() {
			return next
		}
		return bus.CommandHandlerFunc(func(ctx context.Context, cmd bus.Command) error {
			return tracer.TraceFunction(ctx, "command."+reflect.TypeOf(cmd).Name(), func(ctx context.Context) error {
				return next.Handle(ctx, cmd)
			})
		})
	}
}

func traceQueries(tracer *observability.Tracer) querybus.Middleware {
	return func(next querybus.QueryHandler) querybus.QueryHandler {
		if !tracer.Enabled() {
			return next
		}
		return querybus.QueryHandlerFunc(func(ctx context.Context, q querybus.Query) (interface{}, error) {
			var result interface{}
			err := tracer.TraceFunction(ctx, "query."+reflect.TypeOf(q).Name(), func(ctx context.Context) error {
				var err error
				result, err = next.Handle(ctx, q)
				return err
			})
			return result, err
		})
	}
}

// zapLoggerAdapter adapts zap.Logger to the bus Logger interfaces
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Debug(msg string, fields ...interface{}) {
	a.logger.Debug(msg, a.fieldsToZap(fields...)...)
}

func (a *zapLoggerAdapter) Info(msg string, fields ...interface{}) {
	a.logger.Info(msg, a.fieldsToZap(fields...)...)
}

func (a *zapLoggerAdapter) Error(msg string, fields ...interface{}) {
	a.logger.Error(msg, a.fieldsToZap(fields...)...)
}

func (a *zapLoggerAdapter) fieldsToZap(fields ...interface{}) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key, _ := fields[i].(string)
		if err, ok := fields[i+1].(error); ok {
			zapFields = append(zapFields, zap.NamedError(key, err))
			continue
		}
		zapFields = append(zapFields, zap.Any(key, fields[i+1]))
	}
	return zapFields
}
