package di

import (
	"context"
	"net/http"

	"decivue/application/commands/bus"
	"decivue/application/ports"
	querybus "decivue/application/queries/bus"
	"decivue/infrastructure/config"
	"decivue/infrastructure/messaging"
	"decivue/interfaces/http/rest"
	"decivue/interfaces/http/rest/middleware"
	"decivue/pkg/auth"
	pkgerrors "decivue/pkg/errors"
	"decivue/pkg/observability"

	"go.uber.org/zap"
)

// Container holds all application dependencies. Optional parts are nil
// when disabled by configuration.
type Container struct {
	Config      *config.Config
	Logger      *zap.Logger
	Storage     *Storage
	Cache       ports.Cache
	Publisher   ports.EventPublisher
	LocalBus    *messaging.LocalEventBus
	CommandBus  *bus.CommandBus
	QueryBus    *querybus.QueryBus
	Metrics     *observability.Collector
	CloudWatch  *observability.CloudWatchRecorder
	Tracer      *observability.Tracer
	Validator   *auth.JWTValidator
	RateLimiter auth.RateLimiter
	Outbox      *messaging.OutboxProcessor
	Errors      *pkgerrors.ErrorHandler
}

// HTTPHandler builds the REST router. trusted is set when an upstream
// authorizer already verified the caller.
func (c *Container) HTTPHandler(trusted middleware.ClaimsExtractor) http.Handler {
	deps := rest.Dependencies{
		CommandBus:     c.CommandBus,
		QueryBus:       c.QueryBus,
		Validator:      c.Validator,
		ErrorHandler:   c.Errors,
		Logger:         c.Logger,
		TrustedClaims:  trusted,
		Metrics:        c.Metrics,
		Tracer:         c.Tracer,
		EnableCORS:     c.Config.Features.EnableCORS,
		AllowedOrigins: c.Config.Features.AllowedOrigins,
		Readiness:      c.readiness(),
	}
	if c.RateLimiter != nil {
		deps.RateLimit = &rest.RateLimitSettings{
			Limiter: c.RateLimiter,
			Limit:   c.Config.RateLimit.RequestsPerWindow,
			Window:  c.Config.RateLimit.Window,
		}
	}
	return rest.NewRouter(deps).Setup()
}

func (c *Container) readiness() map[string]rest.ReadinessCheck {
	checks := map[string]rest.ReadinessCheck{
		"storage": c.Storage.Ping,
	}

	cache := c.Cache
	if m, ok := cache.(*meteredCache); ok {
		cache = m.Cache
	}
	if p, ok := cache.(interface{ Ping(context.Context) error }); ok {
		checks["cache"] = p.Ping
	}
	return checks
}
