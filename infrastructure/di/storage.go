package di

import (
	"context"
	"fmt"
	"os"

	"decivue/application/ports"
	"decivue/infrastructure/config"
	"decivue/infrastructure/persistence/dynamodb"
	"decivue/infrastructure/persistence/memory"
	"decivue/infrastructure/persistence/postgres"
	"decivue/infrastructure/persistence/supabase"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

// Storage groups the persistence adapters of one backend.
type Storage struct {
	Backend     string
	Decisions   ports.DecisionRepository
	Assumptions ports.AssumptionRepository
	Insights    ports.InsightRepository
	Events      ports.DecisionEventLog

	// Outbox is the event log's publication tracking; nil when the log
	// does not track it.
	Outbox ports.OutboxStore
	// Locker coordinates outbox draining between instances; nil for
	// single-process backends.
	Locker ports.Locker

	Ping func(ctx context.Context) error
}

// ProvideStorage opens the configured backend. The cleanup closes its
// connections.
func ProvideStorage(ctx context.Context, cfg *config.Config, client *awsdynamodb.Client, logger *zap.Logger) (*Storage, func(), error) {
	var (
		s       *Storage
		cleanup = func() {}
	)

	switch cfg.Storage.Backend {
	case config.StorageMemory:
		s = &Storage{
			Decisions:   memory.NewDecisionRepository(),
			Assumptions: memory.NewAssumptionRepository(),
			Insights:    memory.NewInsightRepository(),
			Events:      memory.NewEventLog(),
			Ping:        func(context.Context) error { return nil },
		}

	case config.StorageDynamoDB:
		table := cfg.Storage.DynamoDBTable
		s = &Storage{
			Decisions:   dynamodb.NewDecisionRepository(client, table, logger),
			Assumptions: dynamodb.NewAssumptionRepository(client, table),
			Insights:    dynamodb.NewInsightRepository(client, table),
			Events:      dynamodb.NewEventLog(client, table),
			Locker:      dynamodb.NewDistributedLock(client, table, lockOwner(), logger),
			Ping: func(ctx context.Context) error {
				_, err := client.DescribeTable(ctx, &awsdynamodb.DescribeTableInput{TableName: aws.String(table)})
				return err
			},
		}

	case config.StoragePostgres:
		db, err := postgres.Open(ctx, cfg.Storage.PostgresDSN, postgres.PoolOptions{
			MaxOpenConns:    cfg.Storage.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.MaxIdleConns,
			ConnMaxLifetime: cfg.Storage.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		if cfg.Storage.AutoMigrate {
			if _, err := postgres.Migrate(ctx, db, logger); err != nil {
				_ = db.Close()
				return nil, nil, err
			}
		}
		s = &Storage{
			Decisions:   postgres.NewDecisionRepository(db),
			Assumptions: postgres.NewAssumptionRepository(db),
			Insights:    postgres.NewInsightRepository(db),
			Events:      postgres.NewEventLog(db),
			Locker:      postgres.NewAdvisoryLocker(db),
			Ping:        db.PingContext,
		}
		cleanup = func() {
			if err := db.Close(); err != nil {
				logger.Warn("Failed to close postgres pool", zap.Error(err))
			}
		}

	case config.StorageSupabase:
		client, err := supabase.NewClient(cfg.Storage.SupabaseURL, cfg.Storage.SupabaseServiceKey)
		if err != nil {
			return nil, nil, err
		}
		s = &Storage{
			Decisions:   supabase.NewDecisionRepository(client),
			Assumptions: supabase.NewAssumptionRepository(client),
			Insights:    supabase.NewInsightRepository(client),
			Events:      supabase.NewEventLog(client),
			Ping: func(context.Context) error {
				_, _, err := client.From("decisions").Select("id", "", false).Limit(1, "").Execute()
				return err
			},
		}

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	s.Backend = cfg.Storage.Backend
	if outbox, ok := s.Events.(ports.OutboxStore); ok {
		s.Outbox = outbox
	}
	logger.Info("Storage ready", zap.String("backend", s.Backend), zap.Bool("outbox", s.Outbox != nil))
	return s, cleanup, nil
}

func lockOwner() string {
	if host, err := os.Hostname(); err == nil {
		return fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return ""
}
