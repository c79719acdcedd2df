// Package config loads process configuration from defaults, an optional
// YAML file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	domainconfig "decivue/domain/config"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageDynamoDB = "dynamodb"
	StoragePostgres = "postgres"
	StorageSupabase = "supabase"
)

// Cache backends
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Environment   string `yaml:"environment"`
	ServerAddress string `yaml:"server_address"`
	LogLevel      string `yaml:"log_level"`

	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	AWS       AWSConfig       `yaml:"aws"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Breaker   BreakerConfig   `yaml:"circuit_breaker"`
	Features  FeatureConfig   `yaml:"features"`

	// IsLambda is set from the Lambda runtime environment.
	IsLambda bool `yaml:"-"`

	// LoadedFrom lists the sources applied, lowest precedence first.
	LoadedFrom []string `yaml:"-"`
}

type LifecycleConfig struct {
	RiskThreshold          time.Duration `yaml:"risk_threshold"`
	StaleThreshold         time.Duration `yaml:"stale_threshold"`
	LowConfidenceThreshold int           `yaml:"low_confidence_threshold"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"`

	DynamoDBTable string `yaml:"dynamodb_table"`
	IndexName     string `yaml:"index_name"`

	PostgresDSN     string        `yaml:"postgres_dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`

	SupabaseURL        string `yaml:"supabase_url"`
	SupabaseServiceKey string `yaml:"supabase_service_key"`
}

type CacheConfig struct {
	Backend       string        `yaml:"backend"`
	StatsTTL      time.Duration `yaml:"stats_ttl"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	KeyPrefix     string        `yaml:"key_prefix"`
}

type AWSConfig struct {
	Region            string `yaml:"region"`
	EventBusName      string `yaml:"event_bus_name"`
	ConnectionsTable  string `yaml:"connections_table"`
	WebSocketEndpoint string `yaml:"websocket_endpoint"`
}

type AuthConfig struct {
	SigningMethod   string   `yaml:"signing_method"`
	JWTSecret       string   `yaml:"jwt_secret"`
	JWTPublicKey    string   `yaml:"jwt_public_key"`
	JWTIssuer       string   `yaml:"jwt_issuer"`
	JWTAudience     []string `yaml:"jwt_audience"`
	SupabaseURL     string   `yaml:"supabase_url"`
	SupabaseAnonKey string   `yaml:"supabase_anon_key"`
}

type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerWindow int           `yaml:"requests_per_window"`
	Window            time.Duration `yaml:"window"`
	// Distributed keeps counters in DynamoDB; requires the dynamodb backend.
	Distributed bool `yaml:"distributed"`
}

type OutboxConfig struct {
	Enabled   bool          `yaml:"enabled"`
	BatchSize int           `yaml:"batch_size"`
	Interval  time.Duration `yaml:"interval"`
	LockTTL   time.Duration `yaml:"lock_ttl"`
}

type BreakerConfig struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
}

type FeatureConfig struct {
	EnableMetrics       bool     `yaml:"enable_metrics"`
	EnableTracing       bool     `yaml:"enable_tracing"`
	EnableCORS          bool     `yaml:"enable_cors"`
	AllowedOrigins      []string `yaml:"allowed_origins"`
	CloudWatchNamespace string   `yaml:"cloudwatch_namespace"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	d := domainconfig.DefaultDomainConfig()
	return &Config{
		Environment:   "development",
		ServerAddress: ":8080",
		LogLevel:      "info",
		Lifecycle: LifecycleConfig{
			RiskThreshold:          d.RiskThreshold,
			StaleThreshold:         d.StaleThreshold,
			LowConfidenceThreshold: d.LowConfidenceThreshold,
		},
		Storage: StorageConfig{
			Backend:         StorageMemory,
			DynamoDBTable:   "decivue",
			IndexName:       "GSI1",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Cache: CacheConfig{
			Backend:   CacheMemory,
			StatsTTL:  5 * time.Minute,
			KeyPrefix: "decivue:",
		},
		AWS: AWSConfig{
			Region:           "us-west-2",
			ConnectionsTable: "decivue-connections",
		},
		Auth: AuthConfig{
			SigningMethod: "HS256",
			JWTAudience:   []string{"authenticated"},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerWindow: 120,
			Window:            time.Minute,
		},
		Outbox: OutboxConfig{
			Enabled:   true,
			BatchSize: 50,
			Interval:  5 * time.Second,
			LockTTL:   30 * time.Second,
		},
		Breaker: BreakerConfig{
			ConsecutiveFailures: 5,
			OpenTimeout:         30 * time.Second,
		},
		Features: FeatureConfig{
			EnableMetrics:       true,
			EnableCORS:          true,
			AllowedOrigins:      []string{"*"},
			CloudWatchNamespace: "Decivue",
		},
	}
}

// LoadConfig loads .env (if present), then defaults, then the YAML file
// named by CONFIG_FILE or config/<environment>.yaml, then environment
// variables, and validates the result.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	cfg.LoadedFrom = []string{"defaults"}

	env := getEnv("ENVIRONMENT", cfg.Environment)
	path := os.Getenv("CONFIG_FILE")
	explicit := path != ""
	if !explicit {
		path = filepath.Join("config", env+".yaml")
	}
	if err := cfg.loadFile(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) || explicit {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.LoadedFrom = append(cfg.LoadedFrom, "environment")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return err
	}
	c.LoadedFrom = append(c.LoadedFrom, path)
	return nil
}

func (c *Config) applyEnv() {
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.IsLambda = os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" || getEnvBool("IS_LAMBDA", false)

	if days := getEnvInt("RISK_THRESHOLD_DAYS", 0); days > 0 {
		c.Lifecycle.RiskThreshold = time.Duration(days) * 24 * time.Hour
	}
	if days := getEnvInt("STALE_THRESHOLD_DAYS", 0); days > 0 {
		c.Lifecycle.StaleThreshold = time.Duration(days) * 24 * time.Hour
	}
	c.Lifecycle.LowConfidenceThreshold = getEnvInt("LOW_CONFIDENCE_THRESHOLD", c.Lifecycle.LowConfidenceThreshold)

	c.Storage.Backend = strings.ToLower(getEnv("STORAGE_BACKEND", c.Storage.Backend))
	c.Storage.DynamoDBTable = getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", c.Storage.DynamoDBTable))
	c.Storage.IndexName = getEnv("INDEX_NAME", c.Storage.IndexName)
	c.Storage.PostgresDSN = getEnv("DATABASE_URL", c.Storage.PostgresDSN)
	c.Storage.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.Storage.MaxOpenConns)
	c.Storage.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.Storage.MaxIdleConns)
	c.Storage.AutoMigrate = getEnvBool("DB_AUTO_MIGRATE", c.Storage.AutoMigrate)
	c.Storage.SupabaseURL = getEnv("SUPABASE_URL", c.Storage.SupabaseURL)
	c.Storage.SupabaseServiceKey = getEnv("SUPABASE_SERVICE_ROLE_KEY", c.Storage.SupabaseServiceKey)

	c.Cache.Backend = strings.ToLower(getEnv("CACHE_BACKEND", c.Cache.Backend))
	c.Cache.StatsTTL = getEnvDuration("STATS_CACHE_TTL", c.Cache.StatsTTL)
	c.Cache.RedisAddr = getEnv("REDIS_ADDR", c.Cache.RedisAddr)
	c.Cache.RedisPassword = getEnv("REDIS_PASSWORD", c.Cache.RedisPassword)
	c.Cache.RedisDB = getEnvInt("REDIS_DB", c.Cache.RedisDB)

	c.AWS.Region = getEnv("AWS_REGION", c.AWS.Region)
	c.AWS.EventBusName = getEnv("EVENT_BUS_NAME", c.AWS.EventBusName)
	c.AWS.ConnectionsTable = getEnv("CONNECTIONS_TABLE", c.AWS.ConnectionsTable)
	c.AWS.WebSocketEndpoint = getEnv("WEBSOCKET_ENDPOINT", c.AWS.WebSocketEndpoint)

	c.Auth.SigningMethod = getEnv("JWT_SIGNING_METHOD", c.Auth.SigningMethod)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", getEnv("SUPABASE_JWT_SECRET", c.Auth.JWTSecret))
	c.Auth.JWTPublicKey = getEnv("JWT_PUBLIC_KEY", c.Auth.JWTPublicKey)
	c.Auth.JWTIssuer = getEnv("JWT_ISSUER", c.Auth.JWTIssuer)
	if aud := os.Getenv("JWT_AUDIENCE"); aud != "" {
		c.Auth.JWTAudience = splitList(aud)
	}
	c.Auth.SupabaseURL = getEnv("SUPABASE_URL", c.Auth.SupabaseURL)
	c.Auth.SupabaseAnonKey = getEnv("SUPABASE_ANON_KEY", c.Auth.SupabaseAnonKey)

	c.RateLimit.Enabled = getEnvBool("RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.RequestsPerWindow = getEnvInt("RATE_LIMIT_REQUESTS", c.RateLimit.RequestsPerWindow)
	c.RateLimit.Window = getEnvDuration("RATE_LIMIT_WINDOW", c.RateLimit.Window)
	c.RateLimit.Distributed = getEnvBool("RATE_LIMIT_DISTRIBUTED", c.RateLimit.Distributed)

	c.Outbox.Enabled = getEnvBool("OUTBOX_ENABLED", c.Outbox.Enabled)
	c.Outbox.BatchSize = getEnvInt("OUTBOX_BATCH_SIZE", c.Outbox.BatchSize)
	c.Outbox.Interval = getEnvDuration("OUTBOX_INTERVAL", c.Outbox.Interval)

	c.Features.EnableMetrics = getEnvBool("ENABLE_METRICS", c.Features.EnableMetrics)
	c.Features.EnableTracing = getEnvBool("ENABLE_TRACING", c.Features.EnableTracing)
	c.Features.EnableCORS = getEnvBool("ENABLE_CORS", c.Features.EnableCORS)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.Features.AllowedOrigins = splitList(origins)
	}
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if err := c.Domain().Validate(); err != nil {
		return err
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageDynamoDB:
		if c.Storage.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required for the dynamodb backend")
		}
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	case StorageSupabase:
		if c.Storage.SupabaseURL == "" || c.Storage.SupabaseServiceKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required for the supabase backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis cache")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("rate limit requests must be positive")
	}
	if c.RateLimit.Distributed && c.Storage.Backend != StorageDynamoDB {
		return fmt.Errorf("distributed rate limiting requires the dynamodb backend")
	}

	if c.IsProduction() {
		if c.Auth.SigningMethod == "RS256" {
			if c.Auth.JWTPublicKey == "" {
				return fmt.Errorf("JWT_PUBLIC_KEY is required in production")
			}
		} else if c.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
	}
	return nil
}

// Domain returns the lifecycle rules with the configured thresholds.
func (c *Config) Domain() *domainconfig.DomainConfig {
	d := domainconfig.DefaultDomainConfig()
	d.RiskThreshold = c.Lifecycle.RiskThreshold
	d.StaleThreshold = c.Lifecycle.StaleThreshold
	d.LowConfidenceThreshold = c.Lifecycle.LowConfidenceThreshold
	return d
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
