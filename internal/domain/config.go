package domain

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete Finch configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Tier determines backing-service selection
	Tier Tier `yaml:"tier"`

	// Component configurations
	Repository RepositoryConfig `yaml:"repository"`
	Cache      CacheConfig      `yaml:"cache"`
	EventBus   EventBusConfig   `yaml:"eventBus"`

	// Engine tunables
	Rewards RewardsConfig `yaml:"rewards"`
	Alerts  AlertsConfig  `yaml:"alerts"`

	// Observability
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`  // seconds
	WriteTimeout int    `yaml:"writeTimeout"` // seconds
}

// RewardsConfig holds points-calculation tunables. The category and
// streak multiplier tables live with the calculator; only the scalar
// knobs are exposed here.
type RewardsConfig struct {
	BasePointsPerDollar float64       `yaml:"basePointsPerDollar"`
	OnTimeMultiplier    float64       `yaml:"onTimeMultiplier"`
	LeaderboardCacheTTL time.Duration `yaml:"leaderboardCacheTTL"`
}

// AlertsConfig holds rule thresholds and sweep settings.
type AlertsConfig struct {
	LargeTransactionThreshold float64       `yaml:"largeTransactionThreshold"`
	LowBalancePercent         float64       `yaml:"lowBalancePercent"`
	BudgetNearingPercent      float64       `yaml:"budgetNearingPercent"`
	UnusualSpendingStdevs     float64       `yaml:"unusualSpendingStdevs"`
	BillLookaheadDays         int           `yaml:"billLookaheadDays"`
	SubscriptionLookaheadDays int           `yaml:"subscriptionLookaheadDays"`
	RetentionDays             int           `yaml:"retentionDays"`
	SweepBatchSize            int           `yaml:"sweepBatchSize"`
	SweepInterval             time.Duration `yaml:"sweepInterval"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ServiceName  string `yaml:"serviceName"`
	ExporterType string `yaml:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `yaml:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./finch.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Rewards: RewardsConfig{
			BasePointsPerDollar: 10,
			OnTimeMultiplier:    1.5,
			LeaderboardCacheTTL: time.Minute,
		},
		Alerts: AlertsConfig{
			LargeTransactionThreshold: 1000,
			LowBalancePercent:         20,
			BudgetNearingPercent:      90,
			UnusualSpendingStdevs:     2.5,
			BillLookaheadDays:         3,
			SubscriptionLookaheadDays: 7,
			RetentionDays:             30,
			SweepBatchSize:            500,
			SweepInterval:             time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "finch",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "finch",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadConfig reads a YAML config file over the tier defaults.
// Missing keys keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var probe struct {
		Tier Tier `yaml:"tier"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := DefaultConfig()
	if probe.Tier == TierPro {
		cfg = ProConfig()
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}
