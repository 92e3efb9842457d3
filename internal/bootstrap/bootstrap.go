// Package bootstrap turns loaded configuration into the shared clients both
// services start with.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cuongbtq/invoice-notifier/internal/config"
	"github.com/cuongbtq/invoice-notifier/internal/provider"
	"github.com/cuongbtq/invoice-notifier/migrations"
	"github.com/cuongbtq/invoice-notifier/shared/logger"
	"github.com/cuongbtq/invoice-notifier/shared/postgresql"
	"github.com/cuongbtq/invoice-notifier/shared/rabbitmq"
	"github.com/google/uuid"
)

// NewLogger initializes the application logger; every record carries service
func NewLogger(cfg *config.LoggingConfig, service string) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		Service:      service,
	})
}

// NewPostgreSQL connects to the database and, when auto_migrate is set,
// brings the schema up to date
func NewPostgreSQL(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	client, err := postgresql.NewClient(postgresConfig(cfg), logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := client.Migrate(ctx, migrations.FS); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return client, nil
}

// NewRabbitMQ connects to the broker and declares the job queue topology
func NewRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(rabbitConfig(cfg), logger)
}

// NewProviderRegistry builds the adapter registry from the provider catalog
// and per-provider credentials
func NewProviderRegistry(cfg *config.ProvidersConfig, logger *slog.Logger) *provider.Registry {
	return provider.NewRegistry(registryConfig(cfg, logger))
}

// WorkerID returns the configured worker id, or hostname plus a short random
// suffix so several workers on one host stay distinguishable
func WorkerID(cfg *config.WorkerConfig) string {
	if cfg.ID != "" {
		return cfg.ID
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

func postgresConfig(cfg *config.DatabaseConfig) *postgresql.Config {
	return &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
}

func rabbitConfig(cfg *config.RabbitMQConfig) *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}
}

func registryConfig(cfg *config.ProvidersConfig, logger *slog.Logger) provider.RegistryConfig {
	settings := make(map[string]provider.Settings, len(cfg.Accounts))
	for id, acc := range cfg.Accounts {
		settings[id] = provider.Settings{
			BaseURL:  acc.BaseURL,
			APIKey:   acc.APIKey,
			Username: acc.Username,
			Password: acc.Password,
		}
	}

	return provider.RegistryConfig{
		CatalogPath: cfg.CatalogPath,
		Settings:    settings,
		Client: provider.ClientConfig{
			Timeout:        cfg.HTTP.Timeout,
			MaxRetries:     cfg.HTTP.MaxRetries,
			RetryInterval:  cfg.HTTP.RetryInterval,
			RateLimit:      cfg.HTTP.RateLimit,
			RateLimitBurst: cfg.HTTP.RateLimitBurst,
			UserAgent:      cfg.HTTP.UserAgent,
		},
		Logger: logger,
	}
}
