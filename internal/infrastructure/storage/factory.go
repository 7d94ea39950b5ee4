package storage

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"github.com/example/storefront/internal/config"
)

// Open builds the KV selected by cfg.Backend. The returned close func releases
// any connection the backend owns and is never nil.
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (KV, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case "", "memory":
		logger.Info("Using in-memory storage")
		return NewMemory(), noop, nil

	case "postgres":
		db, err := ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		kv := NewPostgresKV(db)
		if err := kv.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		logger.Info("Connected to PostgreSQL storage")
		return kv, db.Close, nil

	case "redis":
		client, err := ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("Connected to Redis storage", zap.String("addr", cfg.RedisAddr))
		return NewRedisKV(client), client.Close, nil

	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create AWS config: %w", err)
		}
		logger.Info("Using DynamoDB storage", zap.String("table", cfg.DynamoTable))
		return NewDynamoKV(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable), noop, nil
	}

	return nil, noop, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
}
