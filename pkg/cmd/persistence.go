package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dashcrm/flowsaga/pkg/persistence"
	"github.com/dashcrm/flowsaga/pkg/persistence/file"
	"github.com/dashcrm/flowsaga/pkg/persistence/postgresql"
	"github.com/dashcrm/flowsaga/pkg/persistence/redis"
	goredis "github.com/redis/go-redis/v9"
)

// NewPersistence opens the backend named by the scheme of databaseURL. postgres:// and
// postgresql:// URLs use PostgreSQL; file:// URLs and bare paths use the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	}
}

// NewRedisClient connects to a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (goredis.UniversalClient, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := goredis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// NewExecutionStore keeps execution state in Redis when client is set and in p
// otherwise. Definitions and leads always stay in p.
func NewExecutionStore(logger *slog.Logger, p persistence.Persistence, client goredis.UniversalClient) persistence.ExecutionStore {
	if client == nil {
		return p
	}

	return redis.NewExecutionStore(client, logger)
}

func parsePersistenceProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgresql"
	default:
		return "file"
	}
}
