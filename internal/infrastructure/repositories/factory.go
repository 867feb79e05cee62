package repositories

import (
	"context"

	"ndilive/internal/core/ports"
	"ndilive/internal/infrastructure/repositories/memory"
	redisrepo "ndilive/internal/infrastructure/repositories/redis"
	"ndilive/pkg/circuitbreaker"
	"ndilive/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SourceDirectory is a directory that also follows the shared discovery.
type SourceDirectory interface {
	ports.SourceDirectory
	ports.SourceObserver
}

// RepositoryFactory picks redis backed storage when it is enabled and
// reachable, and in-process storage otherwise.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	cfg         *config.Config
	instance    string
	logger      *zap.SugaredLogger
}

func NewRepositoryFactory(ctx context.Context, cfg *config.Config, instance string, logger *zap.SugaredLogger) *RepositoryFactory {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		cfg:      cfg,
		instance: instance,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(ctx,
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory source directory",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
		}
	}
	return factory
}

// RedisClient returns the connected client, or nil.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	if f.useRedis {
		return f.redisClient
	}
	return nil
}

func (f *RepositoryFactory) CreateSourceDirectory() SourceDirectory {
	if f.useRedis && f.redisClient != nil {
		f.logger.Infow("using Redis source directory", "instance", f.instance, "prefix", f.cfg.Redis.KeyPrefix)
		return redisrepo.NewSourceDirectory(f.redisClient, redisrepo.DirectoryOptions{
			Prefix:   f.cfg.Redis.KeyPrefix,
			Instance: f.instance,
			TTL:      f.cfg.Redis.TTL,
			Breaker: circuitbreaker.Config{
				FailureThreshold: f.cfg.Redis.FailureThreshold,
				OpenTimeout:      f.cfg.Redis.OpenTimeout,
			},
			Logger: f.logger,
		})
	}
	f.logger.Infow("using memory source directory", "instance", f.instance)
	return memory.NewSourceDirectory(f.instance)
}

func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return f.redisClient.Close()
	}
	return nil
}

func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
