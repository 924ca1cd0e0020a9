package container

import (
	"context"
	"fmt"

	"live-voting/internal/config"
	"live-voting/internal/repository"
	"live-voting/internal/service"
	"live-voting/internal/service/auth"
	"live-voting/pkg/database"
	"live-voting/pkg/logger"
	"live-voting/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config        *config.Config
	Logger        *logger.Logger
	Stores        repository.Stores
	AuthService   service.AuthService
	VotingService *service.VotingService
}

// New creates a new dependency injection container. The storage backend is
// chosen once here; a backend that cannot be reached fails startup.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	stores, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	votingService := service.NewVotingService(stores, service.VotingOptions{
		Identity: service.IdentityPolicy{
			Dimensions:         cfg.IdentityDimensions,
			TimestampTolerance: cfg.TimestampTolerance,
			Secret:             cfg.IdentitySecret,
		},
		HeartbeatWindow: cfg.HeartbeatWindow,
	}, log.Named("voting").Logger)

	var authService service.AuthService
	if cfg.AuthJWTSecret != "" {
		authService = auth.NewService(cfg.AuthJWTSecret, cfg.AuthJWTIssuer, log.Named("auth"))
	} else {
		log.Info("AUTH_JWT_SECRET not configured, bearer tokens will be ignored")
	}

	log.WithFields(map[string]interface{}{
		"backend":    cfg.StorageBackend,
		"dimensions": votingService.Dimensions(),
	}).Info("Voting service initialized")

	return &Container{
		Config:        cfg,
		Logger:        log,
		Stores:        stores,
		AuthService:   authService,
		VotingService: votingService,
	}, nil
}

func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.Stores, error) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		log.Warn("Using in-memory storage, votes are lost on restart")
		return repository.NewMemoryStores(), nil

	case config.BackendPostgres:
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL, database.PoolOptions{ApplicationName: "live-voting"})
		if err != nil {
			return repository.Stores{}, fmt.Errorf("connect to database: %w", err)
		}
		if err := database.CreateSchema(ctx, db.Pool); err != nil {
			db.Close()
			return repository.Stores{}, fmt.Errorf("create schema: %w", err)
		}
		log.Info("PostgreSQL storage initialized")
		return repository.NewPostgresStores(db), nil

	case config.BackendRedis:
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, log.Named("redis").Logger)
		if err != nil {
			return repository.Stores{}, fmt.Errorf("connect to redis: %w", err)
		}
		log.WithField("prefix", client.KeyBuilder.GetPrefix()).Info("Redis storage initialized")
		return repository.NewRedisStores(client), nil

	case config.BackendSQLite:
		stores, err := repository.NewSQLiteStores(cfg.SQLitePath)
		if err != nil {
			return repository.Stores{}, fmt.Errorf("open sqlite: %w", err)
		}
		log.WithField("path", cfg.SQLitePath).Info("SQLite storage initialized")
		return stores, nil

	default:
		return repository.Stores{}, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// Close releases the storage backend
func (c *Container) Close() error {
	if c.Stores.Close == nil {
		return nil
	}
	return c.Stores.Close()
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}
