// Package app wires configuration, storage and services together for the
// binaries under cmd/.
package app

import (
	"classplay/internal/config"
	"classplay/internal/repository"
	"classplay/internal/service"
	"classplay/internal/store"
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type App struct {
	Config   *config.Config
	Store    store.Store
	Archive  repository.SessionArchive
	Auth     *service.AuthService
	Sessions *service.SessionService
	Moves    *service.MoveLog
	Turns    *service.TurnCoordinator

	closers []func(context.Context) error
}

// New connects the configured backends and builds the services
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	st, err := a.openStore(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Store = st

	if cfg.ArchiveEnabled() {
		archive, err := a.openArchive(ctx)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.Archive = archive
	} else {
		log.Warn().Msg("MONGO_URI not set, finished sessions will not be archived")
	}

	a.Auth = service.NewAuthService(cfg.JWTSecret, cfg.PortalKey, cfg.TokenTTL)
	a.Sessions = service.NewSessionService(a.Store, a.Archive)
	a.Moves = service.NewMoveLog(a.Store, cfg.MoveBacklog)
	a.Turns = service.NewTurnCoordinator(a.Store, a.Moves)
	return a, nil
}

func (a *App) openStore(ctx context.Context) (store.Store, error) {
	if a.Config.StoreBackend == config.StoreMemory {
		log.Warn().Msg("using in-memory store, state is lost on restart")
		return store.NewMemoryStore(), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     a.Config.RedisAddr,
		Password: a.Config.RedisPassword,
		DB:       a.Config.RedisDB,
	})
	a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	log.Info().Str("addr", a.Config.RedisAddr).Msg("connected to Redis")
	return store.NewRedisStore(rdb, a.Config.StoreTTL), nil
}

func (a *App) openArchive(ctx context.Context) (repository.SessionArchive, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(a.Config.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	a.closers = append(a.closers, client.Disconnect)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	if err := repository.EnsureIndexes(ctx, client, a.Config.MongoDatabase); err != nil {
		return nil, err
	}
	log.Info().Str("database", a.Config.MongoDatabase).Msg("connected to MongoDB")
	return repository.NewSessionArchive(client, a.Config.MongoDatabase), nil
}

// Close releases backend connections in reverse order
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			log.Warn().Err(err).Msg("failed to close backend")
		}
	}
	a.closers = nil
}
