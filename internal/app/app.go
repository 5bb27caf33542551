// Package app builds the storage, change-feed and service graph from
// configuration. Both the server and the CLI start from it.
package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/cache"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/config"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/feed"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/repository"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/service"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/database"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/jwt"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/log"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/pubsub"
)

type App struct {
	Config *config.Config
	DB     *gorm.DB
	Repo   *repository.GormChatRepository
	Bus    pubsub.PubSub
	Cache  cache.ConversationCache
	Tokens *jwt.Manager
	Auth   service.AuthService
	Chat   service.ChatService
	Feed   *feed.Client
}

// New connects every backend named by cfg. On error, whatever was
// already opened is closed.
func New(cfg *config.Config) (a *App, err error) {
	l := log.L()
	a = &App{Config: cfg}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	a.DB, err = database.New(cfg.Database.Database())
	if err != nil {
		return a, err
	}
	a.Repo = repository.NewGormChatRepository(a.DB)
	if err = a.Repo.Migrate(); err != nil {
		return a, fmt.Errorf("failed to auto-migrate: %w", err)
	}
	l.Info().Str("driver", cfg.Database.Driver).Msg("database ready")

	a.Bus, err = pubsub.NewPubSub(cfg.PubSub)
	if err != nil {
		return a, fmt.Errorf("failed to create pubsub: %w", err)
	}
	l.Info().Str("driver", cfg.PubSub.Driver).Msg("change feed ready")

	if cfg.Cache.Enabled {
		c, cerr := cache.NewRedisConversationCache(cfg.Redis, cfg.Cache.Prefix)
		if cerr != nil {
			// The cache is optional; run without it.
			l.Warn().Err(cerr).Msg("conversation cache disabled")
		} else {
			a.Cache = c
		}
	}

	a.Tokens, err = jwt.NewManager(cfg.Auth.Secret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL, cfg.Auth.Issuer)
	if err != nil {
		return a, fmt.Errorf("failed to create token manager: %w", err)
	}

	a.Auth = service.NewAuthService(a.Repo, a.Tokens, cfg.Auth.BcryptCost)
	a.Chat = service.NewChatService(a.Repo, a.Bus, a.Cache, cfg.Cache.TTL)
	a.Feed = feed.NewClient(a.Bus, feed.WithReconnectDelay(cfg.Feed.ReconnectDelay))

	l.Info().Str(log.FieldBackend, cfg.Backend).Msg("backend ready")
	return a, nil
}

// Close releases the change feed, the cache and the database.
func (a *App) Close() {
	l := log.L()
	if a.Bus != nil {
		if err := a.Bus.Close(); err != nil {
			l.Warn().Err(err).Msg("failed to close pubsub")
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			l.Warn().Err(err).Msg("failed to close cache")
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			l.Warn().Err(err).Msg("failed to close database")
		}
	}
}
