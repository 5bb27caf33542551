package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/app"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/config"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/handler"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/hub"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/log"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/middleware"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file")
	pflag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		l := log.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Init(cfg.Log)
	l := log.L()

	a, err := app.New(cfg)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialize backend")
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Hub
	wsHub := hub.NewHub()
	go wsHub.Run(ctx)

	authMiddleware := middleware.NewAuthMiddleware(a.Auth)
	httpHandler := handler.NewHandler(a.Auth, a.Chat, authMiddleware)
	wsHandler := handler.NewWSHandler(log.WithLogger(ctx, l), wsHub, a.Chat, a.Feed, authMiddleware, cfg.WebSocket)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), log.GinMiddleware(l, "/health"))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "backend": cfg.Backend})
	})

	httpHandler.RegisterRoutes(r)
	wsHandler.RegisterRoutes(r)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		l.Info().
			Str("addr", server.Addr).
			Str(log.FieldBackend, cfg.Backend).
			Str("database", cfg.Database.Driver).
			Str("pubsub", cfg.PubSub.Driver).
			Msg("marketchat server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutting down marketchat server")

	// Closes every WebSocket client and its feed handles.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("server forced to shutdown")
	}

	l.Info().Msg("marketchat server stopped")
}
