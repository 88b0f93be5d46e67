package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/park285/chessnerd/internal/auth"
	"github.com/park285/chessnerd/internal/cache"
	"github.com/park285/chessnerd/internal/config"
	"github.com/park285/chessnerd/internal/dashboard"
	"github.com/park285/chessnerd/internal/httpapi"
	"github.com/park285/chessnerd/internal/lessons"
	"github.com/park285/chessnerd/internal/lobby"
	"github.com/park285/chessnerd/internal/msgcat"
	"github.com/park285/chessnerd/internal/obslog"
	"github.com/park285/chessnerd/internal/play"
	"github.com/park285/chessnerd/internal/store"
)

const shutdownGrace = 15 * time.Second

func serveCmd(envFiles *[]string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*envFiles)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}

func loadConfig(envFiles []string) (*config.AppConfig, error) {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, err
	}
	if err := obslog.InitFromEnv(); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.AppConfig) error {
	log := obslog.L()
	defer func() { _ = log.Sync() }()

	repo, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fmt.Errorf("message catalog: %w", err)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		if rdb, err = cache.Connect(ctx, cfg.RedisURL); err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
	} else {
		log.Warn("redis_disabled", zap.String("reason", "REDIS_URL not set; lobby and profile cache off"))
	}
	profiles := cache.NewProfiles(rdb)

	authOpts := []auth.Option{
		auth.WithResetURL(cfg.ResetURL),
		auth.WithNotifier(auth.LogNotifier{ShowLink: !cfg.Production}),
	}
	if rdb != nil {
		authOpts = append(authOpts, auth.WithResetStore(auth.NewRedisResets(rdb)))
	}

	metrics := httpapi.NewMetrics()
	games := play.NewService(repo, play.ConfigFrom(cfg),
		play.WithCatalog(msgs),
		play.WithProfileCache(profiles),
		play.WithMetrics(metrics),
	)
	defer games.Shutdown()
	metrics.WatchActive(games.Active)

	deps := httpapi.Deps{
		Auth:      auth.NewService(repo, cfg.JWTSecret, cfg.JWTTTL, authOpts...),
		Cookies:   auth.Cookies{Name: cfg.CookieName, Secure: cfg.Production},
		Games:     games,
		Dashboard: dashboard.NewService(repo, profiles, cfg.HistoryLimit),
		Lessons:   lessons.NewService(repo, lessons.WithCatalog(msgs)),
		Metrics:   metrics,
		Origins:   cfg.ClientOrigins,
	}
	if rdb != nil {
		deps.Lobby = lobby.NewManager(rdb, games, lobby.WithCatalog(msgs))
	}

	log.Info("chessnerd_start",
		zap.String("version", Version),
		zap.String("store", cfg.StoreBackend),
		zap.Bool("redis", rdb != nil),
		zap.Int("max_games", cfg.MaxConcurrentGames),
	)
	return httpapi.New(deps).Serve(ctx, cfg.HTTPAddr, shutdownGrace)
}
