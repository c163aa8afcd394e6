package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/vectra-db/vectra/internal/app"
	"github.com/vectra-db/vectra/internal/collections"
	"github.com/vectra-db/vectra/internal/kv"
	"github.com/vectra-db/vectra/internal/rbac"
	"github.com/vectra-db/vectra/internal/roles"
	"github.com/vectra-db/vectra/internal/users"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	store, err := kv.Open(cfg.DataPath, cfg.OpenTimeout)
	if err != nil {
		logger.Error("open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("store close", slog.Any("error", err))
		}
	}()

	var cache *rbac.Cache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping", slog.Any("error", err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		cache = rbac.NewCache(redisClient, cfg.DecisionCacheTTL)
	}

	userRepo := users.NewRepository(store)
	userService := users.NewService(userRepo)
	roleRepo := roles.NewRepository(store)
	roleService := roles.NewService(roleRepo)
	rbacRepo := rbac.NewRepository(store)
	rbacService := rbac.NewService(rbacRepo, userRepo, roleRepo, cache, logger)
	collectionRepo := collections.NewRepository(store)
	collectionService := collections.NewService(collectionRepo)

	if err := rbacService.Bootstrap(ctx, rbac.BootstrapConfig{
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
	}); err != nil {
		logger.Error("bootstrap", slog.Any("error", err))
		os.Exit(1)
	}

	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Users:              userService,
		UsersHandler:       users.NewHandler(logger, userService),
		RolesHandler:       roles.NewHandler(logger, roleService),
		RBACHandler:        rbac.NewHandler(logger, rbacService),
		CollectionsHandler: collections.NewHandler(logger, collectionService, rbacMiddleware),
		RBACMiddleware:     rbacMiddleware,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}
