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

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/tweetfeed/config"
	"github.com/d60-Lab/tweetfeed/internal/activity"
	"github.com/d60-Lab/tweetfeed/internal/activity/redislog"
	"github.com/d60-Lab/tweetfeed/internal/api/handler"
	"github.com/d60-Lab/tweetfeed/internal/api/router"
	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/repository"
	"github.com/d60-Lab/tweetfeed/internal/service"
	"github.com/d60-Lab/tweetfeed/internal/viewable"
	"github.com/d60-Lab/tweetfeed/pkg/cache"
	"github.com/d60-Lab/tweetfeed/pkg/database"
	"github.com/d60-Lab/tweetfeed/pkg/logger"
	"github.com/d60-Lab/tweetfeed/pkg/tracing"
)

// @title TweetFeed API
// @version 1.0
// @description 分页信息流与 viewable 组合服务
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Sentry.Environment}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb, err := cache.InitRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	source := activity.NewSource(redislog.New(rdb, cfg.Feed.CopyLimit))
	users := repository.NewCachedCollection[model.User](store.Users, rdb, "user", cfg.Feed.UserCacheTTL)
	composer := viewable.NewComposer(users, store.Tweets, repository.NewEdges(store))
	opts := viewable.Options{EnableViewerCheck: true}

	publisher := service.NewPublisher()
	follows := repository.NewFollowRepository(store.Follows)
	replicator := service.NewFanReplicator(repository.NewFanRepository(store.Fans), follows, cfg.Feed.FanQueueSize)
	relay := service.NewOutboxRelay(store.Queue, follows, source, service.RelayConfig{
		Workers:      cfg.Feed.OutboxWorkers,
		ClaimLimit:   cfg.Feed.OutboxClaim,
		PollInterval: cfg.Feed.OutboxInterval,
	})
	stopReplicator := replicator.Start(cfg.Feed.FanWorkers)
	stopRelay := relay.Start()

	h := handler.NewHandler(
		service.NewFeedService(source, store, composer, opts),
		service.NewTweetService(store, publisher, composer, users, opts),
		service.NewBookmarkService(store, composer, opts),
		service.NewUserService(store, users, composer, opts),
		service.NewRelationshipService(store, publisher, replicator, users),
	)
	engine, err := router.Setup(cfg, h)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	if err := stopRelay(shutdownCtx); err != nil {
		logger.Error("outbox relay shutdown", zap.Error(err))
	}
	if err := stopReplicator(shutdownCtx); err != nil {
		logger.Error("fan replicator shutdown", zap.Error(err))
	}
	return nil
}

// openStore 按配置选择 MongoDB 或 gorm（postgres / sqlite）实体存储
func openStore(ctx context.Context, cfg *config.Config) (*repository.Store, func(), error) {
	if cfg.Mongo.Enabled {
		client, err := database.InitMongo(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		db := client.Database(cfg.Mongo.Database)
		if err := database.EnsureMongoIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		logger.Info("entity store: mongodb", zap.String("database", cfg.Mongo.Database))
		return repository.NewMongoStore(client, db), func() { _ = client.Disconnect(context.Background()) }, nil
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("entity store: sql", zap.String("driver", cfg.Database.Driver))
	return repository.NewGormStore(db), func() { _ = database.Close(db) }, nil
}
