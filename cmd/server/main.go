package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wholesale-market/walletd/internal/config"
	"github.com/wholesale-market/walletd/internal/handler"
	"github.com/wholesale-market/walletd/internal/infrastructure/cache"
	"github.com/wholesale-market/walletd/internal/infrastructure/database"
	"github.com/wholesale-market/walletd/internal/infrastructure/lock"
	"github.com/wholesale-market/walletd/internal/infrastructure/mq"
	"github.com/wholesale-market/walletd/internal/job"
	"github.com/wholesale-market/walletd/internal/repository"
	"github.com/wholesale-market/walletd/internal/service"
	"github.com/wholesale-market/walletd/pkg/idgen"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := idgen.Init(cfg.IDGen.Node); err != nil {
		return err
	}

	db, err := database.Open(&cfg.MySQL)
	if err != nil {
		return err
	}
	if cfg.MySQL.AutoMigrate {
		if err := database.Migrate(db, cfg.MySQL.MigrateCatalog); err != nil {
			return err
		}
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Enabled {
		rdb, err := cache.NewRedis(&cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, time.Duration(cfg.Business.LockTTLSeconds)*time.Second)
	} else {
		logger.Warn("redis disabled, activation locks are process-local")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := repository.NewStore(db)
	catalog := repository.NewCatalogRepository(db)

	opts := []service.Option{service.WithLogger(logger)}
	if cfg.Kafka.Enabled {
		publisher, err := mq.NewKafkaPublisher(&cfg.Kafka)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts = append(opts, service.WithEventTopic(cfg.Kafka.Topic.WalletEvents))

		sender := job.NewOutboxSender(store.Outbox(), publisher, cfg.Business.MaxRetryCount, logger)
		go sender.Start(ctx)
	}

	prices, err := service.PriceTableFromConfig(cfg.Boost)
	if err != nil {
		return fmt.Errorf("boost prices: %w", err)
	}

	wallet := service.NewWalletService(store, catalog, opts...)
	h := handler.NewHandler(handler.Services{
		Wallet:       wallet,
		Entitlements: service.NewEntitlementService(store, wallet, prices, catalog, locker, opts...),
		Admin:        service.NewAdminService(store, wallet, locker, opts...),
		Query:        service.NewQueryService(store, opts...),
		Prices:       prices,
	}, logger)
	router := handler.SetupRouter(h, logger, cfg.Server.Mode)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
