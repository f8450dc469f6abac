package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"khata-ledger-go/internal/auth"
	"khata-ledger-go/internal/config"
	"khata-ledger-go/internal/database"
	"khata-ledger-go/internal/feed"
	httpserver "khata-ledger-go/internal/http"
	"khata-ledger-go/internal/khata"
	"khata-ledger-go/internal/kv"
	"khata-ledger-go/internal/logger"
	"khata-ledger-go/internal/realtime"
	"khata-ledger-go/internal/store"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()

	lg, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer lg.Sync()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("Server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, lg *zap.Logger) error {
	var db *gorm.DB
	if cfg.StoreDriver == "postgres" || cfg.FeedDriver == "postgres" {
		var err error
		if db, err = database.Connect(cfg.Database, lg); err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		lg.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	docs, err := openStore(cfg, db)
	if err != nil {
		return err
	}
	defer docs.Close()

	broker, err := openBroker(cfg, db, redisClient, lg)
	if err != nil {
		return err
	}
	if c, ok := broker.(io.Closer); ok {
		defer c.Close()
	}

	var sessions kv.Store = kv.NewMemory()
	if redisClient != nil {
		sessions = kv.NewRedis(redisClient)
	}

	var sender auth.Sender = auth.NewLogSender(lg)
	if cfg.SMSGatewayURL != "" {
		sender = auth.NewGatewaySender(cfg.SMSGatewayURL, cfg.SMSGatewayToken, lg)
	}

	observed := store.NewObserved(docs, broker, lg)
	views := realtime.NewManager(observed, broker, lg)
	defer views.Close()

	flow := auth.NewFlow(auth.Config{
		CodeLength:  cfg.OTPLength,
		CodeTTL:     cfg.OTPTTL,
		MaxAttempts: cfg.OTPMaxAttempts,
		SessionTTL:  cfg.SessionTTL,
	}, sessions, observed, sender, lg)

	svc := khata.NewService(observed, lg,
		khata.WithLocation(cfg.Location()),
		khata.WithDefaultCurrency(cfg.DefaultCurrency),
	)

	r := httpserver.NewServer(cfg, httpserver.Deps{
		Logger: lg,
		Khata:  svc,
		Auth:   flow,
		Views:  views,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("Listening", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreDriver), zap.String("feed", cfg.FeedDriver))
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		lg.Info("Shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	// Live streams end when their views close.
	views.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func openStore(cfg *config.Config, db *gorm.DB) (store.Store, error) {
	switch cfg.StoreDriver {
	case "postgres":
		pg := store.NewPostgres(db)
		if err := pg.AutoMigrate(); err != nil {
			return nil, fmt.Errorf("migrate documents: %w", err)
		}
		return pg, nil
	case "bolt", "":
		return store.NewBolt(cfg.BoltPath)
	}
	return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

func openBroker(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, lg *zap.Logger) (feed.Broker, error) {
	switch cfg.FeedDriver {
	case "redis":
		if redisClient == nil {
			return nil, errors.New("FEED_DRIVER=redis needs REDIS_ADDR")
		}
		return feed.NewRedis(redisClient, lg), nil
	case "postgres":
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		return feed.NewPostgres(sqlDB, cfg.Database.DSN(), lg), nil
	case "local", "":
		return feed.NewLocal(), nil
	}
	return nil, fmt.Errorf("unknown FEED_DRIVER %q", cfg.FeedDriver)
}
