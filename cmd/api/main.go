package main

import (
	"Huddle/internal/api/config"
	"Huddle/internal/pkg/cron"
	"Huddle/internal/pkg/docstore"
	"Huddle/internal/pkg/kafka"
	"Huddle/internal/pkg/logger"
	"Huddle/internal/pkg/minio"
	"Huddle/internal/pkg/mongo"
	"Huddle/internal/pkg/presence"
	"Huddle/internal/pkg/redis"
	"Huddle/internal/pkg/security"
	"Huddle/internal/wire"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

func main() {
	if err := config.LoadConfig(); err != nil {
		log.Error("Fatal error: failed to load configuration", "err", err)
		panic(err)
	}
	cfg := config.Cfg

	logger.InitLogger(cfg.Logstash, cfg.Log.Level)
	security.Init(cfg.JWT)

	backends, closeBackends, err := initBackends(cfg)
	if err != nil {
		log.Error("Fatal error: failed to initialize backends", "err", err)
		panic(err)
	}
	defer closeBackends()

	app, err := wire.BuildApplication(backends, cfg)
	if err != nil {
		log.Error("Fatal error: failed to create application", "err", err)
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if err = cron.InitCron(app.CronMgr); err != nil {
		log.Error("Fatal error: failed to start cron jobs", "err", err)
		panic(err)
	}
	g.Go(func() error {
		<-ctx.Done()
		app.CronMgr.Stop()
		return nil
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: app.Router,
	}
	g.Go(func() error {
		log.Info("HTTP Server starting...", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-quit:
			log.Info("Received signal, shutting down...", "signal", sig)
			cancel()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP Server shutdown failed", "err", err)
		}
		// hijacked sockets are not covered by Shutdown
		app.Sessions.CloseAll(shutdownCtx)
		return nil
	})

	if err = g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("App exited with error", "err", err)
	}
	log.Info("App exited successfully.")
}

// initBackends connects the configured store, presence, notification and
// attachment backends.
func initBackends(cfg *config.Config) (wire.Backends, func(), error) {
	var b wire.Backends
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Store.Driver {
	case "memory":
		log.Warn("Using the in-memory document store, data is not persisted")
		b.Store = docstore.NewMemStore()
	case "mongo":
		db, err := mongo.InitMongo(cfg.Mongo)
		if err != nil {
			return b, closeAll, fmt.Errorf("mongo: %w", err)
		}
		closers = append(closers, func() { _ = db.Client().Disconnect(context.Background()) })
		b.Store = mongo.NewStore(db)
	default:
		return b, closeAll, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	switch cfg.Presence.Driver {
	case "memory":
		b.Presence = presence.NewMemory()
	case "redis":
		if err := redis.InitRedis(cfg.Redis); err != nil {
			closeAll()
			return b, func() {}, fmt.Errorf("redis: %w", err)
		}
		closers = append(closers, func() { _ = redis.Rdb.Close() })
		backend := redis.NewPresenceBackend(redis.Rdb, cfg.Presence.Heartbeat, cfg.Presence.LeaseTTL)
		b.Presence = backend
		b.PresenceSweeper = backend
	default:
		closeAll()
		return b, func() {}, fmt.Errorf("unknown presence driver %q", cfg.Presence.Driver)
	}

	if cfg.Kafka.Enable {
		producer, err := kafka.NewNotificationProducer(cfg.Kafka)
		if err != nil {
			closeAll()
			return b, func() {}, fmt.Errorf("kafka: %w", err)
		}
		closers = append(closers, func() { _ = producer.Close() })
		b.Notifier = producer
	}

	if cfg.MinIO.Enable {
		if err := minio.Init(cfg.MinIO); err != nil {
			closeAll()
			return b, func() {}, fmt.Errorf("minio: %w", err)
		}
		b.Attachments = minio.NewAttachmentResolver(minio.Client, cfg.MinIO)
	}

	return b, closeAll, nil
}
