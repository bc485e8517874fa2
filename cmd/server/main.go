package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"betclever/internal/api"
	"betclever/internal/blob"
	"betclever/internal/captcha"
	"betclever/internal/config"
	"betclever/internal/db"
	"betclever/internal/events"
	"betclever/internal/kv"
	"betclever/internal/logging"
	"betclever/internal/metrics"
	"betclever/internal/notify"
	"betclever/internal/rate"
	"betclever/internal/service"
	"betclever/internal/status"
	"betclever/internal/store"
	"betclever/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	slogger := logging.NewLogger(cfg.LogLevel, "betclever", cfg.AppEnv)
	logger := logging.NewSlogLogger(slogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		slogger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger logging.Logger) error {
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}

	backend, err := openBackend(ctx, cfg, rdb)
	if err != nil {
		return err
	}

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	policy, err := status.PolicyByName(cfg.StatusPolicy)
	if err != nil {
		return err
	}

	st := store.New(backend,
		store.WithBootstrapAdmin(store.BootstrapAdmin{
			ID:       store.DefaultBootstrapAdmin.ID,
			Email:    cfg.BootstrapAdminEmail,
			Password: cfg.BootstrapAdminPassword,
		}),
		store.WithPolicy(policy),
		store.WithBlobStore(blobs),
		store.WithLogger(logger),
		store.WithSessionTTL(cfg.SessionAbsoluteDuration(), cfg.SessionIdleDuration()),
		store.WithMaxFileSize(cfg.UploadMaxFileBytes),
	)
	defer st.Close()
	if _, err := st.Accounts.BootstrapOrLoad(ctx); err != nil {
		return fmt.Errorf("bootstrap accounts: %w", err)
	}

	var bus events.Bus = events.NewLocal()
	if cfg.EventsBus == "redis" {
		bus = events.NewRedis(rdb, cfg.RedisPrefix+"events")
	}

	var limiter rate.Limiter = rate.NewMemory()
	if rdb != nil {
		limiter = rate.NewRedis(rdb, cfg.RedisPrefix+"rate:")
	}

	var sender notify.Sender = notify.LogSender{Log: logger}
	if cfg.NotifySender == "smtp" {
		sender = notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	hub := events.NewHub(logger)
	go hub.Run(ctx)
	go func() {
		if err := hub.Forward(ctx, bus); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error(ctx, "event forwarding stopped", "error", err)
		}
	}()
	metrics.RegisterGauge(registry, "betclever_admin_feed_clients", "Connected admin change feed clients.", func() float64 {
		return float64(hub.ClientCount())
	})

	svc := service.New(cfg, st, sender, bus, m, logger)
	r := api.NewRouter(cfg, svc, api.Deps{
		Limiter:  limiter,
		Captcha:  captcha.NewVerifier(cfg),
		Log:      logger,
		Metrics:  m,
		Registry: registry,
		Events:   events.NewHandler(hub, logger, cfg.CORSAllowedOrigins),
	})

	hsrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadTimeout:       time.Duration(cfg.HTTPReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTPReadHeaderTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTPWriteTimeoutSec) * time.Second,
		IdleTimeout:       time.Duration(cfg.HTTPIdleTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		info := version.Current()
		logger.Info(ctx, "listening", "addr", cfg.ListenAddr, "store", cfg.StoreBackend, "blob", cfg.BlobBackend, "version", info.Version, "commit", info.Commit)
		if err := hsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return hsrv.Shutdown(shutdownCtx)
}

func openBackend(ctx context.Context, cfg config.Config, rdb *redis.Client) (kv.Backend, error) {
	switch cfg.StoreBackend {
	case "memory":
		return kv.NewMemory(), nil
	case "redis":
		return kv.NewRedis(rdb, cfg.RedisPrefix+"kv:"), nil
	case "sqlite":
		sqdb, err := db.OpenSQLite(cfg.DBPath, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		if err := db.Migrate(ctx, sqdb, db.SQLite); err != nil {
			_ = sqdb.Close()
			return nil, err
		}
		return kv.NewSQL(sqdb, db.SQLite), nil
	}
	d, err := db.DialectFor(cfg.StoreBackend)
	if err != nil {
		return nil, err
	}
	sqdb, err := db.Open(d, cfg.DBDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Migrate(ctx, sqdb, d); err != nil {
		_ = sqdb.Close()
		return nil, err
	}
	return kv.NewSQL(sqdb, d), nil
}

func openBlobStore(ctx context.Context, cfg config.Config) (blob.Store, error) {
	if cfg.BlobBackend != "s3" {
		return blob.Inline{}, nil
	}
	s3, err := blob.NewS3(ctx, blob.S3Config{
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 content store: %w", err)
	}
	return s3, nil
}
