package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/instantcocoa/perftrace/pkg/cache"
	"github.com/instantcocoa/perftrace/pkg/config"
	"github.com/instantcocoa/perftrace/pkg/database"
	"github.com/instantcocoa/perftrace/pkg/grpcutil"
	"github.com/instantcocoa/perftrace/pkg/telemetry"
	"github.com/instantcocoa/perftrace/services/timing"
)

const serviceName = "perftrace"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(serviceName)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, telemetry.FromBase(cfg))
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer tp.Shutdown(context.Background())

	logger := tp.Logger()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	store, err := timing.NewStore(timing.StoreOptions{
		Backend: cfg.StorageBackend,
		DB:      db,
	})
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	logger.Info("initialized storage backend", "backend", cfg.StorageBackend)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := timing.NewService(store, logger).WithMetrics(timing.NewMetrics(reg))

	if cfg.UseCache() {
		cacheCfg, err := cache.ConfigFromURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rc, err := cache.Connect(ctx, cacheCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rc.Close()

		svc = svc.WithCache(rc.WithLogger(logger).WithKeyPrefix(serviceName), cfg.CacheTTL)
		logger.Info("enabled analysis cache", "addr", cacheCfg.Addr, "ttl", cfg.CacheTTL)
	}

	serverCfg := grpcutil.DefaultServerConfig(cfg.GRPCPort, serviceName)
	serverCfg.UnaryInterceptors = []grpc.UnaryServerInterceptor{
		grpcutil.MetricsUnaryInterceptor(reg),
		grpcutil.TimeoutUnaryInterceptor(time.Minute),
	}
	grpcServer := grpcutil.NewServer(serverCfg, logger)
	timing.NewHandler(logger, svc).Register(grpcServer.GRPCServer())

	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: timing.NewHTTPServer(svc, logger, timing.HTTPOptions{
			Gatherer:  reg,
			RateLimit: cfg.RateLimit,
			RateBurst: cfg.RateBurst,
		}).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting perftrace service",
		"grpc_port", cfg.GRPCPort,
		"http_port", cfg.HTTPPort,
		"env", cfg.Environment,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return grpcServer.Run(ctx)
	})
	g.Go(func() error {
		logger.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openDatabase connects and migrates the SQL backend, or returns nil for memory storage.
func openDatabase(ctx context.Context, cfg *config.Base, logger *slog.Logger) (*sql.DB, error) {
	var dbCfg *database.Config
	switch cfg.StorageBackend {
	case config.StoragePostgres:
		dbCfg = database.DefaultConfig()
		dbCfg.Host = cfg.DBHost
		dbCfg.Port = cfg.DBPort
		dbCfg.User = cfg.DBUser
		dbCfg.Password = cfg.DBPassword
		dbCfg.Database = cfg.DBName
		dbCfg.SSLMode = cfg.DBSSLMode
	case config.StorageSQLite:
		dbCfg = database.SQLiteConfig(cfg.SQLitePath)
	default:
		return nil, nil
	}

	db, err := database.ConnectAndMigrate(ctx, dbCfg, serviceName, timing.Migrations, timing.MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.StorageBackend, err)
	}
	logger.Info("connected to database", "driver", db.Driver())
	return db.DB, nil
}
