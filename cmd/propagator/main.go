package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/xela07ax/stockgate/internal/bus"
	"github.com/xela07ax/stockgate/internal/infra"
	"github.com/xela07ax/stockgate/internal/propagator"
	"github.com/xela07ax/stockgate/internal/repository/memory"
	"github.com/xela07ax/stockgate/internal/repository/postgres"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("propagator failed", zap.Error(err))
	}
	logger.Info("propagator exited properly")
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	metrics := infra.NewMetrics(reg)

	var rdb *redis.Client
	if cfg.Broker.Backend == "redis" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis unreachable: %w", err)
		}
	}
	if cfg.Broker.Backend == "memory" {
		logger.Warn("memory broker is process-local, propagator will receive nothing from other services")
	}

	var (
		assets propagator.AssetStore
		tx     propagator.TxRunner
	)
	if cfg.Database.URL != "" {
		pool, err := postgres.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		assets, tx = postgres.NewAssetRepo(pool), postgres.NewTxRunner(pool)
	} else {
		logger.Warn("database.url is empty, using in-memory asset store")
		assets, tx = memory.NewAssetStore(1), memory.NewTxRunner()
	}

	broker, err := bus.Open(cfg.Broker, rdb)
	if err != nil {
		return err
	}
	defer broker.Close()

	src, err := broker.Subscribe(ctx, cfg.Broker.Group+".propagator", propagator.RoutingKeys...)
	if err != nil {
		return err
	}
	defer src.Close()

	applier := propagator.NewApplier(assets, tx, logger)
	consumer := bus.NewConsumer(src, broker, applier.Handle, bus.ConsumerOptions{
		MaxAttempts: cfg.Broker.MaxAttempts,
		Messages:    metrics.ConsumerMessages,
	}, logger)

	// gRPC health для оркестратора контейнеров
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen gRPC: %w", err)
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.Server.Addr(), Handler: r, ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("grpc health started", zap.String("addr", lis.Addr().String()))
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		err := consumer.Run(gctx)
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		healthSrv.Shutdown()
		grpcSrv.GracefulStop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
