package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xela07ax/stockgate/internal/audit"
	"github.com/xela07ax/stockgate/internal/bus"
	"github.com/xela07ax/stockgate/internal/codec"
	"github.com/xela07ax/stockgate/internal/console/handler"
	"github.com/xela07ax/stockgate/internal/console/server"
	"github.com/xela07ax/stockgate/internal/engine"
	"github.com/xela07ax/stockgate/internal/events"
	"github.com/xela07ax/stockgate/internal/executor"
	"github.com/xela07ax/stockgate/internal/infra"
	"github.com/xela07ax/stockgate/internal/infra/auth"
	"github.com/xela07ax/stockgate/internal/infra/directory"
	"github.com/xela07ax/stockgate/internal/inventory"
	"github.com/xela07ax/stockgate/internal/notify"
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
		logger.Fatal("inventory service failed", zap.Error(err))
	}
	logger.Info("inventory service exited properly")
}

// notificationStore — входящие уведомлений целиком: API, fan-out и догонка.
type notificationStore interface {
	handler.NotificationInbox
	notify.Inbox
	notify.Backlog
}

type stores struct {
	approvals     engine.ApprovalStore
	products      inventory.ProductStore
	names         inventory.NameResolver
	ledger        inventory.Ledger
	tx            inventory.TxRunner
	notifications notificationStore
	audit         audit.Storage
	close         func()
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Инфраструктура и ресурсы
	reg := prometheus.NewRegistry()
	metrics := infra.NewMetrics(reg)

	var rdb *redis.Client
	if cfg.Broker.Backend == "redis" || cfg.Notify.NodeMode == "redis" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis unreachable: %w", err)
		}
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		return err
	}
	privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		return err
	}
	dir, err := directory.NewCasbin(cfg.Directory.ModelPath, cfg.Directory.PolicyPath)
	if err != nil {
		return err
	}

	broker, err := bus.Open(cfg.Broker, rdb)
	if err != nil {
		return err
	}
	defer broker.Close()

	// 2. Мутации и события
	publisher := events.NewPublisher(broker, events.Options{Published: metrics.EventsPublished}, logger)
	svc := inventory.NewService(st.products, st.names, st.ledger, st.tx, publisher, logger)
	guard := inventory.NewGuard(svc)

	// 3. Апрувы: журнал, исполнитель, оркестратор
	trail := audit.NewTrail(st.audit, audit.Options{
		BufferSize:    cfg.Audit.BufferSize,
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: cfg.Audit.FlushInterval,
		BufferFill:    metrics.AuditBufferFill,
	}, logger)
	trail.Start()
	defer trail.Stop()

	dispatcher := executor.NewHTTPDispatcher(&http.Client{},
		auth.NewInternalIssuer(privKey, cfg.Auth.Issuer, cfg.Auth.InternalAudience, cfg.Auth.InternalTokenTTL),
		executor.Options{
			Routes:        cfg.Executor.Routes,
			Timeout:       cfg.Executor.Timeout,
			CBMaxRequests: uint32(cfg.Executor.CBMaxRequests),
			CBInterval:    cfg.Executor.CBInterval,
			CBTimeout:     cfg.Executor.CBTimeout,
			CBFailures:    cfg.Executor.CBFailures,
			BreakerState:  metrics.BreakerState,
		}, logger)

	orch := engine.NewOrchestrator(st.approvals, guard, dispatcher, publisher, trail, metrics, logger)

	// 4. Уведомления
	node := cfg.Notify.NodeID
	if node == "" {
		node = uuid.NewString()
	}
	hubOpts := notify.HubOptions{
		Node:        node,
		ReplayRate:  rate.Limit(cfg.Notify.ReplayRate),
		ReplayBurst: cfg.Notify.ReplayBurst,
		Sessions:    metrics.PushSessions,
	}
	var registry notify.Registry = notify.NewMemoryRegistry()
	if cfg.Notify.NodeMode == "redis" {
		rr := notify.NewRedisRegistry(rdb, node, logger)
		registry, hubOpts.Relay = rr, rr
	}
	hub := notify.NewHub(registry, st.notifications, hubOpts, logger)
	fanout := notify.NewFanOut(st.notifications, dir, hub, logger)

	src, err := broker.Subscribe(ctx, cfg.Broker.Group+".notify", notify.RoutingKeys...)
	if err != nil {
		return err
	}
	defer src.Close()
	consumer := bus.NewConsumer(src, broker, fanout.HandleEvent, bus.ConsumerOptions{
		MaxAttempts: cfg.Broker.MaxAttempts,
		Messages:    metrics.ConsumerMessages,
	}, logger)

	// 5. HTTP
	schemas, err := codec.NewValidator()
	if err != nil {
		return err
	}
	api := server.New(server.Deps{
		Validator:        auth.NewBaseValidator(pubKey),
		Resolver:         dir,
		InternalAudience: cfg.Auth.InternalAudience,
		Gatherer:         reg,
	}, server.Handlers{
		Products:      handler.NewProductHandler(orch, svc, schemas, logger),
		Approvals:     handler.NewApprovalHandler(orch, logger),
		Notifications: handler.NewNotificationHandler(st.notifications, hub, cfg.Notify.Origins, logger),
		Execute:       handler.NewExecuteHandler(guard, schemas, logger),
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	// 6. Жизненный цикл
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("inventory api started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error { return hub.Run(gctx) })

	return g.Wait()
}

func openStores(ctx context.Context, cfg *infra.Config, logger *zap.Logger) (*stores, error) {
	if cfg.Database.URL == "" {
		logger.Warn("database.url is empty, using in-memory stores")
		catalog := memory.NewCatalog()
		catalog.PutDepartment(1, "Main warehouse")
		catalog.PutCategory(1, "General")
		return &stores{
			approvals:     memory.NewApprovalStore(),
			products:      memory.NewProductStore(),
			names:         catalog,
			ledger:        memory.NewLedger(),
			tx:            memory.NewTxRunner(),
			notifications: memory.NewNotificationStore(),
			audit:         &audit.MemoryStorage{},
			close:         func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		return nil, err
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &stores{
		approvals:     postgres.NewApprovalRepo(pool),
		products:      postgres.NewProductRepo(pool),
		names:         postgres.NewCatalogRepo(pool),
		ledger:        postgres.NewLedgerRepo(pool),
		tx:            postgres.NewTxRunner(pool),
		notifications: postgres.NewNotificationRepo(pool),
		audit:         postgres.NewAuditRepo(pool),
		close:         pool.Close,
	}, nil
}
