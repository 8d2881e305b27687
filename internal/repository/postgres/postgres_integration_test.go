//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/xela07ax/stockgate/internal/audit"
	"github.com/xela07ax/stockgate/internal/domain"
	"github.com/xela07ax/stockgate/internal/repository/postgres"
)

type PostgresStoreSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	pool      *pgxpool.Pool
	approvals *postgres.ApprovalRepo
	notes     *postgres.NotificationRepo
	products  *postgres.ProductRepo
	ledger    *postgres.LedgerRepo
	assets    *postgres.AssetRepo
	auditRepo *postgres.AuditRepo
	tx        *postgres.TxRunner
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("stockgate"),
		tcpostgres.WithUsername("stockgate"),
		tcpostgres.WithPassword("stockgate"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.pool, err = postgres.NewPool(ctx, dsn, 10, 1)
	s.Require().NoError(err)
	s.Require().NoError(postgres.EnsureSchema(ctx, s.pool))

	s.approvals = postgres.NewApprovalRepo(s.pool)
	s.notes = postgres.NewNotificationRepo(s.pool)
	s.products = postgres.NewProductRepo(s.pool)
	s.ledger = postgres.NewLedgerRepo(s.pool)
	s.assets = postgres.NewAssetRepo(s.pool)
	s.auditRepo = postgres.NewAuditRepo(s.pool)
	s.tx = postgres.NewTxRunner(s.pool)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.pool.Exec(context.Background(), `TRUNCATE approval_requests, approval_audit, notifications, products,
		executed_actions, department_assets, processed_events, departments, categories RESTART IDENTITY`)
	s.Require().NoError(err)
}

func ptr(v int64) *int64 { return &v }

func (s *PostgresStoreSuite) newRequest(rt domain.RequestType, entityID *int64) *domain.ApprovalRequest {
	r := domain.NewApprovalRequest(rt, entityID, `{"product_id":1}`, domain.Actor{ID: "u-1", Name: "Requester"}, time.Now().UTC())
	s.Require().NoError(s.approvals.Create(context.Background(), r))
	return r
}

// -------------------------------------------------------------------------
// Approval requests
// -------------------------------------------------------------------------

func (s *PostgresStoreSuite) TestApprovalLifecycle() {
	ctx := context.Background()
	r := s.newRequest(domain.RequestProductCreate, nil)
	s.Equal(int64(1), r.Version)

	s.Require().NoError(r.Approve(domain.Actor{ID: "admin-1", Name: "Admin"}, time.Now().UTC()))
	s.Require().NoError(s.approvals.Transition(ctx, r, domain.StatusPending))
	s.Require().NoError(r.MarkExecuted(time.Now().UTC()))
	s.Require().NoError(s.approvals.Transition(ctx, r, domain.StatusApproved))

	got, err := s.approvals.Get(ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusExecuted, got.Status)
	s.Equal(int64(3), got.Version)
	s.Nil(got.EntityID)
	s.Equal("Admin", got.ApprovedBy.Name)
	s.NotNil(got.ExecutedAt)
}

func (s *PostgresStoreSuite) TestConcurrentDecisionsSerialized() {
	ctx := context.Background()
	r := s.newRequest(domain.RequestProductDelete, ptr(5))

	const workers = 20
	var wins, invalid atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cur, err := s.approvals.Get(ctx, r.ID)
			if err != nil {
				return
			}
			if err := cur.Approve(domain.Actor{ID: "admin"}, time.Now().UTC()); err != nil {
				invalid.Add(1)
				return
			}
			err = s.approvals.Transition(ctx, cur, domain.StatusPending)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, domain.ErrInvalidState):
				invalid.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(workers-1), invalid.Load())
}

func (s *PostgresStoreSuite) TestOnePendingPerEntity() {
	s.newRequest(domain.RequestProductTransfer, ptr(42))

	dup := domain.NewApprovalRequest(domain.RequestProductTransfer, ptr(42), `{}`, domain.Actor{ID: "u-2"}, time.Now().UTC())
	err := s.approvals.Create(context.Background(), dup)
	s.ErrorIs(err, domain.ErrDuplicatePending)

	// create-заявки без entity_id под индекс не попадают
	s.newRequest(domain.RequestProductCreate, nil)
	s.newRequest(domain.RequestProductCreate, nil)
}

func (s *PostgresStoreSuite) TestTransitionMissingRow() {
	r := domain.NewApprovalRequest(domain.RequestProductCreate, nil, `{}`, domain.Actor{ID: "u"}, time.Now())
	r.ID, r.Version = 999, 1
	r.Status = domain.StatusCancelled
	s.ErrorIs(s.approvals.Transition(context.Background(), r, domain.StatusPending), domain.ErrNotFound)
}

// -------------------------------------------------------------------------
// Notifications, products, ledger
// -------------------------------------------------------------------------

func (s *PostgresStoreSuite) TestNotificationDedup() {
	ctx := context.Background()
	n := &domain.Notification{UserID: "u-1", Type: domain.NotificationApprovalProcessed, Title: "t", Message: "m",
		Data: []byte(`{"request_id":7}`), DedupKey: "evt-1"}
	created, err := s.notes.Create(ctx, n)
	s.Require().NoError(err)
	s.True(created)

	again := &domain.Notification{UserID: "u-1", Type: n.Type, Title: "t", Message: "m", DedupKey: "evt-1"}
	created, err = s.notes.Create(ctx, again)
	s.Require().NoError(err)
	s.False(created)
	s.Equal(n.ID, again.ID)

	count, err := s.notes.CountUnread(ctx, "u-1")
	s.Require().NoError(err)
	s.Equal(int64(1), count)

	s.Require().NoError(s.notes.MarkRead(ctx, "u-1", n.ID))
	s.ErrorIs(s.notes.MarkRead(ctx, "u-2", n.ID), domain.ErrNotFound)
}

func (s *PostgresStoreSuite) TestProductAndLedgerInOneTx() {
	ctx := context.Background()
	p := &domain.Product{InventoryCode: "4321", Name: "Scanner", CategoryID: 1, DepartmentID: 2,
		Image: &domain.Attachment{FileName: "a.png", ContentType: "image/png", Data: []byte{0, 1, 2, 255}}}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.products.Create(ctx, p); err != nil {
			return err
		}
		return s.ledger.Record(ctx, "approval-7", domain.RequestProductCreate, []byte(`{"id":1}`))
	})
	s.Require().NoError(err)

	got, err := s.products.Get(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal([]byte{0, 1, 2, 255}, got.Image.Data)

	res, ok, err := s.ledger.Lookup(ctx, "approval-7")
	s.Require().NoError(err)
	s.True(ok)
	s.JSONEq(`{"id":1}`, string(res))

	// откат: дубль кода и запись журнала не должны пережить транзакцию
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.ledger.Record(ctx, "approval-8", domain.RequestProductCreate, []byte(`{}`)); err != nil {
			return err
		}
		return s.products.Create(ctx, &domain.Product{InventoryCode: "4321", Name: "dup", CategoryID: 1, DepartmentID: 2})
	})
	s.ErrorIs(err, domain.ErrConflict)

	_, ok, err = s.ledger.Lookup(ctx, "approval-8")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *PostgresStoreSuite) TestAssetUpsertIgnoresOlderEvents() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	applied, err := s.assets.Upsert(ctx, domain.DepartmentAsset{ProductID: 1, DepartmentID: 2, InventoryCode: "A", Name: "x", LastEventAt: now, Version: 2})
	s.Require().NoError(err)
	s.True(applied)

	// более позднее время, но старая версия
	applied, err = s.assets.Upsert(ctx, domain.DepartmentAsset{ProductID: 1, DepartmentID: 3, InventoryCode: "A", Name: "x", LastEventAt: now.Add(time.Minute), Version: 1})
	s.Require().NoError(err)
	s.False(applied)

	got, err := s.assets.Get(ctx, 1)
	s.Require().NoError(err)
	s.Equal(int64(2), got.DepartmentID)

	removed, err := s.assets.Remove(ctx, domain.DepartmentAsset{ProductID: 1, DepartmentID: 2, InventoryCode: "A", Name: "x", LastEventAt: now, Version: 3})
	s.Require().NoError(err)
	s.True(removed)
	applied, err = s.assets.Upsert(ctx, domain.DepartmentAsset{ProductID: 1, DepartmentID: 3, InventoryCode: "A", Name: "x", LastEventAt: now, Version: 2})
	s.Require().NoError(err)
	s.False(applied)
	_, err = s.assets.Get(ctx, 1)
	s.ErrorIs(err, domain.ErrNotFound)

	first, err := s.assets.MarkProcessed(ctx, "evt-1", now)
	s.Require().NoError(err)
	s.True(first)
	first, err = s.assets.MarkProcessed(ctx, "evt-1", now)
	s.Require().NoError(err)
	s.False(first)
}

func (s *PostgresStoreSuite) TestAuditBatch() {
	ctx := context.Background()
	now := time.Now().UTC()
	err := s.auditRepo.WriteBatch(ctx, []audit.Transition{
		{ID: "a", RequestID: 9, RequestType: "product.create", ToStatus: "Pending", ActorID: "u", Timestamp: now},
		{ID: "b", RequestID: 9, RequestType: "product.create", FromStatus: "Pending", ToStatus: "Cancelled", ActorID: "u", Timestamp: now.Add(time.Second)},
	})
	s.Require().NoError(err)

	hist, err := s.auditRepo.History(ctx, 9)
	s.Require().NoError(err)
	s.Require().Len(hist, 2)
	s.Equal("Cancelled", hist[1].ToStatus)
}
