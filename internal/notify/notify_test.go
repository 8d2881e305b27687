package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/xela07ax/stockgate/internal/bus"
	"github.com/xela07ax/stockgate/internal/domain"
	"github.com/xela07ax/stockgate/internal/repository/memory"
)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	fail   error
	closed bool
}

func (c *fakeConn) Write(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) pushes() []Push {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Push, 0, len(c.frames))
	for _, f := range c.frames {
		var p Push
		if err := json.Unmarshal(f, &p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

type staticDirectory map[string][]string

func (d staticDirectory) UsersForRole(_ context.Context, role string) ([]string, error) {
	return d[role], nil
}

type NotifySuite struct {
	suite.Suite
	ctx      context.Context
	inbox    *memory.NotificationStore
	registry *MemoryRegistry
	sessions prometheus.Gauge
	hub      *Hub
	fanout   *FanOut
}

func TestNotifySuite(t *testing.T) {
	suite.Run(t, new(NotifySuite))
}

func (s *NotifySuite) SetupTest() {
	s.ctx = context.Background()
	s.inbox = memory.NewNotificationStore()
	s.registry = NewMemoryRegistry()
	s.sessions = prometheus.NewGauge(prometheus.GaugeOpts{Name: "sessions"})
	s.hub = NewHub(s.registry, s.inbox, HubOptions{Node: "n1", ReplayRate: 1000, ReplayBurst: 10, Sessions: s.sessions}, zap.NewNop())
	s.fanout = NewFanOut(s.inbox, staticDirectory{domain.RoleAdmin: {"admin-1", "admin-2"}}, s.hub, zap.NewNop())
}

func (s *NotifySuite) message(key string, payload any) bus.Message {
	msg, err := bus.NewMessage(key, "1", payload)
	s.Require().NoError(err)
	return msg
}

func (s *NotifySuite) TestReplayUnreadOldestFirst() {
	for _, title := range []string{"first", "second", "third"} {
		_, err := s.inbox.Create(s.ctx, &domain.Notification{UserID: "u1", Type: domain.NotificationApprovalProcessed, Title: title})
		s.Require().NoError(err)
	}
	s.Require().NoError(s.inbox.MarkRead(s.ctx, "u1", 2))

	conn := &fakeConn{}
	sess, err := s.hub.Connect(s.ctx, "u1", conn)
	s.Require().NoError(err)
	defer sess.Close()

	got := conn.pushes()
	s.Require().Len(got, 2)
	s.Equal("first", got[0].Notification.Title)
	s.Equal("third", got[1].Notification.Title)
	s.Equal(1.0, testutil.ToFloat64(s.sessions))
}

func (s *NotifySuite) TestCreatedEventReachesEveryReviewerOnce() {
	conn := &fakeConn{}
	sess, err := s.hub.Connect(s.ctx, "admin-1", conn)
	s.Require().NoError(err)
	defer sess.Close()

	msg := s.message(domain.RoutingApprovalCreated, domain.ApprovalCreatedEvent{
		EventID: "evt-1", RequestID: 7, RequestType: domain.RequestProductUpdate,
		RequestedBy: domain.Actor{ID: "u1", Name: "Alice"},
	})
	s.Require().NoError(s.fanout.HandleEvent(s.ctx, msg))
	// повторная доставка
	s.Require().NoError(s.fanout.HandleEvent(s.ctx, msg))

	for _, admin := range []string{"admin-1", "admin-2"} {
		n, err := s.inbox.CountUnread(s.ctx, admin)
		s.Require().NoError(err)
		s.Equal(int64(1), n, admin)
	}

	got := conn.pushes()
	s.Require().Len(got, 1)
	s.Equal(domain.NotificationApprovalCreated, got[0].Notification.Type)
	s.Contains(got[0].Notification.Message, "Alice")
	s.JSONEq(string(msg.Body), string(got[0].Notification.Data))
}

func (s *NotifySuite) TestProcessedEventGoesToRequester() {
	reason := "executor: inventory returned 409"
	msg := s.message(domain.RoutingApprovalProcessed, domain.ApprovalProcessedEvent{
		EventID: "evt-2", RequestID: 7, RequestType: domain.RequestProductDelete,
		Status: "Failed", RequestedBy: domain.Actor{ID: "u1"}, Reason: &reason,
	})
	s.Require().NoError(s.fanout.HandleEvent(s.ctx, msg))

	list, err := s.inbox.List(s.ctx, "u1", true, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal("Request Failed", list[0].Title)
	s.Contains(list[0].Message, reason)

	n, err := s.inbox.CountUnread(s.ctx, "admin-1")
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *NotifySuite) TestCancelledEventNotifiesReviewers() {
	msg := s.message(domain.RoutingApprovalCancelled, domain.ApprovalCancelledEvent{
		EventID: "evt-3", RequestID: 9, RequestType: domain.RequestProductTransfer,
		CancelledBy: domain.Actor{ID: "u1", Name: "Alice"},
	})
	s.Require().NoError(s.fanout.HandleEvent(s.ctx, msg))

	n, err := s.inbox.CountUnread(s.ctx, "admin-2")
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func (s *NotifySuite) TestBrokenPayloadIsPermanent() {
	err := s.fanout.HandleEvent(s.ctx, bus.Message{ID: "m", RoutingKey: domain.RoutingApprovalCreated, Body: []byte("{")})
	s.ErrorIs(err, bus.ErrPermanent)

	err = s.fanout.HandleEvent(s.ctx, bus.Message{ID: "m", RoutingKey: "product.created", Body: []byte("{}")})
	s.ErrorIs(err, bus.ErrPermanent)
}

func (s *NotifySuite) TestFailedWriteDropsSession() {
	conn := &fakeConn{}
	_, err := s.hub.Connect(s.ctx, "u1", conn)
	s.Require().NoError(err)

	conn.mu.Lock()
	conn.fail = errors.New("broken pipe")
	conn.mu.Unlock()

	// запись во входящих остается, даже если push не прошел
	s.Require().NoError(s.fanout.ToUser(s.ctx, "u1", Template{Type: domain.NotificationApprovalProcessed, Title: "t", DedupKey: "k"}))

	members, err := s.registry.Lookup(s.ctx, UserGroup("u1"))
	s.Require().NoError(err)
	s.Empty(members)
	s.True(conn.closed)
	s.Zero(testutil.ToFloat64(s.sessions))

	n, err := s.inbox.CountUnread(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}
