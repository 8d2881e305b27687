package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/stockgate/internal/domain"
)

// Conn — транспорт одной живой сессии.
type Conn interface {
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Relay доставляет сообщения группы сессиям на других узлах.
type Relay interface {
	Broadcast(ctx context.Context, group string, data []byte) error
	Listen(ctx context.Context, resync func(ctx context.Context) error, deliver func(group string, data []byte))
}

// Backlog — источник непрочитанного для догонки при подключении.
type Backlog interface {
	ListUnreadOldestFirst(ctx context.Context, userID string) ([]*domain.Notification, error)
}

type HubOptions struct {
	Node         string
	ReplayRate   rate.Limit
	ReplayBurst  int
	WriteTimeout time.Duration
	Relay        Relay            // nil — один узел
	Sessions     prometheus.Gauge // опционален
}

// Push — то, что уходит в сокет.
type Push struct {
	Kind         string               `json:"kind"`
	Notification *domain.Notification `json:"notification"`
}

const PushNotification = "notification"

func UserGroup(userID string) string { return "user:" + userID }

type Hub struct {
	mu       sync.RWMutex
	groups   map[string]map[string]*Session // group -> member -> session
	registry Registry
	backlog  Backlog
	opts     HubOptions
	logger   *zap.Logger
}

func NewHub(registry Registry, backlog Backlog, opts HubOptions, logger *zap.Logger) *Hub {
	if opts.Node == "" {
		opts.Node = uuid.NewString()
	}
	if opts.ReplayRate <= 0 {
		opts.ReplayRate = 20
	}
	if opts.ReplayBurst < 1 {
		opts.ReplayBurst = 1
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &Hub{
		groups:   make(map[string]map[string]*Session),
		registry: registry,
		backlog:  backlog,
		opts:     opts,
		logger:   logger.Named("hub"),
	}
}

type Session struct {
	hub    *Hub
	member string
	group  string
	conn   Conn

	wmu  sync.Mutex
	once sync.Once
}

// Connect регистрирует сессию пользователя и досылает непрочитанное, старое первым.
// Сессия регистрируется до догонки: уведомление, пришедшее в этот момент, может
// прийти дважды, клиент различает их по id.
func (h *Hub) Connect(ctx context.Context, userID string, conn Conn) (*Session, error) {
	s := &Session{
		hub:    h,
		member: h.opts.Node + "/" + uuid.NewString(),
		group:  UserGroup(userID),
		conn:   conn,
	}
	if err := h.registry.Add(ctx, s.group, s.member); err != nil {
		return nil, err
	}

	h.mu.Lock()
	g, ok := h.groups[s.group]
	if !ok {
		g = make(map[string]*Session)
		h.groups[s.group] = g
	}
	g[s.member] = s
	h.mu.Unlock()

	if h.opts.Sessions != nil {
		h.opts.Sessions.Inc()
	}
	h.logger.Debug("session connected", zap.String("group", s.group), zap.String("member", s.member))

	if err := h.replay(ctx, s, userID); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (h *Hub) replay(ctx context.Context, s *Session, userID string) error {
	pending, err := h.backlog.ListUnreadOldestFirst(ctx, userID)
	if err != nil {
		return err
	}
	limiter := rate.NewLimiter(h.opts.ReplayRate, h.opts.ReplayBurst)
	for _, n := range pending {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		data, err := json.Marshal(Push{Kind: PushNotification, Notification: n})
		if err != nil {
			return err
		}
		if err := s.write(ctx, data); err != nil {
			return err
		}
	}
	if len(pending) > 0 {
		h.logger.Info("pending notifications replayed", zap.String("user_id", userID), zap.Int("count", len(pending)))
	}
	return nil
}

// SendToGroup пишет локальным сессиям группы и, если члены группы есть на других узлах,
// ретранслирует сообщение. Отсутствие сессий не ошибка.
func (h *Hub) SendToGroup(ctx context.Context, group string, data []byte) error {
	h.deliver(ctx, group, data)
	if h.opts.Relay == nil {
		return nil
	}

	members, err := h.registry.Lookup(ctx, group)
	if err != nil {
		return err
	}
	prefix := h.opts.Node + "/"
	for _, m := range members {
		if !strings.HasPrefix(m, prefix) {
			return h.opts.Relay.Broadcast(ctx, group, data)
		}
	}
	return nil
}

func (h *Hub) deliver(ctx context.Context, group string, data []byte) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.groups[group]))
	for _, s := range h.groups[group] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if err := s.write(ctx, data); err != nil {
			h.logger.Warn("push failed, closing session", zap.String("member", s.member), zap.Error(err))
			s.Close()
		}
	}
}

// Run держит межузловую подписку до отмены ctx.
func (h *Hub) Run(ctx context.Context) error {
	if h.opts.Relay == nil {
		<-ctx.Done()
		return nil
	}
	h.opts.Relay.Listen(ctx, h.resync, func(group string, data []byte) {
		h.deliver(ctx, group, data)
	})
	return nil
}

func (h *Hub) resync(ctx context.Context) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var errs []error
	for group, members := range h.groups {
		for m := range members {
			errs = append(errs, h.registry.Add(ctx, group, m))
		}
	}
	return errors.Join(errs...)
}

func (s *Session) write(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.hub.opts.WriteTimeout)
	defer cancel()
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.Write(ctx, data)
}

// Close снимает сессию с учета. Повторный вызов безопасен.
func (s *Session) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		if g, ok := h.groups[s.group]; ok {
			delete(g, s.member)
			if len(g) == 0 {
				delete(h.groups, s.group)
			}
		}
		h.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), h.opts.WriteTimeout)
		defer cancel()
		if err := h.registry.Remove(ctx, s.group, s.member); err != nil {
			h.logger.Warn("registry remove failed", zap.String("member", s.member), zap.Error(err))
		}
		_ = s.conn.Close()

		if h.opts.Sessions != nil {
			h.opts.Sessions.Dec()
		}
	})
}
