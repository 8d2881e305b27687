package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/stockgate/internal/domain"
)

type NotificationStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*domain.Notification
	dedup  map[string]int64 // userID + dedupKey -> id
	now    func() time.Time
}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{
		rows:  make(map[int64]*domain.Notification),
		dedup: make(map[string]int64),
		now:   time.Now,
	}
}

// Create возвращает false, если уведомление с таким DedupKey у пользователя уже есть.
func (s *NotificationStore) Create(_ context.Context, n *domain.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := n.UserID + "\x00" + n.DedupKey
	if n.DedupKey != "" {
		if id, ok := s.dedup[k]; ok {
			*n = *s.rows[id]
			return false, nil
		}
	}

	s.nextID++
	n.ID = s.nextID
	if n.DedupKey != "" {
		s.dedup[k] = n.ID
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	cp := *n
	s.rows[n.ID] = &cp
	return true, nil
}

func (s *NotificationStore) List(_ context.Context, userID string, unreadOnly bool, limit, offset int) ([]*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.collect(userID, unreadOnly)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, limit, offset), nil
}

// ListUnreadOldestFirst — для replay при подключении.
func (s *NotificationStore) ListUnreadOldestFirst(_ context.Context, userID string) ([]*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.collect(userID, true)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *NotificationStore) CountUnread(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.collect(userID, true))), nil
}

func (s *NotificationStore) MarkRead(_ context.Context, userID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.rows[id]
	if !ok || n.UserID != userID {
		return fmt.Errorf("memory: notification %d: %w", id, domain.ErrNotFound)
	}
	if !n.IsRead {
		now := s.now()
		n.IsRead = true
		n.ReadAt = &now
	}
	return nil
}

func (s *NotificationStore) MarkAllRead(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	for _, row := range s.rows {
		if row.UserID == userID && !row.IsRead {
			row.IsRead = true
			row.ReadAt = &now
			n++
		}
	}
	return n, nil
}

func (s *NotificationStore) collect(userID string, unreadOnly bool) []*domain.Notification {
	out := make([]*domain.Notification, 0)
	for _, n := range s.rows {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	return out
}
