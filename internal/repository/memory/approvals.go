// Package memory — in-process реализации сторов для single-node запуска и тестов.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xela07ax/stockgate/internal/domain"
)

type ApprovalStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*domain.ApprovalRequest
}

func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{rows: make(map[int64]*domain.ApprovalRequest)}
}

// Create присваивает id и version=1. Вторая Pending заявка того же типа на ту же сущность отклоняется.
func (s *ApprovalStore) Create(_ context.Context, req *domain.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.EntityID != nil {
		for _, r := range s.rows {
			if r.Status == domain.StatusPending && r.RequestType == req.RequestType &&
				r.EntityID != nil && *r.EntityID == *req.EntityID {
				return fmt.Errorf("memory: request %d: %w", r.ID, domain.ErrDuplicatePending)
			}
		}
	}

	s.nextID++
	req.ID = s.nextID
	req.Version = 1
	s.rows[req.ID] = req.Clone()
	return nil
}

func (s *ApprovalStore) Get(_ context.Context, id int64) (*domain.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("memory: approval %d: %w", id, domain.ErrNotFound)
	}
	return r.Clone(), nil
}

func (s *ApprovalStore) List(_ context.Context, f domain.ApprovalFilter) ([]*domain.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.ApprovalRequest, 0)
	for _, r := range s.rows {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Status == "" && r.Status == domain.StatusCancelled {
			continue
		}
		if f.RequestedBy != "" && r.RequestedBy.ID != f.RequestedBy {
			continue
		}
		out = append(out, r.Clone())
	}
	// новые сверху, как в postgres
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	return page(out, f.Limit, f.Offset), nil
}

// Transition записывает req, если строка все еще в статусе from и версия совпадает.
func (s *ApprovalStore) Transition(_ context.Context, req *domain.ApprovalRequest, from domain.ApprovalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.rows[req.ID]
	if !ok {
		return fmt.Errorf("memory: approval %d: %w", req.ID, domain.ErrNotFound)
	}
	if cur.Status != from || cur.Version != req.Version {
		return fmt.Errorf("memory: approval %d changed concurrently (status %s, version %d): %w",
			req.ID, cur.Status, cur.Version, domain.ErrInvalidState)
	}

	req.Version++
	s.rows[req.ID] = req.Clone()
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
