package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xela07ax/stockgate/internal/domain"
)

// AssetStore — локальное состояние сервиса подразделений.
type AssetStore struct {
	mu          sync.Mutex
	departments map[int64]struct{}
	assets      map[int64]domain.DepartmentAsset
	removed     map[int64]int64 // productID -> версия удаления
	processed   map[string]time.Time
}

func NewAssetStore(departments ...int64) *AssetStore {
	s := &AssetStore{
		departments: make(map[int64]struct{}),
		assets:      make(map[int64]domain.DepartmentAsset),
		removed:     make(map[int64]int64),
		processed:   make(map[string]time.Time),
	}
	for _, d := range departments {
		s.departments[d] = struct{}{}
	}
	return s
}

// MarkProcessed возвращает false, если событие уже применялось.
func (s *AssetStore) MarkProcessed(_ context.Context, eventID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[eventID]; ok {
		return false, nil
	}
	s.processed[eventID] = at
	return true, nil
}

func (s *AssetStore) DepartmentExists(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.departments[id]
	return ok, nil
}

// Upsert применяет только событие с версией выше уже известной, включая версию удаления.
func (s *AssetStore) Upsert(_ context.Context, a domain.DepartmentAsset) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Version <= s.knownVersion(a.ProductID) {
		return false, nil
	}
	delete(s.removed, a.ProductID)
	s.assets[a.ProductID] = a
	return true, nil
}

func (s *AssetStore) Remove(_ context.Context, a domain.DepartmentAsset) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Version <= s.knownVersion(a.ProductID) {
		return false, nil
	}
	delete(s.assets, a.ProductID)
	s.removed[a.ProductID] = a.Version
	return true, nil
}

func (s *AssetStore) knownVersion(productID int64) int64 {
	if v, ok := s.removed[productID]; ok {
		return v
	}
	if cur, ok := s.assets[productID]; ok {
		return cur.Version
	}
	return 0
}

func (s *AssetStore) Get(_ context.Context, productID int64) (*domain.DepartmentAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[productID]
	if !ok {
		return nil, fmt.Errorf("memory: asset %d: %w", productID, domain.ErrNotFound)
	}
	return &a, nil
}

func (s *AssetStore) List(_ context.Context, departmentID int64) ([]domain.DepartmentAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DepartmentAsset, 0)
	for _, a := range s.assets {
		if a.DepartmentID == departmentID {
			out = append(out, a)
		}
	}
	return out, nil
}
