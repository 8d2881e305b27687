package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/xela07ax/stockgate/internal/domain"
)

type ProductStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*domain.Product
	codes  map[string]int64
	now    func() time.Time
}

func NewProductStore() *ProductStore {
	return &ProductStore{
		rows:  make(map[int64]*domain.Product),
		codes: make(map[string]int64),
		now:   time.Now,
	}
}

func (s *ProductStore) Create(_ context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[p.InventoryCode]; ok {
		return fmt.Errorf("memory: inventory code %s: %w", p.InventoryCode, domain.ErrConflict)
	}
	s.nextID++
	p.ID = s.nextID
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	p.Version = 1

	cp := *p
	s.rows[p.ID] = &cp
	s.codes[p.InventoryCode] = p.ID
	return nil
}

func (s *ProductStore) Get(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("memory: product %d: %w", id, domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *ProductStore) ExistsByCode(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.codes[code]
	return ok, nil
}

func (s *ProductStore) Update(_ context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.rows[p.ID]
	if !ok {
		return fmt.Errorf("memory: product %d: %w", p.ID, domain.ErrNotFound)
	}
	if cur.InventoryCode != p.InventoryCode {
		if _, taken := s.codes[p.InventoryCode]; taken {
			return fmt.Errorf("memory: inventory code %s: %w", p.InventoryCode, domain.ErrConflict)
		}
		delete(s.codes, cur.InventoryCode)
		s.codes[p.InventoryCode] = p.ID
	}
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = s.now()
	p.Version = cur.Version + 1
	cp := *p
	s.rows[p.ID] = &cp
	return nil
}

// Delete возвращает версию удаленной строки.
func (s *ProductStore) Delete(_ context.Context, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.rows[id]
	if !ok {
		return 0, fmt.Errorf("memory: product %d: %w", id, domain.ErrNotFound)
	}
	delete(s.codes, p.InventoryCode)
	delete(s.rows, id)
	return p.Version, nil
}

// Catalog — справочник подразделений и категорий (чужой CRUD, здесь только имена).
type Catalog struct {
	mu          sync.RWMutex
	departments map[int64]string
	categories  map[int64]string
}

func NewCatalog() *Catalog {
	return &Catalog{departments: make(map[int64]string), categories: make(map[int64]string)}
}

func (c *Catalog) PutDepartment(id int64, name string) {
	c.mu.Lock()
	c.departments[id] = name
	c.mu.Unlock()
}

func (c *Catalog) PutCategory(id int64, name string) {
	c.mu.Lock()
	c.categories[id] = name
	c.mu.Unlock()
}

func (c *Catalog) DepartmentName(_ context.Context, id int64) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.departments[id]
	if !ok {
		return "", fmt.Errorf("memory: department %d: %w", id, domain.ErrNotFound)
	}
	return name, nil
}

func (c *Catalog) CategoryName(_ context.Context, id int64) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.categories[id]
	if !ok {
		return "", fmt.Errorf("memory: category %d: %w", id, domain.ErrNotFound)
	}
	return name, nil
}

// Ledger хранит результаты уже исполненных ключей идемпотентности.
type Ledger struct {
	mu   sync.Mutex
	rows map[string]json.RawMessage
}

func NewLedger() *Ledger {
	return &Ledger{rows: make(map[string]json.RawMessage)}
}

func (l *Ledger) Lookup(_ context.Context, key string) (json.RawMessage, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.rows[key]
	return res, ok, nil
}

func (l *Ledger) Record(_ context.Context, key string, _ domain.RequestType, result json.RawMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.rows[key]; ok {
		return fmt.Errorf("memory: idempotency key %s: %w", key, domain.ErrConflict)
	}
	l.rows[key] = result
	return nil
}
