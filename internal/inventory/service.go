// Package inventory — мутации товаров сервиса-владельца.
// Create/Update/Delete/Transfer вызываются одинаково прямым путем и повтором после апрува;
// различается только проверка прав (см. Guard).
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xela07ax/stockgate/internal/codec"
	"github.com/xela07ax/stockgate/internal/domain"
)

type ProductStore interface {
	Create(ctx context.Context, p *domain.Product) error
	Get(ctx context.Context, id int64) (*domain.Product, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Update(ctx context.Context, p *domain.Product) error
	// Delete возвращает версию удаленной строки
	Delete(ctx context.Context, id int64) (int64, error)
}

// NameResolver переводит id справочников в отображаемые имена для ревьюера.
type NameResolver interface {
	DepartmentName(ctx context.Context, id int64) (string, error)
	CategoryName(ctx context.Context, id int64) (string, error)
}

// Ledger — журнал исполненных ключей идемпотентности.
type Ledger interface {
	Lookup(ctx context.Context, key string) (json.RawMessage, bool, error)
	Record(ctx context.Context, key string, rt domain.RequestType, result json.RawMessage) error
}

type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type EventPublisher interface {
	ProductChanged(ctx context.Context, kind string, p *domain.Product, actor domain.Actor) error
	ProductTransferred(ctx context.Context, ev domain.ProductTransferredEvent) error
}

type Service struct {
	products ProductStore
	names    NameResolver
	ledger   Ledger
	tx       TxRunner
	events   EventPublisher
	logger   *zap.Logger
}

func NewService(products ProductStore, names NameResolver, ledger Ledger, tx TxRunner, events EventPublisher, logger *zap.Logger) *Service {
	return &Service{
		products: products,
		names:    names,
		ledger:   ledger,
		tx:       tx,
		events:   events,
		logger:   logger.Named("inventory"),
	}
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Product, error) {
	return s.products.Get(ctx, id)
}

// Prepare проверяет предусловия и обогащает параметры именами, затем сериализует их.
// Ничего не пишет: результат годится и для немедленного исполнения, и для заявки.
func (s *Service) Prepare(ctx context.Context, rt domain.RequestType, payload any, actor domain.Actor) (domain.Command, error) {
	cmd := domain.Command{RequestType: rt, Actor: actor}

	var err error
	switch a := payload.(type) {
	case *domain.CreateProductAction:
		err = s.prepareCreate(ctx, rt, a)
	case *domain.UpdateProductAction:
		cmd.EntityID = &a.ProductID
		err = s.prepareUpdate(ctx, rt, a)
	case *domain.DeleteProductAction:
		cmd.EntityID = &a.ProductID
		err = s.prepareDelete(ctx, rt, a)
	case *domain.TransferProductAction:
		cmd.EntityID = &a.ProductID
		err = s.prepareTransfer(ctx, rt, a)
	default:
		return cmd, fmt.Errorf("%w: unsupported payload %T", domain.ErrValidation, payload)
	}
	if err != nil {
		return cmd, err
	}

	cmd.ActionData, err = codec.Encode(payload)
	return cmd, err
}

func expect(rt, want domain.RequestType) error {
	if rt != want {
		return fmt.Errorf("%w: payload does not match request type %s", domain.ErrValidation, rt)
	}
	return nil
}

func (s *Service) prepareCreate(ctx context.Context, rt domain.RequestType, a *domain.CreateProductAction) error {
	if err := expect(rt, domain.RequestProductCreate); err != nil {
		return err
	}
	a.InventoryCode = strings.TrimSpace(a.InventoryCode)
	if a.InventoryCode == "" || strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: inventory code and name are required", domain.ErrValidation)
	}
	exists, err := s.products.ExistsByCode(ctx, a.InventoryCode)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("inventory: inventory code %s already exists: %w", a.InventoryCode, domain.ErrConflict)
	}
	if a.CategoryName, err = s.names.CategoryName(ctx, a.CategoryID); err != nil {
		return err
	}
	a.DepartmentName, err = s.names.DepartmentName(ctx, a.DepartmentID)
	return err
}

func (s *Service) prepareUpdate(ctx context.Context, rt domain.RequestType, a *domain.UpdateProductAction) error {
	if err := expect(rt, domain.RequestProductUpdate); err != nil {
		return err
	}
	cur, err := s.products.Get(ctx, a.ProductID)
	if err != nil {
		return err
	}
	a.PreviousName = cur.Name
	a.InventoryCode = cur.InventoryCode
	a.CategoryName, err = s.names.CategoryName(ctx, a.CategoryID)
	return err
}

func (s *Service) prepareDelete(ctx context.Context, rt domain.RequestType, a *domain.DeleteProductAction) error {
	if err := expect(rt, domain.RequestProductDelete); err != nil {
		return err
	}
	cur, err := s.products.Get(ctx, a.ProductID)
	if err != nil {
		return err
	}
	a.InventoryCode = cur.InventoryCode
	a.Name = cur.Name
	return nil
}

func (s *Service) prepareTransfer(ctx context.Context, rt domain.RequestType, a *domain.TransferProductAction) error {
	if err := expect(rt, domain.RequestProductTransfer); err != nil {
		return err
	}
	cur, err := s.products.Get(ctx, a.ProductID)
	if err != nil {
		return err
	}
	if cur.DepartmentID == a.ToDepartmentID {
		return fmt.Errorf("inventory: product %d already in department %d: %w", cur.ID, cur.DepartmentID, domain.ErrConflict)
	}
	a.InventoryCode = cur.InventoryCode
	a.ProductName = cur.Name
	a.FromDepartmentID = cur.DepartmentID
	if a.FromDepartmentName, err = s.names.DepartmentName(ctx, cur.DepartmentID); err != nil {
		return err
	}
	a.ToDepartmentName, err = s.names.DepartmentName(ctx, a.ToDepartmentID)
	return err
}

// Execute исполняет сериализованную команду. Ключ идемпотентности, уже записанный
// в журнал, возвращает сохраненный результат без повторной мутации.
// События публикуются после коммита и не влияют на результат.
func (s *Service) Execute(ctx context.Context, cmd domain.Command) (json.RawMessage, error) {
	action, err := codec.DecodeAction(cmd.RequestType, cmd.ActionData)
	if err != nil {
		return nil, err
	}

	var (
		result  json.RawMessage
		replay  bool
		publish func(ctx context.Context) error
	)
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if cmd.IdempotencyKey != "" {
			stored, found, err := s.ledger.Lookup(ctx, cmd.IdempotencyKey)
			if err != nil {
				return err
			}
			if found {
				result, replay = stored, true
				return nil
			}
		}

		out, after, err := s.apply(ctx, action, cmd.Actor)
		if err != nil {
			return err
		}
		if result, err = json.Marshal(out); err != nil {
			return fmt.Errorf("inventory: marshal result: %w", err)
		}
		publish = after

		if cmd.IdempotencyKey != "" {
			return s.ledger.Record(ctx, cmd.IdempotencyKey, cmd.RequestType, result)
		}
		return nil
	})
	if err != nil {
		// параллельный вызов с тем же ключом успел первым: отдаем его результат
		if cmd.IdempotencyKey != "" && errors.Is(err, domain.ErrConflict) {
			if stored, found, lerr := s.ledger.Lookup(ctx, cmd.IdempotencyKey); lerr == nil && found {
				return stored, nil
			}
		}
		return nil, err
	}

	if replay {
		s.logger.Info("idempotent replay", zap.String("idempotency_key", cmd.IdempotencyKey))
		return result, nil
	}

	if publish != nil {
		if err := publish(ctx); err != nil {
			s.logger.Error("event publish failed after commit",
				zap.String("request_type", string(cmd.RequestType)), zap.Error(err))
		}
	}
	return result, nil
}

func (s *Service) apply(ctx context.Context, action any, actor domain.Actor) (any, func(context.Context) error, error) {
	switch a := action.(type) {
	case *domain.CreateProductAction:
		p, err := s.Create(ctx, a)
		if err != nil {
			return nil, nil, err
		}
		return p, func(ctx context.Context) error {
			return s.events.ProductChanged(ctx, domain.ProductChangeCreated, p, actor)
		}, nil

	case *domain.UpdateProductAction:
		p, err := s.Update(ctx, a)
		if err != nil {
			return nil, nil, err
		}
		return p, func(ctx context.Context) error {
			return s.events.ProductChanged(ctx, domain.ProductChangeUpdated, p, actor)
		}, nil

	case *domain.DeleteProductAction:
		p, err := s.Delete(ctx, a)
		if err != nil {
			return nil, nil, err
		}
		return map[string]int64{"id": p.ID}, func(ctx context.Context) error {
			return s.events.ProductChanged(ctx, domain.ProductChangeDeleted, p, actor)
		}, nil

	case *domain.TransferProductAction:
		p, from, err := s.Transfer(ctx, a)
		if err != nil {
			return nil, nil, err
		}
		ev := domain.ProductTransferredEvent{
			ProductID:        p.ID,
			InventoryCode:    p.InventoryCode,
			ProductName:      p.Name,
			FromDepartmentID: from,
			ToDepartmentID:   p.DepartmentID,
			TransferredBy:    actor,
			TransferredAt:    p.UpdatedAt.UTC(),
			Version:          p.Version,
		}
		return p, func(ctx context.Context) error {
			return s.events.ProductTransferred(ctx, ev)
		}, nil
	}
	return nil, nil, fmt.Errorf("%w: unsupported action %T", domain.ErrValidation, action)
}

// Create, Update, Delete и Transfer — чистые мутации без проверки прав и без событий.

func (s *Service) Create(ctx context.Context, a *domain.CreateProductAction) (*domain.Product, error) {
	p := &domain.Product{
		InventoryCode: strings.TrimSpace(a.InventoryCode),
		Name:          a.Name,
		Description:   a.Description,
		CategoryID:    a.CategoryID,
		DepartmentID:  a.DepartmentID,
		Image:         a.Image,
	}
	if err := s.products.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, a *domain.UpdateProductAction) (*domain.Product, error) {
	p, err := s.products.Get(ctx, a.ProductID)
	if err != nil {
		return nil, err
	}
	p.Name = a.Name
	p.Description = a.Description
	p.CategoryID = a.CategoryID
	// без новой картинки старая остается
	if a.Image != nil {
		p.Image = a.Image
	}
	if err := s.products.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, a *domain.DeleteProductAction) (*domain.Product, error) {
	p, err := s.products.Get(ctx, a.ProductID)
	if err != nil {
		return nil, err
	}
	version, err := s.products.Delete(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Version = version + 1
	return p, nil
}

// Transfer возвращает товар после переноса и исходное подразделение.
func (s *Service) Transfer(ctx context.Context, a *domain.TransferProductAction) (*domain.Product, int64, error) {
	p, err := s.products.Get(ctx, a.ProductID)
	if err != nil {
		return nil, 0, err
	}
	from := p.DepartmentID
	if from == a.ToDepartmentID {
		return nil, 0, fmt.Errorf("inventory: product %d already in department %d: %w", p.ID, from, domain.ErrConflict)
	}
	p.DepartmentID = a.ToDepartmentID
	if err := s.products.Update(ctx, p); err != nil {
		return nil, 0, err
	}
	return p, from, nil
}
