package inventory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xela07ax/stockgate/internal/domain"
)

// Guard — проверка прав перед чистой мутацией. Прямой вызов требует права ".direct",
// повтор после апрува требует служебного токена. Сама мутация одна и та же.
type Guard struct {
	svc *Service
}

func NewGuard(svc *Service) *Guard {
	return &Guard{svc: svc}
}

func (g *Guard) Prepare(ctx context.Context, rt domain.RequestType, payload any, actor domain.Actor) (domain.Command, error) {
	return g.svc.Prepare(ctx, rt, payload, actor)
}

// Execute исполняет команду от имени caller. Actor команды всегда берется из caller:
// для служебного токена это одобривший.
func (g *Guard) Execute(ctx context.Context, caller domain.Caller, cmd domain.Command) (json.RawMessage, error) {
	if !Allowed(caller, cmd.RequestType) {
		return nil, fmt.Errorf("%w: %s requires %s", domain.ErrInsufficientPermission,
			cmd.RequestType, cmd.RequestType.DirectPermission())
	}
	cmd.Actor = caller.Actor
	return g.svc.Execute(ctx, cmd)
}

// Allowed сообщает, может ли caller исполнить мутацию без апрува.
func Allowed(caller domain.Caller, rt domain.RequestType) bool {
	if !rt.Valid() {
		return false
	}
	return caller.Internal || caller.Permissions.Has(rt.DirectPermission())
}
