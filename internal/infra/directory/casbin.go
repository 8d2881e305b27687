// Package directory резолвит роли в пользователей и права поверх Casbin.
package directory

import (
	"context"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// DefaultModel: p = роль/пользователь -> строковое право, g = пользователь -> роль.
const DefaultModel = `
[request_definition]
r = sub, perm

[policy_definition]
p = sub, perm

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.perm == p.perm
`

type Casbin struct {
	enforcer *casbin.Enforcer
}

// NewCasbin грузит модель (при пустом пути DefaultModel) и политику из CSV.
func NewCasbin(modelPath, policyPath string) (*Casbin, error) {
	var (
		m   model.Model
		err error
	)
	if modelPath != "" {
		m, err = model.NewModelFromFile(modelPath)
	} else {
		m, err = model.NewModelFromString(DefaultModel)
	}
	if err != nil {
		return nil, fmt.Errorf("directory: load model: %w", err)
	}

	var e *casbin.Enforcer
	if policyPath != "" {
		e, err = casbin.NewEnforcer(m, policyPath)
	} else {
		e, err = casbin.NewEnforcer(m)
	}
	if err != nil {
		return nil, fmt.Errorf("directory: create enforcer: %w", err)
	}
	return &Casbin{enforcer: e}, nil
}

// NewCasbinFromEnforcer используется тестами и при программном наполнении политики.
func NewCasbinFromEnforcer(e *casbin.Enforcer) *Casbin {
	return &Casbin{enforcer: e}
}

// UsersForRole возвращает пользователей, явно состоящих в роли.
func (c *Casbin) UsersForRole(_ context.Context, role string) ([]string, error) {
	users, err := c.enforcer.GetUsersForRole(role)
	if err != nil {
		return nil, fmt.Errorf("directory: users for role %s: %w", role, err)
	}
	return users, nil
}

// PermissionsFor собирает права пользователя и ролей из токена (с учетом наследования).
func (c *Casbin) PermissionsFor(_ context.Context, userID string, roles []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string

	for _, sub := range append([]string{userID}, roles...) {
		rows, err := c.enforcer.GetImplicitPermissionsForUser(sub)
		if err != nil {
			return nil, fmt.Errorf("directory: permissions for %s: %w", sub, err)
		}
		for _, row := range rows {
			if len(row) < 2 {
				continue
			}
			if _, ok := seen[row[1]]; ok {
				continue
			}
			seen[row[1]] = struct{}{}
			out = append(out, row[1])
		}
	}
	return out, nil
}

func (c *Casbin) AddRoleForUser(userID, role string) error {
	_, err := c.enforcer.AddRoleForUser(userID, role)
	return err
}

func (c *Casbin) AddPermission(sub, perm string) error {
	_, err := c.enforcer.AddPolicy(sub, perm)
	return err
}
