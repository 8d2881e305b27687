package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims — содержимое токена. Permissions — готовый набор строковых прав,
// роли резолвятся снаружи.
type CustomClaims struct {
	UserID      string   `json:"user_id"`
	Name        string   `json:"name"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`

	// Internal выставляется только служебному токену исполнителя апрувов.
	Internal bool `json:"internal,omitempty"`
	jwt.RegisteredClaims
}

const (
	PermissionApprovalReview = "approval.review"
	RoleAdmin                = "Admin"
)

// PermissionSet — множество прав текущего вызывающего.
type PermissionSet map[string]struct{}

func NewPermissionSet(perms ...string) PermissionSet {
	ps := make(PermissionSet, len(perms))
	for _, p := range perms {
		ps[p] = struct{}{}
	}
	return ps
}

func (p PermissionSet) Has(perm string) bool {
	_, ok := p[perm]
	return ok
}

func (p PermissionSet) Add(perms ...string) {
	for _, perm := range perms {
		p[perm] = struct{}{}
	}
}

// Caller — аутентифицированный пользователь запроса.
type Caller struct {
	Actor       Actor
	Roles       []string
	Permissions PermissionSet
	Internal    bool
}
