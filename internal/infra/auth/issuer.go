package auth

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/xela07ax/stockgate/internal/domain"
)

// InternalIssuer выпускает короткоживущий служебный токен, которым исполнитель
// ходит на привилегированный маршрут от имени одобрившего.
type InternalIssuer struct {
	key      *rsa.PrivateKey
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewInternalIssuer(key *rsa.PrivateKey, issuer, audience string, ttl time.Duration) *InternalIssuer {
	return &InternalIssuer{key: key, issuer: issuer, audience: audience, ttl: ttl, now: time.Now}
}

func (i *InternalIssuer) Issue(actor domain.Actor) (string, error) {
	now := i.now()
	claims := domain.CustomClaims{
		UserID:   actor.ID,
		Name:     actor.Name,
		Internal: true,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Subject:   actor.ID,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("auth: sign internal token: %w", err)
	}
	return signed, nil
}
