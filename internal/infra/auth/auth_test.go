package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/stockgate/internal/domain"
)

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func userToken(t *testing.T, key *rsa.PrivateKey, claims domain.CustomClaims) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

type roleResolver map[string][]string

func (r roleResolver) PermissionsFor(_ context.Context, _ string, roles []string) ([]string, error) {
	var out []string
	for _, role := range roles {
		out = append(out, r[role]...)
	}
	return out, nil
}

func captureCaller(got *domain.Caller) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got, _ = CallerFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestInternalTokenRoundTrip(t *testing.T) {
	key := newKey(t)
	tok, err := NewInternalIssuer(key, "stockgate", "internal", time.Minute).Issue(domain.Actor{ID: "admin", Name: "Admin"})
	require.NoError(t, err)

	claims, err := NewBaseValidator(&key.PublicKey).VerifyToken("Bearer " + tok)
	require.NoError(t, err)
	assert.True(t, claims.Internal)
	assert.Equal(t, "admin", claims.UserID)
	assert.Contains(t, claims.Audience, "internal")
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	tok := userToken(t, newKey(t), domain.CustomClaims{UserID: "u1"})
	_, err := NewBaseValidator(&newKey(t).PublicKey).VerifyToken(tok)
	assert.Error(t, err)
}

func TestMiddlewareMergesRolePermissions(t *testing.T) {
	key := newKey(t)
	tok := userToken(t, key, domain.CustomClaims{
		UserID: "u1", Roles: []string{domain.RoleAdmin}, Permissions: []string{"product.update"},
	})
	mw := NewMiddleware(NewBaseValidator(&key.PublicKey), roleResolver{domain.RoleAdmin: {domain.PermissionApprovalReview}}, zap.NewNop())

	var got domain.Caller
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	mw(captureCaller(&got)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", got.Actor.ID)
	assert.True(t, got.Permissions.Has("product.update"))
	assert.True(t, got.Permissions.Has(domain.PermissionApprovalReview))
	assert.False(t, got.Internal)
}

func TestQueryTokenOnlyWhereAllowed(t *testing.T) {
	key := newKey(t)
	tok := userToken(t, key, domain.CustomClaims{UserID: "u1"})
	mw := NewMiddleware(NewBaseValidator(&key.PublicKey), nil, zap.NewNop())

	t.Run("allowed route", func(t *testing.T) {
		var got domain.Caller
		rec := httptest.NewRecorder()
		h := StripQueryToken(AllowQueryToken(mw(captureCaller(&got))))
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?access_token="+tok, nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u1", got.Actor.ID)
	})

	t.Run("plain route", func(t *testing.T) {
		var got domain.Caller
		rec := httptest.NewRecorder()
		StripQueryToken(mw(captureCaller(&got))).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/1?access_token="+tok, nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, got.Actor.ID)
	})

	t.Run("without strip", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mw(captureCaller(new(domain.Caller))).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?access_token="+tok, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestStripQueryTokenHidesTokenFromURL(t *testing.T) {
	var uri, rawQuery string
	h := StripQueryToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uri, rawQuery = r.RequestURI, r.URL.RawQuery
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws?since=5&access_token=secret.jwt", nil))

	assert.NotContains(t, uri, "secret")
	assert.NotContains(t, rawQuery, "secret")
	assert.Equal(t, "since=5", rawQuery)
	assert.Equal(t, "/ws?since=5", uri)
}

func TestRequireInternal(t *testing.T) {
	key := newKey(t)
	v := NewBaseValidator(&key.PublicKey)
	mw := RequireInternal("internal", v, zap.NewNop())

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{"internal token", must(NewInternalIssuer(key, "stockgate", "internal", time.Minute).Issue(domain.Actor{ID: "admin"})), http.StatusOK},
		{"wrong audience", must(NewInternalIssuer(key, "stockgate", "other", time.Minute).Issue(domain.Actor{ID: "admin"})), http.StatusForbidden},
		{"user token", userToken(t, key, domain.CustomClaims{UserID: "admin", Permissions: []string{"product.delete.direct"}}), http.StatusForbidden},
		{"garbage", "nope", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got domain.Caller
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/internal", nil)
			req.Header.Set("Authorization", "Bearer "+tc.token)
			mw(captureCaller(&got)).ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusOK {
				assert.True(t, got.Internal)
				assert.Equal(t, "admin", got.Actor.ID)
			}
		})
	}
}

func must(s string, err error) string {
	if err != nil {
		panic(err)
	}
	return s
}
