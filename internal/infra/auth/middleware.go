package auth

import (
	"context"
	"net/http"
	"slices"

	"github.com/xela07ax/stockgate/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator — проверка входящего токена.
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

// PermissionResolver добавляет права, выведенные из ролей (внешний справочник).
type PermissionResolver interface {
	PermissionsFor(ctx context.Context, userID string, roles []string) ([]string, error)
}

// Тип для ключа в контексте (избегаем коллизий)
type ctxKey string

const (
	callerKey     ctxKey = "caller"
	queryTokenKey ctxKey = "query_token"
)

// QueryTokenParam — параметр, в котором браузерный WebSocket передает токен.
const QueryTokenParam = "access_token"

func WithCaller(ctx context.Context, c domain.Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

func CallerFrom(ctx context.Context) (domain.Caller, bool) {
	c, ok := ctx.Value(callerKey).(domain.Caller)
	return c, ok
}

// NewMiddleware проверяет токен и кладет domain.Caller в контекст.
// resolver может быть nil, тогда права берутся только из токена.
func NewMiddleware(v TokenValidator, resolver PermissionResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			caller := domain.Caller{
				Actor:       domain.Actor{ID: claims.UserID, Name: claims.Name},
				Roles:       claims.Roles,
				Permissions: domain.NewPermissionSet(claims.Permissions...),
				Internal:    claims.Internal,
			}
			if resolver != nil && !claims.Internal {
				perms, err := resolver.PermissionsFor(r.Context(), claims.UserID, claims.Roles)
				if err != nil {
					logger.Error("permission lookup failed", zap.String("user_id", claims.UserID), zap.Error(err))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
					return
				}
				caller.Permissions.Add(perms...)
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// StripQueryToken вырезает токен из URL раньше логгера запросов. Сам токен
// уходит в контекст и принимается только маршрутами с AllowQueryToken.
func StripQueryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if !q.Has(QueryTokenParam) {
			next.ServeHTTP(w, r)
			return
		}
		token := q.Get(QueryTokenParam)
		q.Del(QueryTokenParam)

		u := *r.URL
		u.RawQuery = q.Encode()
		r = r.WithContext(context.WithValue(r.Context(), queryTokenKey, token))
		r.URL = &u
		r.RequestURI = u.RequestURI()
		next.ServeHTTP(w, r)
	})
}

// AllowQueryToken подставляет токен из URL в Authorization. Только для маршрутов,
// где клиент не может выставить заголовок (браузерный WebSocket).
func AllowQueryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if t, _ := r.Context().Value(queryTokenKey).(string); t != "" {
				r = r.Clone(r.Context())
				r.Header.Set("Authorization", t)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireInternal пропускает только служебный токен с нужной аудиторией.
// Обычный пользовательский токен получает 403 даже при полном наборе прав.
func RequireInternal(audience string, v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := v.VerifyToken(r.Header.Get("Authorization"))
			if err != nil {
				logger.Warn("internal auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !claims.Internal || !slices.Contains(claims.Audience, audience) {
				logger.Warn("non-internal token on internal route", zap.String("user_id", claims.UserID))
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			caller := domain.Caller{
				Actor:       domain.Actor{ID: claims.UserID, Name: claims.Name},
				Permissions: domain.NewPermissionSet(),
				Internal:    true,
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}
