package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/stockgate/internal/console/handler"
	"github.com/xela07ax/stockgate/internal/executor"
	"github.com/xela07ax/stockgate/internal/infra"
	"github.com/xela07ax/stockgate/internal/infra/auth"
)

// Handlers — обработчики бизнес-доменов.
type Handlers struct {
	Products      *handler.ProductHandler      // /v1/products
	Approvals     *handler.ApprovalHandler     // /v1/approvals
	Notifications *handler.NotificationHandler // /v1/notifications
	Execute       *handler.ExecuteHandler      // служебный маршрут исполнителя
}

type Deps struct {
	Validator auth.TokenValidator
	// Resolver добавляет права из ролей, может быть nil
	Resolver         auth.PermissionResolver
	InternalAudience string
	Gatherer         prometheus.Gatherer
}

type Server struct {
	router *chi.Mux
	logger *zap.Logger
	deps   Deps
	h      Handlers
}

// New собирает роутер сервиса инвентаря со всеми зависимостями.
func New(deps Deps, h Handlers, logger *zap.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		logger: logger.Named("http"),
		deps:   deps,
		h:      h,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(infra.TracingMiddleware)
	r.Use(auth.StripQueryToken) // токен из URL не должен попасть в лог
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	// --- 3. СЛУЖЕБНЫЙ МАРШРУТ (только токен исполнителя) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireInternal(s.deps.InternalAudience, s.deps.Validator, s.logger))
		r.Post(executor.ExecutePath, s.h.Execute.Execute)
	})

	// --- 4. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (RS256 токен пользователя) ---
	authn := auth.NewMiddleware(s.deps.Validator, s.deps.Resolver, s.logger)

	// WebSocket из браузера: токен только в query
	r.With(auth.AllowQueryToken, authn).Get("/v1/notifications/ws", s.h.Notifications.Stream)

	r.Group(func(r chi.Router) {
		r.Use(authn)

		r.Route("/v1/products", func(r chi.Router) {
			r.Post("/", s.h.Products.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.h.Products.Get)
				r.Put("/", s.h.Products.Update)
				r.Delete("/", s.h.Products.Delete)
				r.Post("/transfer", s.h.Products.Transfer)
			})
		})

		// Human-in-the-loop
		r.Route("/v1/approvals", func(r chi.Router) {
			r.Get("/", s.h.Approvals.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.h.Approvals.Get)
				r.Delete("/", s.h.Approvals.Cancel)
				r.Post("/approve", s.h.Approvals.Approve)
				r.Post("/reject", s.h.Approvals.Reject)
			})
		})

		r.Get("/v1/notifications", s.h.Notifications.List)
		r.Get("/v1/notifications/unread-count", s.h.Notifications.UnreadCount)
		r.Post("/v1/notifications/read-all", s.h.Notifications.MarkAllRead)
		r.Post("/v1/notifications/{id}/read", s.h.Notifications.MarkRead)
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
