package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"khm-membership/internal/domain/ports/repository"
	"khm-membership/internal/usecase"
)

// Limiter is a fixed-window counter (redis.RateLimiter).
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Deps struct {
	Auth           *AuthManager
	Users          repository.UserRepository
	Limiter        Limiter
	LoginLimit     int
	LoginWindow    time.Duration
	Orders         usecase.OrderUseCase
	Subscriptions  usecase.SubscriptionUseCase
	PaymentMethods usecase.PaymentMethodUseCase
	Email          usecase.EmailUseCase
}

// Server is the account and admin JSON API.
type Server struct {
	d    Deps
	auth *AuthManager
	log  *zerolog.Logger
}

func NewServer(d Deps, logger *zerolog.Logger) *Server {
	if d.LoginLimit <= 0 {
		d.LoginLimit = 10
	}
	if d.LoginWindow <= 0 {
		d.LoginWindow = time.Minute
	}
	l := logger.With().Str("component", "web_api").Logger()
	return &Server{d: d, auth: d.Auth, log: &l}
}

// Routes returns the handler mounted under /api/v1.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/account/subscriptions/{level}", func(r chi.Router) {
			r.Post("/cancel", s.handleCancel)
			r.Post("/reactivate", s.handleReactivate)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
			r.Post("/setup-intent", s.handleSetupIntent)
			r.Post("/payment-method", s.handlePaymentMethod)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)

			r.Get("/orders", s.handleListOrders)
			r.Get("/orders/{id}", s.handleGetOrder)
			r.Post("/orders/{id}/status", s.handleOrderStatus)
			r.Post("/orders/{id}/refund", s.handleRefund)
			r.Delete("/orders/{id}", s.handleDeleteOrder)

			r.Post("/email/test", s.handleEmailTest)
			r.Post("/email/queue/process", s.handleProcessQueue)
			r.Get("/email/stats", s.handleEmailStats)
			r.Post("/email/cleanup", s.handleEmailCleanup)
			r.Get("/email/settings", s.handleGetEmailSettings)
			r.Put("/email/settings", s.handlePutEmailSettings)
		})
	})
	return r
}
