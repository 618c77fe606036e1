package web

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/repository"
	"khm-membership/internal/infra/logging"
	"khm-membership/internal/infra/redis"
	"khm-membership/internal/infra/security"
)

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.d.Limiter != nil {
		allowed, err := s.d.Limiter.Allow(ctx, redis.LoginKey(clientIP(r)), s.d.LoginLimit, s.d.LoginWindow)
		if err != nil {
			// Fail open: a Redis outage should not lock everyone out.
			logging.With(ctx, s.log).Warn().Err(err).Msg("login rate limiter unavailable")
		} else if !allowed {
			fail(w, http.StatusTooManyRequests, "Too many login attempts. Please try again later.")
			return
		}
	}

	var req loginRequest
	if err := decodeBody(r, &req); err != nil || req.Login == "" || req.Password == "" {
		fail(w, http.StatusBadRequest, "Login and password are required.")
		return
	}

	u, err := s.findLoginUser(r, req.Login)
	if err == nil {
		err = security.CheckPassword(u.PasswordHash, req.Password)
	}
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, security.ErrPasswordMismatch) {
			logging.With(ctx, s.log).Error().Err(err).Msg("login failed")
		}
		fail(w, http.StatusUnauthorized, "Invalid login or password.")
		return
	}

	token, exp, err := s.auth.Mint(u)
	if err != nil {
		fail(w, http.StatusInternalServerError, "Unable to issue token.")
		return
	}
	ok(w, map[string]any{"token": token, "expires_at": exp.UTC().Format(time.RFC3339), "role": u.Role})
}

// findLoginUser accepts either the login name or the email address.
func (s *Server) findLoginUser(r *http.Request, login string) (*model.User, error) {
	if strings.Contains(login, "@") {
		return s.d.Users.FindByEmail(r.Context(), repository.NoTX, login)
	}
	return s.d.Users.FindByLogin(r.Context(), repository.NoTX, login)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// target resolves the acting user and level for an account route. Admins may
// act on another member through ?user_id=.
func (s *Server) target(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	claims := claimsFrom(r.Context())
	levelID, err := strconv.ParseInt(chi.URLParam(r, "level"), 10, 64)
	if err != nil || levelID <= 0 {
		fail(w, http.StatusBadRequest, "Invalid membership level.")
		return 0, 0, false
	}
	userID := claims.UserID()
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			fail(w, http.StatusBadRequest, "Invalid user.")
			return 0, 0, false
		}
		if id != userID && !claims.IsAdmin() {
			fail(w, http.StatusForbidden, "You do not have permission to do that.")
			return 0, 0, false
		}
		userID = id
	}
	return userID, levelID, true
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	uid, lid, good := s.target(w, r)
	if !good {
		return
	}
	atPeriodEnd, _ := strconv.ParseBool(r.URL.Query().Get("at_period_end"))
	msg, err := s.d.Subscriptions.Cancel(r.Context(), uid, lid, atPeriodEnd)
	s.reply(w, r, msg, err, "Unable to cancel subscription.")
}

func (s *Server) handleReactivate(w http.ResponseWriter, r *http.Request) {
	uid, lid, good := s.target(w, r)
	if !good {
		return
	}
	msg, err := s.d.Subscriptions.Reactivate(r.Context(), uid, lid)
	s.reply(w, r, msg, err, "Unable to reactivate subscription.")
}

type pauseRequest struct {
	ResumeAt *time.Time `json:"resume_at"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	uid, lid, good := s.target(w, r)
	if !good {
		return
	}
	var req pauseRequest
	if err := decodeBody(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	msg, err := s.d.Subscriptions.Pause(r.Context(), uid, lid, req.ResumeAt)
	s.reply(w, r, msg, err, "Unable to pause subscription.")
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	uid, lid, good := s.target(w, r)
	if !good {
		return
	}
	msg, err := s.d.Subscriptions.Resume(r.Context(), uid, lid)
	s.reply(w, r, msg, err, "Unable to resume subscription.")
}

func (s *Server) handleSetupIntent(w http.ResponseWriter, r *http.Request) {
	uid, lid, good := s.target(w, r)
	if !good {
		return
	}
	res, err := s.d.PaymentMethods.CreateSetupIntent(r.Context(), uid, lid)
	if err != nil {
		s.logFailure(r, err)
		failErr(w, err, "Failed to create Setup Intent.")
		return
	}
	ok(w, map[string]any{"client_secret": res.ClientSecret, "publishable_key": res.PublishableKey})
}

type paymentMethodRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
}

func (s *Server) handlePaymentMethod(w http.ResponseWriter, r *http.Request) {
	uid, lid, good := s.target(w, r)
	if !good {
		return
	}
	var req paymentMethodRequest
	if err := decodeBody(r, &req); err != nil || req.PaymentMethodID == "" {
		fail(w, http.StatusBadRequest, "Missing payment method.")
		return
	}
	msg, err := s.d.PaymentMethods.ApplyPaymentMethod(r.Context(), uid, lid, req.PaymentMethodID)
	s.reply(w, r, msg, err, "Failed to update payment method.")
}

func (s *Server) reply(w http.ResponseWriter, r *http.Request, msg string, err error, fallback string) {
	if err != nil {
		s.logFailure(r, err)
		failErr(w, err, fallback)
		return
	}
	ok(w, map[string]any{"message": msg})
}

func (s *Server) logFailure(r *http.Request, err error) {
	if statusFor(err) >= http.StatusInternalServerError {
		logging.With(r.Context(), s.log).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
}
