package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"khm-membership/internal/usecase"
)

// Pinger is satisfied by *pgxpool.Pool and the redis client.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterDeps struct {
	Webhooks usecase.WebhookUseCase
	// Checks are pinged by /health, keyed by dependency name.
	Checks  map[string]Pinger
	Timeout time.Duration
	// API is mounted under /api/v1 when set.
	API http.Handler
}

// NewRouter builds the public router: webhooks, health, metrics and the
// account/admin API.
func NewRouter(d RouterDeps, logger *zerolog.Logger) http.Handler {
	if d.Timeout <= 0 {
		d.Timeout = 15 * time.Second
	}
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(logger), Recover(logger), Timeout(d.Timeout))

	r.Post("/webhooks/stripe", stripeWebhookHandler(d.Webhooks, logger))
	r.Get("/health", healthHandler(d.Checks))
	r.Handle("/metrics", promhttp.Handler())
	if d.API != nil {
		r.Mount("/api/v1", d.API)
	}
	return r
}

func healthHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		out := map[string]string{}
		for name, p := range checks {
			if err := p.Ping(r.Context()); err != nil {
				out[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			out[name] = "ok"
		}
		writeJSON(w, status, map[string]any{"ok": status == http.StatusOK, "checks": out})
	}
}

type errorPayload struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    map[string]int `json:"data"`
}

func errorBody(code, msg string, status int) errorPayload {
	return errorPayload{Code: code, Message: msg, Data: map[string]int{"status": status}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
