package worker

import (
	"context"

	"github.com/rs/zerolog"

	"khm-membership/internal/usecase"
)

var _ usecase.BillingNotifier = (*AsyncNotifier)(nil)

// AsyncNotifier hands billing notices to the pool so the webhook response does
// not wait on template rendering and mail delivery.
type AsyncNotifier struct {
	pool  *Pool
	inner usecase.BillingNotifier
	log   *zerolog.Logger
}

func NewAsyncNotifier(pool *Pool, inner usecase.BillingNotifier, logger *zerolog.Logger) *AsyncNotifier {
	l := logger.With().Str("component", "async_notifier").Logger()
	return &AsyncNotifier{pool: pool, inner: inner, log: &l}
}

// Notify never blocks on delivery. When the pool is saturated the notice is
// delivered inline instead of being dropped.
func (a *AsyncNotifier) Notify(ctx context.Context, n usecase.BillingNotice) error {
	detached := context.WithoutCancel(ctx)
	err := a.pool.Submit(func(context.Context) error {
		return a.inner.Notify(detached, n)
	})
	if err == nil {
		return nil
	}
	a.log.Warn().Err(err).Str("kind", string(n.Kind)).Int64("user_id", n.UserID).Msg("pool unavailable, notifying inline")
	return a.inner.Notify(detached, n)
}
