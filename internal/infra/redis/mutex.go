package redis

import (
	"context"
	"errors"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"

	"khm-membership/internal/domain"
)

// JobMutex serializes scheduled jobs across replicas.
type JobMutex struct {
	rs *redsync.Redsync
}

func NewJobMutex(c *Client) *JobMutex {
	return &JobMutex{rs: redsync.New(goredis.NewPool(c.cli))}
}

// Do runs fn while holding the named mutex. It returns domain.ErrLockNotAcquired
// if another replica holds it.
func (m *JobMutex) Do(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
	mu := m.rs.NewMutex("khm:job:"+name, redsync.WithExpiry(ttl), redsync.WithTries(1))
	if err := mu.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return domain.ErrLockNotAcquired
		}
		return err
	}
	defer func() { _, _ = mu.UnlockContext(context.WithoutCancel(ctx)) }()
	return fn(ctx)
}
