package sched

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/infra/metrics"
	"khm-membership/internal/usecase"
)

const (
	JobDaily   = "daily_tasks"
	JobCleanup = "email_cleanup"
)

// JobLock runs fn only if no other replica holds name (redis.JobMutex).
type JobLock interface {
	Do(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error
}

type DailyRunner interface {
	RunDaily(ctx context.Context) (usecase.TaskReport, error)
}

type Cleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (model.CleanupResult, error)
}

type CronConfig struct {
	DailySpec    string
	CleanupSpec  string
	CleanupAfter time.Duration
	// JobTimeout bounds a single run and doubles as the mutex expiry.
	JobTimeout time.Duration
}

// Cron runs the daily membership tasks and the email log cleanup.
type Cron struct {
	c       *cron.Cron
	cfg     CronConfig
	lock    JobLock
	daily   DailyRunner
	cleaner Cleaner
	log     *zerolog.Logger
}

func NewCron(cfg CronConfig, lock JobLock, daily DailyRunner, cleaner Cleaner, logger *zerolog.Logger) (*Cron, error) {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	l := logger.With().Str("component", "Cron").Logger()
	s := &Cron{c: cron.New(), cfg: cfg, lock: lock, daily: daily, cleaner: cleaner, log: &l}

	if _, err := s.c.AddFunc(cfg.DailySpec, func() { s.RunJob(context.Background(), JobDaily) }); err != nil {
		return nil, err
	}
	if _, err := s.c.AddFunc(cfg.CleanupSpec, func() { s.RunJob(context.Background(), JobCleanup) }); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Cron) Start() {
	s.log.Info().Str("daily", s.cfg.DailySpec).Str("cleanup", s.cfg.CleanupSpec).Msg("Starting cron")
	s.c.Start()
}

// Stop waits for running jobs to return.
func (s *Cron) Stop() {
	<-s.c.Stop().Done()
	s.log.Info().Msg("cron stopped")
}

// RunJob executes one named job under the cluster mutex. A job already held by
// another replica is skipped.
func (s *Cron) RunJob(parent context.Context, name string) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	err := s.lock.Do(ctx, name, s.cfg.JobTimeout, func(ctx context.Context) error {
		switch name {
		case JobDaily:
			rep, err := s.daily.RunDaily(ctx)
			s.log.Info().Int("expired", rep.Expired).Int("warned", rep.Warned).Msg("daily tasks finished")
			return err
		case JobCleanup:
			res, err := s.cleaner.Cleanup(ctx, s.cfg.CleanupAfter)
			metrics.IncJobRun(JobCleanup, resultLabel(err))
			s.log.Info().Int64("queue_rows", res.QueueRows).Int64("log_rows", res.LogRows).Msg("email cleanup finished")
			return err
		default:
			return domain.ErrInvalidArgument
		}
	})
	switch {
	case errors.Is(err, domain.ErrLockNotAcquired):
		s.log.Debug().Str("job", name).Msg("job held by another replica")
	case err != nil:
		s.log.Error().Err(err).Str("job", name).Msg("job failed")
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
