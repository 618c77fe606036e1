package repository

import (
	"context"
	"time"

	"khm-membership/internal/domain/model"
)

// -----------------------------
// Email log & queue
// -----------------------------

type EmailLogRepository interface {
	Create(ctx context.Context, tx Tx, l *model.EmailLog) (int64, error)
	UpdateStatus(ctx context.Context, tx Tx, id int64, status model.EmailStatus, errMsg string) error
	Stats(ctx context.Context, tx Tx) (model.EmailStats, error)
	DeleteOlderThan(ctx context.Context, tx Tx, cutoff time.Time) (int64, error)
}

type EmailQueueRepository interface {
	Enqueue(ctx context.Context, tx Tx, q *model.QueuedEmail) (int64, error)
	// FetchDue returns pending rows due at or before now, highest priority
	// first, then oldest schedule first.
	FetchDue(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.QueuedEmail, error)
	MarkProcessing(ctx context.Context, tx Tx, id int64, at time.Time) error
	// ReclaimStale puts rows stuck in processing since before the cutoff back
	// to pending.
	ReclaimStale(ctx context.Context, tx Tx, before time.Time) (int64, error)
	MarkSent(ctx context.Context, tx Tx, id int64, at time.Time) error
	// ScheduleRetry bumps retry_count and puts the row back to pending at nextRetry.
	ScheduleRetry(ctx context.Context, tx Tx, id int64, retryCount int, nextRetry time.Time, errMsg string) error
	MarkFailed(ctx context.Context, tx Tx, id int64, retryCount int, errMsg string) error
	CountPending(ctx context.Context, tx Tx) (int, error)
	DeleteOlderThan(ctx context.Context, tx Tx, cutoff time.Time) (int64, error)
}

// -----------------------------
// Settings
// -----------------------------

// SettingsRepository stores option groups as JSON documents.
type SettingsRepository interface {
	// Get decodes the group into dst; ErrNotFound when the group was never saved.
	Get(ctx context.Context, tx Tx, group string, dst any) error
	Put(ctx context.Context, tx Tx, group string, value any) error
}
