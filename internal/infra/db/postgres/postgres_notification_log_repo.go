package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/ports/repository"
)

var _ repository.NotificationLogRepository = (*notificationLogRepo)(nil)

type notificationLogRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationLogRepo(pool *pgxpool.Pool) repository.NotificationLogRepository {
	return &notificationLogRepo{pool: pool}
}

// Save lets the UNIQUE (membership_id, kind) constraint absorb duplicates.
func (r *notificationLogRepo) Save(ctx context.Context, tx repository.Tx, membershipID, userID int64, kind string) error {
	const q = `
INSERT INTO membership_notifications (membership_id, user_id, kind)
VALUES ($1, $2, $3)
ON CONFLICT (membership_id, kind) DO NOTHING`
	_, err := execSQL(ctx, r.pool, tx, q, membershipID, userID, kind)
	return err
}

func (r *notificationLogRepo) Exists(ctx context.Context, tx repository.Tx, membershipID int64, kind string) (bool, error) {
	const q = `
SELECT EXISTS(
    SELECT 1 FROM membership_notifications
    WHERE membership_id = $1 AND kind = $2
)`
	var exists bool
	row, err := pickRow(ctx, r.pool, tx, q, membershipID, kind)
	if err != nil {
		return false, err
	}

	if err := row.Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}
