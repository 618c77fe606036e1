package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v4/pgxpool"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/ports/repository"
)

var _ repository.IdempotencyStore = (*idempotencyRepo)(nil)

type idempotencyRepo struct {
	pool *pgxpool.Pool
}

func NewIdempotencyRepo(pool *pgxpool.Pool) repository.IdempotencyStore {
	return &idempotencyRepo{pool: pool}
}

func (r *idempotencyRepo) HasProcessed(ctx context.Context, tx repository.Tx, eventID string) (bool, error) {
	if eventID == "" {
		return false, domain.ErrInvalidArgument
	}
	row, err := pickRow(ctx, r.pool, tx, `SELECT EXISTS(SELECT 1 FROM webhook_events WHERE event_id = $1)`, eventID)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}

// MarkProcessed relies on the primary key; a second insert is a silent no-op.
func (r *idempotencyRepo) MarkProcessed(ctx context.Context, tx repository.Tx, eventID, gateway string, metadata map[string]any) error {
	if eventID == "" || gateway == "" {
		return domain.ErrInvalidArgument
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return errors.Join(domain.ErrInvalidArgument, err)
	}
	const q = `
INSERT INTO webhook_events (event_id, gateway, metadata, processed_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (event_id) DO NOTHING`
	_, err = execSQL(ctx, r.pool, tx, q, eventID, gateway, meta)
	return err
}
