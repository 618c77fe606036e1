package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v4/pgxpool"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/ports/repository"
)

var _ repository.SettingsRepository = (*settingsRepo)(nil)

type settingsRepo struct {
	pool *pgxpool.Pool
}

func NewSettingsRepo(pool *pgxpool.Pool) repository.SettingsRepository {
	return &settingsRepo{pool: pool}
}

func (r *settingsRepo) Get(ctx context.Context, tx repository.Tx, group string, dst any) error {
	if group == "" || dst == nil {
		return domain.ErrInvalidArgument
	}
	row, err := pickRow(ctx, r.pool, tx, `SELECT value FROM settings WHERE name = $1`, group)
	if err != nil {
		return err
	}
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		return mapScanErr(err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.Join(domain.ErrReadDatabaseRow, err)
	}
	return nil
}

func (r *settingsRepo) Put(ctx context.Context, tx repository.Tx, group string, value any) error {
	if group == "" {
		return domain.ErrInvalidArgument
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Join(domain.ErrInvalidArgument, err)
	}
	const q = `
INSERT INTO settings (name, value, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	_, err = execSQL(ctx, r.pool, tx, q, group, raw)
	return err
}
