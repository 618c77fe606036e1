package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/repository"
)

var _ repository.LevelRepository = (*levelRepo)(nil)

const levelColumns = ` id, name, description, billing_amount, cycle_number, cycle_period, stripe_plan_id, created_at`

type levelRepo struct {
	pool *pgxpool.Pool
}

func NewLevelRepo(pool *pgxpool.Pool) repository.LevelRepository {
	return &levelRepo{pool: pool}
}

func (r *levelRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Level, error) {
	return r.findOne(ctx, tx, `SELECT`+levelColumns+` FROM membership_levels WHERE id = $1`, id)
}

func (r *levelRepo) FindByStripePlanID(ctx context.Context, tx repository.Tx, planID string) (*model.Level, error) {
	if planID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return r.findOne(ctx, tx, `SELECT`+levelColumns+` FROM membership_levels WHERE stripe_plan_id = $1 ORDER BY id LIMIT 1`, planID)
}

func (r *levelRepo) findOne(ctx context.Context, tx repository.Tx, q string, args ...any) (*model.Level, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	var l model.Level
	if err := row.Scan(&l.ID, &l.Name, &l.Description, &l.BillingAmount, &l.CycleNumber, &l.CyclePeriod, &l.StripePlanID, &l.CreatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return &l, nil
}

func (r *levelRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Level, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT`+levelColumns+` FROM membership_levels ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Level
	for rows.Next() {
		var l model.Level
		if err := rows.Scan(&l.ID, &l.Name, &l.Description, &l.BillingAmount, &l.CycleNumber, &l.CyclePeriod, &l.StripePlanID, &l.CreatedAt); err != nil {
			return nil, mapScanErr(err)
		}
		out = append(out, &l)
	}
	return out, mapErr(rows.Err())
}

// Save inserts when l.ID is zero, otherwise updates in place.
func (r *levelRepo) Save(ctx context.Context, tx repository.Tx, l *model.Level) error {
	if l == nil || l.Name == "" {
		return domain.ErrInvalidArgument
	}
	if l.ID == 0 {
		const q = `
INSERT INTO membership_levels (name, description, billing_amount, cycle_number, cycle_period, stripe_plan_id)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`
		row, err := pickRow(ctx, r.pool, tx, q, l.Name, l.Description, l.BillingAmount, l.CycleNumber, l.CyclePeriod, l.StripePlanID)
		if err != nil {
			return err
		}
		if err := row.Scan(&l.ID, &l.CreatedAt); err != nil {
			return mapErr(err)
		}
		return nil
	}

	const q = `
UPDATE membership_levels
   SET name=$2, description=$3, billing_amount=$4, cycle_number=$5, cycle_period=$6, stripe_plan_id=$7
 WHERE id=$1`
	tag, err := execSQL(ctx, r.pool, tx, q, l.ID, l.Name, l.Description, l.BillingAmount, l.CycleNumber, l.CyclePeriod, l.StripePlanID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
