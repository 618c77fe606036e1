package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/repository"
)

var _ repository.MembershipRepository = (*membershipRepo)(nil)

const membershipColumns = `
  id, user_id, membership_id, status, status_reason,
  initial_payment, billing_amount, cycle_number, cycle_period, billing_limit, trial_amount, trial_limit,
  startdate, enddate, modified`

type membershipRepo struct {
	pool *pgxpool.Pool
}

func NewMembershipRepo(pool *pgxpool.Pool) repository.MembershipRepository {
	return &membershipRepo{pool: pool}
}

// Assign upserts the (user, level) row. Unset options keep the stored values;
// a new row starts active from now with no end date.
func (r *membershipRepo) Assign(ctx context.Context, tx repository.Tx, userID, levelID int64, opts model.AssignOptions) (*model.Membership, error) {
	if userID <= 0 || levelID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	status := opts.Status
	if status == "" {
		status = model.MembershipStatusActive
	}
	const q = `
INSERT INTO memberships (
  user_id, membership_id, status, status_reason, startdate, enddate,
  initial_payment, billing_amount, cycle_number, cycle_period, modified
) VALUES (
  $1, $2, $3, '', COALESCE($4::timestamptz, NOW()), $5::timestamptz,
  COALESCE($6::numeric, 0), COALESCE($7::numeric, 0), COALESCE($8::int, 0), COALESCE($9::text, ''), NOW()
)
ON CONFLICT (user_id, membership_id) DO UPDATE SET
  status          = EXCLUDED.status,
  status_reason   = '',
  startdate       = COALESCE($4, memberships.startdate),
  enddate         = CASE WHEN $10::boolean THEN EXCLUDED.enddate ELSE memberships.enddate END,
  initial_payment = COALESCE($6, memberships.initial_payment),
  billing_amount  = COALESCE($7, memberships.billing_amount),
  cycle_number    = COALESCE($8, memberships.cycle_number),
  cycle_period    = COALESCE($9, memberships.cycle_period),
  modified        = NOW()
RETURNING` + membershipColumns

	row, err := pickRow(ctx, r.pool, tx, q,
		userID, levelID, string(status), opts.StartDate, opts.EndDate,
		opts.InitialPayment, opts.BillingAmount, opts.CycleNumber, opts.CyclePeriod,
		opts.EndDate != nil,
	)
	if err != nil {
		return nil, err
	}
	var m model.Membership
	if err := row.Scan(membershipScanTargets(&m)...); err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func (r *membershipRepo) Find(ctx context.Context, tx repository.Tx, userID, levelID int64) (*model.Membership, error) {
	q := `SELECT` + membershipColumns + ` FROM memberships WHERE user_id = $1 AND membership_id = $2` + lockClause(tx)
	row, err := pickRow(ctx, r.pool, tx, q, userID, levelID)
	if err != nil {
		return nil, err
	}
	var m model.Membership
	if err := row.Scan(membershipScanTargets(&m)...); err != nil {
		return nil, mapScanErr(err)
	}
	return &m, nil
}

func (r *membershipRepo) FindActive(ctx context.Context, tx repository.Tx, userID int64) ([]*model.Membership, error) {
	return r.list(ctx, tx, `user_id = $1 AND status = 'active' ORDER BY id`, userID)
}

func (r *membershipRepo) FindByLevel(ctx context.Context, tx repository.Tx, levelID int64, status model.MembershipStatus) ([]*model.Membership, error) {
	if status == "" {
		return r.list(ctx, tx, `membership_id = $1 ORDER BY id`, levelID)
	}
	return r.list(ctx, tx, `membership_id = $1 AND status = $2 ORDER BY id`, levelID, string(status))
}

func (r *membershipRepo) FindExpired(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.Membership, error) {
	return r.list(ctx, tx, `status = 'active' AND enddate IS NOT NULL AND enddate <= $1 ORDER BY enddate`, now)
}

func (r *membershipRepo) FindExpiring(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.Membership, error) {
	return r.list(ctx, tx, `status = 'active' AND enddate IS NOT NULL AND enddate BETWEEN $1 AND $2 ORDER BY enddate`, from, to)
}

func (r *membershipRepo) list(ctx context.Context, tx repository.Tx, where string, args ...any) ([]*model.Membership, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT`+membershipColumns+` FROM memberships WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Membership
	for rows.Next() {
		var m model.Membership
		if err := rows.Scan(membershipScanTargets(&m)...); err != nil {
			return nil, mapScanErr(err)
		}
		out = append(out, &m)
	}
	return out, mapErr(rows.Err())
}

func (r *membershipRepo) HasAccess(ctx context.Context, tx repository.Tx, userID, levelID int64) (bool, error) {
	const q = `
SELECT EXISTS(
  SELECT 1 FROM memberships
   WHERE user_id = $1 AND membership_id = $2
     AND status = 'active'
     AND (enddate IS NULL OR enddate > NOW())
)`
	row, err := pickRow(ctx, r.pool, tx, q, userID, levelID)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return ok, nil
}

func (r *membershipRepo) SetStatus(ctx context.Context, tx repository.Tx, userID, levelID int64, status model.MembershipStatus, reason string) error {
	return r.exec(ctx, tx,
		`UPDATE memberships SET status = $3, status_reason = $4, modified = NOW() WHERE user_id = $1 AND membership_id = $2`,
		userID, levelID, string(status), reason)
}

func (r *membershipRepo) MarkPastDue(ctx context.Context, tx repository.Tx, userID, levelID int64, reason string) error {
	return r.SetStatus(ctx, tx, userID, levelID, model.MembershipStatusPastDue, reason)
}

func (r *membershipRepo) Cancel(ctx context.Context, tx repository.Tx, userID, levelID int64, reason string) error {
	return r.exec(ctx, tx,
		`UPDATE memberships SET status = 'cancelled', status_reason = $3, enddate = NOW(), modified = NOW() WHERE user_id = $1 AND membership_id = $2`,
		userID, levelID, reason)
}

func (r *membershipRepo) Expire(ctx context.Context, tx repository.Tx, userID, levelID int64) error {
	return r.exec(ctx, tx,
		`UPDATE memberships SET status = 'expired', status_reason = 'Membership expired', modified = NOW() WHERE user_id = $1 AND membership_id = $2`,
		userID, levelID)
}

func (r *membershipRepo) Pause(ctx context.Context, tx repository.Tx, userID, levelID int64, reason string) error {
	return r.SetStatus(ctx, tx, userID, levelID, model.MembershipStatusPaused, reason)
}

func (r *membershipRepo) Resume(ctx context.Context, tx repository.Tx, userID, levelID int64, reason string) error {
	return r.SetStatus(ctx, tx, userID, levelID, model.MembershipStatusActive, reason)
}

func (r *membershipRepo) UpdateEndDate(ctx context.Context, tx repository.Tx, userID, levelID int64, endDate *time.Time) error {
	return r.exec(ctx, tx,
		`UPDATE memberships SET enddate = $3, modified = NOW() WHERE user_id = $1 AND membership_id = $2`,
		userID, levelID, endDate)
}

func (r *membershipRepo) UpdateBillingProfile(ctx context.Context, tx repository.Tx, userID, levelID int64, p model.BillingProfile) error {
	if p.IsEmpty() {
		return nil
	}
	args := []any{userID, levelID}
	var sets []string
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.BillingAmount != nil {
		add("billing_amount", *p.BillingAmount)
	}
	if p.CycleNumber != nil {
		add("cycle_number", *p.CycleNumber)
	}
	if p.CyclePeriod != nil {
		add("cycle_period", *p.CyclePeriod)
	}
	if p.BillingLimit != nil {
		add("billing_limit", *p.BillingLimit)
	}
	if p.TrialAmount != nil {
		add("trial_amount", *p.TrialAmount)
	}
	if p.TrialLimit != nil {
		add("trial_limit", *p.TrialLimit)
	}
	if p.InitialPayment != nil {
		add("initial_payment", *p.InitialPayment)
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	sets = append(sets, "modified = NOW()")
	q := `UPDATE memberships SET ` + strings.Join(sets, ", ") + ` WHERE user_id = $1 AND membership_id = $2`
	return r.exec(ctx, tx, q, args...)
}

// exec runs a single-row update; ErrNotFound when no membership matched.
func (r *membershipRepo) exec(ctx context.Context, tx repository.Tx, q string, args ...any) error {
	tag, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func membershipScanTargets(m *model.Membership) []any {
	return []any{
		&m.ID, &m.UserID, &m.MembershipID, &m.Status, &m.StatusReason,
		&m.InitialPayment, &m.BillingAmount, &m.CycleNumber, &m.CyclePeriod, &m.BillingLimit, &m.TrialAmount, &m.TrialLimit,
		&m.StartDate, &m.EndDate, &m.Modified,
	}
}
