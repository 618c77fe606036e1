package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v4/pgxpool"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

const userColumns = ` id, user_login, user_email, display_name, stripe_customer_id, role, password_hash, created_at`

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

// Save inserts a new user (ID zero) or updates the existing row.
func (r *PostgresUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if u == nil || u.Login == "" || u.Email == "" {
		return domain.ErrInvalidArgument
	}
	if u.Role == "" {
		u.Role = model.UserRoleMember
	}
	if u.ID == 0 {
		const q = `
INSERT INTO users (user_login, user_email, display_name, stripe_customer_id, role, password_hash)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`
		row, err := pickRow(ctx, r.pool, tx, q, u.Login, strings.ToLower(u.Email), u.DisplayName, u.StripeCustomerID, string(u.Role), u.PasswordHash)
		if err != nil {
			return err
		}
		if err := row.Scan(&u.ID, &u.CreatedAt); err != nil {
			return mapErr(err)
		}
		return nil
	}

	const q = `
UPDATE users SET
  user_login=$2, user_email=$3, display_name=$4, stripe_customer_id=$5, role=$6, password_hash=$7
WHERE id=$1`
	tag, err := execSQL(ctx, r.pool, tx, q, u.ID, u.Login, strings.ToLower(u.Email), u.DisplayName, u.StripeCustomerID, string(u.Role), u.PasswordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.User, error) {
	return r.findOne(ctx, tx, `id = $1`, id)
}

func (r *PostgresUserRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	if email == "" {
		return nil, domain.ErrInvalidArgument
	}
	return r.findOne(ctx, tx, `user_email = $1`, strings.ToLower(email))
}

func (r *PostgresUserRepo) FindByLogin(ctx context.Context, tx repository.Tx, login string) (*model.User, error) {
	if login == "" {
		return nil, domain.ErrInvalidArgument
	}
	return r.findOne(ctx, tx, `user_login = $1`, login)
}

func (r *PostgresUserRepo) FindByStripeCustomerID(ctx context.Context, tx repository.Tx, customerID string) (*model.User, error) {
	if customerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return r.findOne(ctx, tx, `stripe_customer_id = $1 ORDER BY id LIMIT 1`, customerID)
}

func (r *PostgresUserRepo) findOne(ctx context.Context, tx repository.Tx, where string, args ...any) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT`+userColumns+` FROM users WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := row.Scan(&u.ID, &u.Login, &u.Email, &u.DisplayName, &u.StripeCustomerID, &u.Role, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return &u, nil
}
