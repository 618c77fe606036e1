package repository

import (
	"context"
	"time"

	"khm-membership/internal/domain/model"
)

// -----------------------------
// Memberships
// -----------------------------

// MembershipRepository is the only path through which membership state changes.
type MembershipRepository interface {
	// Assign creates or updates the (user, level) membership.
	Assign(ctx context.Context, tx Tx, userID, levelID int64, opts model.AssignOptions) (*model.Membership, error)
	Find(ctx context.Context, tx Tx, userID, levelID int64) (*model.Membership, error)
	FindActive(ctx context.Context, tx Tx, userID int64) ([]*model.Membership, error)
	FindByLevel(ctx context.Context, tx Tx, levelID int64, status model.MembershipStatus) ([]*model.Membership, error)
	// FindExpired lists active memberships whose end date is at or before now.
	FindExpired(ctx context.Context, tx Tx, now time.Time) ([]*model.Membership, error)
	// FindExpiring lists active memberships whose end date falls within [from, to].
	FindExpiring(ctx context.Context, tx Tx, from, to time.Time) ([]*model.Membership, error)
	HasAccess(ctx context.Context, tx Tx, userID, levelID int64) (bool, error)

	SetStatus(ctx context.Context, tx Tx, userID, levelID int64, status model.MembershipStatus, reason string) error
	MarkPastDue(ctx context.Context, tx Tx, userID, levelID int64, reason string) error
	// Cancel sets status cancelled and end date to now.
	Cancel(ctx context.Context, tx Tx, userID, levelID int64, reason string) error
	Expire(ctx context.Context, tx Tx, userID, levelID int64) error
	Pause(ctx context.Context, tx Tx, userID, levelID int64, reason string) error
	Resume(ctx context.Context, tx Tx, userID, levelID int64, reason string) error

	UpdateEndDate(ctx context.Context, tx Tx, userID, levelID int64, endDate *time.Time) error
	UpdateBillingProfile(ctx context.Context, tx Tx, userID, levelID int64, profile model.BillingProfile) error
}

// -----------------------------
// Levels
// -----------------------------

type LevelRepository interface {
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Level, error)
	FindByStripePlanID(ctx context.Context, tx Tx, planID string) (*model.Level, error)
	List(ctx context.Context, tx Tx) ([]*model.Level, error)
	Save(ctx context.Context, tx Tx, l *model.Level) error
}

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	FindByID(ctx context.Context, tx Tx, id int64) (*model.User, error)
	FindByEmail(ctx context.Context, tx Tx, email string) (*model.User, error)
	FindByLogin(ctx context.Context, tx Tx, login string) (*model.User, error)
	FindByStripeCustomerID(ctx context.Context, tx Tx, customerID string) (*model.User, error)
	Save(ctx context.Context, tx Tx, u *model.User) error
}
