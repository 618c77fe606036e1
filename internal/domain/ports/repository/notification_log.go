package repository

import (
	"context"
)

// -----------------------------
// Notifications Log
// -----------------------------

type NotificationLogRepository interface {
	// Save records that a notification was sent for a membership row.
	Save(ctx context.Context, tx Tx, membershipID, userID int64, kind string) error
	// Exists checks if a notification of this kind has already been sent.
	Exists(ctx context.Context, tx Tx, membershipID int64, kind string) (bool, error)
}
