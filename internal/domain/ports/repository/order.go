package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"khm-membership/internal/domain/model"
)

// -----------------------------
// Orders
// -----------------------------

type OrderRepository interface {
	// Create inserts o and fills its ID and timestamps. Status defaults to
	// pending and gateway_environment to production.
	Create(ctx context.Context, tx Tx, o *model.Order) error
	// Update applies changes to an existing order; ErrNotFound if id is unknown.
	Update(ctx context.Context, tx Tx, id int64, changes model.OrderChanges) error

	FindByID(ctx context.Context, tx Tx, id int64) (*model.Order, error)
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Order, error)
	FindByPaymentTransactionID(ctx context.Context, tx Tx, txnID string) (*model.Order, error)
	// FindLastBySubscriptionID returns the most recent order for a gateway subscription.
	FindLastBySubscriptionID(ctx context.Context, tx Tx, subscriptionID string) (*model.Order, error)
	FindByUser(ctx context.Context, tx Tx, userID int64, f model.OrderFilter) ([]*model.Order, error)
	CodeExists(ctx context.Context, tx Tx, code string) (bool, error)

	GetWithRelations(ctx context.Context, tx Tx, id int64) (*model.OrderWithRelations, error)
	GetManyWithRelations(ctx context.Context, tx Tx, ids []int64) ([]*model.OrderWithRelations, error)
	Paginate(ctx context.Context, tx Tx, q model.OrderQuery) (*model.OrderPage, error)

	UpdateStatus(ctx context.Context, tx Tx, id int64, status model.OrderStatus, notes string) error
	UpdateNotes(ctx context.Context, tx Tx, id int64, notes string) error
	RecordRefund(ctx context.Context, tx Tx, id int64, amount decimal.Decimal, reason string, refundedAt time.Time) error
	// Delete removes the row. It is the only path that hard-deletes an order.
	Delete(ctx context.Context, tx Tx, id int64) error
}
