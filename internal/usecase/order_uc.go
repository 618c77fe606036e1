package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/repository"
	"khm-membership/internal/infra/logging"
)

// Compile-time check
var _ OrderUseCase = (*orderUC)(nil)

const (
	orderCodeLength   = 10
	orderCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	orderCodeAttempts = 5
)

// OrderUseCase wraps the order repository with code generation, tax and the admin operations.
type OrderUseCase interface {
	GenerateCode(ctx context.Context) (string, error)
	CalculateTax(o *model.Order) decimal.Decimal
	// Create fills code, tax and total when unset and inserts the order.
	Create(ctx context.Context, tx repository.Tx, o *model.Order) error

	Get(ctx context.Context, id int64) (*model.OrderWithRelations, error)
	List(ctx context.Context, q model.OrderQuery) (*model.OrderPage, error)
	UpdateStatus(ctx context.Context, id int64, status model.OrderStatus, notes string) error
	Refund(ctx context.Context, id int64, amount decimal.Decimal, reason string) error
	Delete(ctx context.Context, id int64) error
}

// TaxSettings is the single-state sales tax rule.
type TaxSettings struct {
	State string
	Rate  decimal.Decimal
}

type orderUC struct {
	orders repository.OrderRepository
	tax    TaxSettings
	now    func() time.Time
	log    *zerolog.Logger
}

func NewOrderUseCase(orders repository.OrderRepository, tax TaxSettings, logger *zerolog.Logger) *orderUC {
	return &orderUC{orders: orders, tax: tax, now: time.Now, log: logger}
}

// GenerateCode returns an unused 10-character uppercase alphanumeric code.
func (u *orderUC) GenerateCode(ctx context.Context) (string, error) {
	for i := 0; i < orderCodeAttempts; i++ {
		code, err := randomCode(orderCodeLength)
		if err != nil {
			return "", err
		}
		exists, err := u.orders.CodeExists(ctx, repository.NoTX, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("order code: %w", domain.ErrAlreadyExists)
}

func randomCode(n int) (string, error) {
	max := big.NewInt(int64(len(orderCodeAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("order code: %w", err)
		}
		b[i] = orderCodeAlphabet[idx.Int64()]
	}
	return string(b), nil
}

// CalculateTax is zero unless the configured state matches the billing state
// exactly; otherwise round(subtotal * rate, 2).
func (u *orderUC) CalculateTax(o *model.Order) decimal.Decimal {
	if o == nil || u.tax.State == "" || o.BillingState != u.tax.State {
		return decimal.Zero
	}
	return o.Subtotal.Mul(u.tax.Rate).Round(2)
}

func (u *orderUC) Create(ctx context.Context, tx repository.Tx, o *model.Order) error {
	defer logging.TraceDuration(u.log, "OrderUC.Create")()

	if o == nil {
		return domain.ErrInvalidArgument
	}
	if o.Tax.IsZero() {
		o.Tax = u.CalculateTax(o)
	}
	if o.Total.IsZero() {
		o.Total = o.Subtotal.Add(o.Tax)
	}

	generated := o.Code == ""
	for attempt := 1; ; attempt++ {
		if generated {
			code, err := u.GenerateCode(ctx)
			if err != nil {
				return err
			}
			o.Code = code
		}
		err := u.orders.Create(ctx, tx, o)
		if err == nil {
			return nil
		}
		// A concurrent insert can still take the code between check and insert.
		if !generated || !errors.Is(err, domain.ErrAlreadyExists) || attempt >= orderCodeAttempts {
			return err
		}
		u.log.Warn().Str("code", o.Code).Int("attempt", attempt).Msg("order code collision, retrying")
	}
}

func (u *orderUC) Get(ctx context.Context, id int64) (*model.OrderWithRelations, error) {
	return u.orders.GetWithRelations(ctx, repository.NoTX, id)
}

func (u *orderUC) List(ctx context.Context, q model.OrderQuery) (*model.OrderPage, error) {
	return u.orders.Paginate(ctx, repository.NoTX, q)
}

func (u *orderUC) UpdateStatus(ctx context.Context, id int64, status model.OrderStatus, notes string) error {
	if !validOrderStatus(status) {
		return domain.ErrInvalidArgument
	}
	return u.orders.UpdateStatus(ctx, repository.NoTX, id, status, notes)
}

// Refund records a manual refund; amount must be positive and not exceed the order total.
func (u *orderUC) Refund(ctx context.Context, id int64, amount decimal.Decimal, reason string) error {
	o, err := u.orders.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return err
	}
	if !amount.IsPositive() || amount.GreaterThan(o.Total) {
		return domain.ErrInvalidArgument
	}
	return u.orders.RecordRefund(ctx, repository.NoTX, id, amount.Round(2), reason, u.now())
}

func (u *orderUC) Delete(ctx context.Context, id int64) error {
	u.log.Info().Int64("order_id", id).Msg("deleting order")
	return u.orders.Delete(ctx, repository.NoTX, id)
}

func validOrderStatus(s model.OrderStatus) bool {
	switch s {
	case model.OrderStatusPending, model.OrderStatusSuccess, model.OrderStatusFailed,
		model.OrderStatusRefunded, model.OrderStatusCancelled:
		return true
	}
	return false
}
