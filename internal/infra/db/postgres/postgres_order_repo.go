package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/repository"
)

var _ repository.OrderRepository = (*orderRepo)(nil)

const orderColumns = `
  o.id, o.code, o.user_id, o.membership_id,
  o.billing_name, o.billing_street, o.billing_city, o.billing_state, o.billing_zip, o.billing_country, o.billing_phone,
  o.subtotal, o.tax, o.total,
  o.payment_type, o.cardtype, o.accountnumber, o.expirationmonth, o.expirationyear,
  o.status, o.gateway, o.gateway_environment, o.payment_transaction_id, o.subscription_transaction_id,
  o.failure_code, o.failure_message, o.failure_at,
  o.refund_amount, o.refund_reason, o.refunded_at,
  o.discount_code, o.discount_amount, o.trial_days, o.trial_amount,
  o.recurring_discount_type, o.recurring_discount_amount, o.first_payment_only,
  o.notes, o.created_at, o.updated_at`

const orderRelationColumns = orderColumns + `,
  COALESCE(u.user_login, ''), COALESCE(u.user_email, ''), COALESCE(u.display_name, ''), COALESCE(l.name, '')`

const orderRelationJoins = `
  FROM orders o
  LEFT JOIN users u ON u.id = o.user_id
  LEFT JOIN membership_levels l ON l.id = o.membership_id`

type orderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) repository.OrderRepository {
	return &orderRepo{pool: pool}
}

func (r *orderRepo) Create(ctx context.Context, tx repository.Tx, o *model.Order) error {
	if o == nil || o.Code == "" {
		return domain.ErrInvalidArgument
	}
	if o.Status == "" {
		o.Status = model.OrderStatusPending
	}
	if o.GatewayEnvironment == "" {
		o.GatewayEnvironment = model.GatewayEnvProduction
	}
	const q = `
INSERT INTO orders (
  code, user_id, membership_id,
  billing_name, billing_street, billing_city, billing_state, billing_zip, billing_country, billing_phone,
  subtotal, tax, total,
  payment_type, cardtype, accountnumber, expirationmonth, expirationyear,
  status, gateway, gateway_environment, payment_transaction_id, subscription_transaction_id,
  failure_code, failure_message, failure_at,
  refund_amount, refund_reason, refunded_at,
  discount_code, discount_amount, trial_days, trial_amount,
  recurring_discount_type, recurring_discount_amount, first_payment_only, notes
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
  $21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,$35,$36,$37
) RETURNING id, created_at, updated_at`

	row, err := pickRow(ctx, r.pool, tx, q,
		o.Code, o.UserID, o.MembershipID,
		o.BillingName, o.BillingStreet, o.BillingCity, o.BillingState, o.BillingZip, o.BillingCountry, o.BillingPhone,
		o.Subtotal, o.Tax, o.Total,
		o.PaymentType, o.CardType, o.AccountNumber, o.ExpirationMonth, o.ExpirationYear,
		string(o.Status), o.Gateway, o.GatewayEnvironment, o.PaymentTransactionID, o.SubscriptionTransactionID,
		o.FailureCode, o.FailureMessage, o.FailureAt,
		o.RefundAmount, o.RefundReason, o.RefundedAt,
		o.DiscountCode, o.DiscountAmount, o.TrialDays, o.TrialAmount,
		o.RecurringDiscountType, o.RecurringDiscountAmount, o.FirstPaymentOnly, o.Notes,
	)
	if err != nil {
		return err
	}
	if err := row.Scan(&o.ID, &o.Timestamp, &o.UpdatedAt); err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *orderRepo) Update(ctx context.Context, tx repository.Tx, id int64, c model.OrderChanges) error {
	if id <= 0 {
		return domain.ErrInvalidArgument
	}
	sets, args := orderAssignments(c)
	if len(sets) == 0 {
		_, err := r.FindByID(ctx, tx, id)
		return err
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE orders SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	tag, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// orderAssignments turns the non-nil fields of c into "col = $n" fragments.
func orderAssignments(c model.OrderChanges) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if c.Code != nil {
		add("code", *c.Code)
	}
	if c.UserID != nil {
		add("user_id", *c.UserID)
	}
	if c.MembershipID != nil {
		add("membership_id", *c.MembershipID)
	}
	if c.BillingState != nil {
		add("billing_state", *c.BillingState)
	}
	if c.Subtotal != nil {
		add("subtotal", *c.Subtotal)
	}
	if c.Tax != nil {
		add("tax", *c.Tax)
	}
	if c.Total != nil {
		add("total", *c.Total)
	}
	if c.CardType != nil {
		add("cardtype", *c.CardType)
	}
	if c.AccountNumber != nil {
		add("accountnumber", *c.AccountNumber)
	}
	if c.ExpirationMonth != nil {
		add("expirationmonth", *c.ExpirationMonth)
	}
	if c.ExpirationYear != nil {
		add("expirationyear", *c.ExpirationYear)
	}
	if c.Status != nil {
		add("status", string(*c.Status))
	}
	if c.Gateway != nil {
		add("gateway", *c.Gateway)
	}
	if c.PaymentTransactionID != nil {
		add("payment_transaction_id", *c.PaymentTransactionID)
	}
	if c.SubscriptionTransactionID != nil {
		add("subscription_transaction_id", *c.SubscriptionTransactionID)
	}
	if c.FailureCode != nil {
		add("failure_code", *c.FailureCode)
	}
	if c.FailureMessage != nil {
		add("failure_message", *c.FailureMessage)
	}
	if c.FailureAt != nil {
		add("failure_at", *c.FailureAt)
	}
	if c.RefundAmount != nil {
		add("refund_amount", *c.RefundAmount)
	}
	if c.RefundReason != nil {
		add("refund_reason", *c.RefundReason)
	}
	if c.RefundedAt != nil {
		add("refunded_at", *c.RefundedAt)
	}
	if c.DiscountCode != nil {
		add("discount_code", *c.DiscountCode)
	}
	if c.DiscountAmount != nil {
		add("discount_amount", *c.DiscountAmount)
	}
	if c.TrialDays != nil {
		add("trial_days", *c.TrialDays)
	}
	if c.TrialAmount != nil {
		add("trial_amount", *c.TrialAmount)
	}
	if c.RecurringDiscountType != nil {
		add("recurring_discount_type", *c.RecurringDiscountType)
	}
	if c.RecurringDiscountAmount != nil {
		add("recurring_discount_amount", *c.RecurringDiscountAmount)
	}
	if c.FirstPaymentOnly != nil {
		add("first_payment_only", *c.FirstPaymentOnly)
	}
	if c.Notes != nil {
		add("notes", *c.Notes)
	}
	return sets, args
}

func (r *orderRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Order, error) {
	return r.findOne(ctx, tx, `o.id = $1`, id)
}

func (r *orderRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Order, error) {
	if code == "" {
		return nil, domain.ErrInvalidArgument
	}
	return r.findOne(ctx, tx, `o.code = $1`, code)
}

func (r *orderRepo) FindByPaymentTransactionID(ctx context.Context, tx repository.Tx, txnID string) (*model.Order, error) {
	if txnID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return r.findOne(ctx, tx, `o.payment_transaction_id = $1 ORDER BY o.id DESC LIMIT 1`, txnID)
}

func (r *orderRepo) FindLastBySubscriptionID(ctx context.Context, tx repository.Tx, subscriptionID string) (*model.Order, error) {
	if subscriptionID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return r.findOne(ctx, tx, `o.subscription_transaction_id = $1 ORDER BY o.id DESC LIMIT 1`, subscriptionID)
}

func (r *orderRepo) findOne(ctx context.Context, tx repository.Tx, where string, args ...any) (*model.Order, error) {
	q := `SELECT` + orderColumns + ` FROM orders o WHERE ` + where + lockClause(tx)
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	var o model.Order
	if err := row.Scan(orderScanTargets(&o)...); err != nil {
		return nil, mapScanErr(err)
	}
	return &o, nil
}

func (r *orderRepo) FindByUser(ctx context.Context, tx repository.Tx, userID int64, f model.OrderFilter) ([]*model.Order, error) {
	where := []string{"o.user_id = $1"}
	args := []any{userID}
	if f.MembershipID > 0 {
		args = append(args, f.MembershipID)
		where = append(where, fmt.Sprintf("o.membership_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("o.status = $%d", len(args)))
	}
	if f.Gateway != "" {
		args = append(args, f.Gateway)
		where = append(where, fmt.Sprintf("o.gateway = $%d", len(args)))
	}
	q := `SELECT` + orderColumns + ` FROM orders o WHERE ` + strings.Join(where, " AND ") + ` ORDER BY o.id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(orderScanTargets(&o)...); err != nil {
			return nil, mapScanErr(err)
		}
		out = append(out, &o)
	}
	return out, mapErr(rows.Err())
}

func (r *orderRepo) CodeExists(ctx context.Context, tx repository.Tx, code string) (bool, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT EXISTS(SELECT 1 FROM orders WHERE code = $1)`, code)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}

func (r *orderRepo) GetWithRelations(ctx context.Context, tx repository.Tx, id int64) (*model.OrderWithRelations, error) {
	q := `SELECT` + orderRelationColumns + orderRelationJoins + ` WHERE o.id = $1`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var o model.OrderWithRelations
	if err := row.Scan(orderRelationTargets(&o)...); err != nil {
		return nil, mapScanErr(err)
	}
	return &o, nil
}

func (r *orderRepo) GetManyWithRelations(ctx context.Context, tx repository.Tx, ids []int64) ([]*model.OrderWithRelations, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT` + orderRelationColumns + orderRelationJoins + ` WHERE o.id = ANY($1) ORDER BY o.id DESC`
	return r.listRelations(ctx, tx, q, ids)
}

// orderSortColumns whitelists the admin listing sort keys.
var orderSortColumns = map[string]string{
	"code":      "o.code",
	"total":     "o.total",
	"status":    "o.status",
	"timestamp": "o.created_at",
}

func (r *orderRepo) Paginate(ctx context.Context, tx repository.Tx, oq model.OrderQuery) (*model.OrderPage, error) {
	where := []string{"TRUE"}
	var args []any
	if s := strings.TrimSpace(oq.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(o.code ILIKE $%d OR o.payment_transaction_id ILIKE $%d OR o.subscription_transaction_id ILIKE $%d OR u.user_login ILIKE $%d OR u.user_email ILIKE $%d)",
			n, n, n, n, n))
	}
	if oq.Status != "" {
		args = append(args, string(oq.Status))
		where = append(where, fmt.Sprintf("o.status = $%d", len(args)))
	}
	if oq.Gateway != "" {
		args = append(args, oq.Gateway)
		where = append(where, fmt.Sprintf("o.gateway = $%d", len(args)))
	}
	if oq.LevelID > 0 {
		args = append(args, oq.LevelID)
		where = append(where, fmt.Sprintf("o.membership_id = $%d", len(args)))
	}
	whereSQL := " WHERE " + strings.Join(where, " AND ")

	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*)`+orderRelationJoins+whereSQL, args...)
	if err != nil {
		return nil, err
	}
	var total int
	if err := row.Scan(&total); err != nil {
		return nil, mapScanErr(err)
	}

	sortCol, ok := orderSortColumns[oq.OrderBy]
	if !ok {
		sortCol = "o.created_at"
	}
	dir := "ASC"
	if oq.Desc || oq.OrderBy == "" {
		dir = "DESC"
	}
	perPage := oq.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := oq.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	q := fmt.Sprintf(`SELECT%s%s%s ORDER BY %s %s, o.id %s LIMIT $%d OFFSET $%d`,
		orderRelationColumns, orderRelationJoins, whereSQL, sortCol, dir, dir, len(args)-1, len(args))

	items, err := r.listRelations(ctx, tx, q, args...)
	if err != nil {
		return nil, err
	}
	return &model.OrderPage{Items: items, Total: total}, nil
}

func (r *orderRepo) listRelations(ctx context.Context, tx repository.Tx, q string, args ...any) ([]*model.OrderWithRelations, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.OrderWithRelations
	for rows.Next() {
		var o model.OrderWithRelations
		if err := rows.Scan(orderRelationTargets(&o)...); err != nil {
			return nil, mapScanErr(err)
		}
		out = append(out, &o)
	}
	return out, mapErr(rows.Err())
}

func (r *orderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id int64, status model.OrderStatus, notes string) error {
	c := model.OrderChanges{Status: &status}
	if notes != "" {
		c.Notes = &notes
	}
	return r.Update(ctx, tx, id, c)
}

func (r *orderRepo) UpdateNotes(ctx context.Context, tx repository.Tx, id int64, notes string) error {
	return r.Update(ctx, tx, id, model.OrderChanges{Notes: &notes})
}

func (r *orderRepo) RecordRefund(ctx context.Context, tx repository.Tx, id int64, amount decimal.Decimal, reason string, refundedAt time.Time) error {
	status := model.OrderStatusRefunded
	return r.Update(ctx, tx, id, model.OrderChanges{
		Status:       &status,
		RefundAmount: &amount,
		RefundReason: &reason,
		RefundedAt:   &refundedAt,
	})
}

func (r *orderRepo) Delete(ctx context.Context, tx repository.Tx, id int64) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func orderScanTargets(o *model.Order) []any {
	return []any{
		&o.ID, &o.Code, &o.UserID, &o.MembershipID,
		&o.BillingName, &o.BillingStreet, &o.BillingCity, &o.BillingState, &o.BillingZip, &o.BillingCountry, &o.BillingPhone,
		&o.Subtotal, &o.Tax, &o.Total,
		&o.PaymentType, &o.CardType, &o.AccountNumber, &o.ExpirationMonth, &o.ExpirationYear,
		&o.Status, &o.Gateway, &o.GatewayEnvironment, &o.PaymentTransactionID, &o.SubscriptionTransactionID,
		&o.FailureCode, &o.FailureMessage, &o.FailureAt,
		&o.RefundAmount, &o.RefundReason, &o.RefundedAt,
		&o.DiscountCode, &o.DiscountAmount, &o.TrialDays, &o.TrialAmount,
		&o.RecurringDiscountType, &o.RecurringDiscountAmount, &o.FirstPaymentOnly,
		&o.Notes, &o.Timestamp, &o.UpdatedAt,
	}
}

func orderRelationTargets(o *model.OrderWithRelations) []any {
	return append(orderScanTargets(&o.Order), &o.UserLogin, &o.UserEmail, &o.DisplayName, &o.LevelName)
}
