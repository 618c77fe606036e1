package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/repository"
)

// Compile-time check
var _ BillingNotifier = (*billingNotifier)(nil)

type NoticeKind string

const (
	NoticePaymentSucceeded    NoticeKind = "payment_succeeded"
	NoticePaymentFailed       NoticeKind = "payment_failed"
	NoticeSubscriptionDeleted NoticeKind = "subscription_deleted"
	NoticeChargeRefunded      NoticeKind = "charge_refunded"
)

// BillingNotice is produced by a committed webhook and turned into emails.
type BillingNotice struct {
	Kind         NoticeKind
	UserID       int64
	LevelID      int64
	Invoice      *model.StripeInvoice
	Charge       *model.StripeCharge
	Subscription *model.StripeSubscription
	Order        *model.Order
}

// BillingNotifier sends the member and admin emails for a billing notice.
type BillingNotifier interface {
	Notify(ctx context.Context, n BillingNotice) error
}

// Translator formats catalogue messages (i18n.Translator).
type Translator interface {
	T(key string, args ...interface{}) string
}

type SiteInfo struct {
	Name       string
	URL        string
	AdminEmail string
	Currency   string
}

type billingNotifier struct {
	users  repository.UserRepository
	levels repository.LevelRepository
	orders repository.OrderRepository
	email  EmailUseCase
	site   SiteInfo
	tr     Translator
	now    func() time.Time
	log    *zerolog.Logger
}

func NewBillingNotifier(
	users repository.UserRepository,
	levels repository.LevelRepository,
	orders repository.OrderRepository,
	email EmailUseCase,
	site SiteInfo,
	tr Translator,
	logger *zerolog.Logger,
) *billingNotifier {
	l := logger.With().Str("component", "billing_notifier").Logger()
	return &billingNotifier{users: users, levels: levels, orders: orders, email: email, site: site, tr: tr, now: time.Now, log: &l}
}

func (b *billingNotifier) Notify(ctx context.Context, n BillingNotice) error {
	user, err := b.users.FindByID(ctx, repository.NoTX, n.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	switch n.Kind {
	case NoticePaymentSucceeded:
		if n.Invoice == nil {
			return nil
		}
		return b.paymentSucceeded(ctx, user, n)
	case NoticePaymentFailed:
		if n.Invoice == nil {
			return nil
		}
		return b.paymentFailed(ctx, user, n)
	case NoticeSubscriptionDeleted:
		return b.subscriptionDeleted(ctx, user, n)
	case NoticeChargeRefunded:
		if n.Order == nil {
			return nil
		}
		return b.chargeRefunded(ctx, user, n)
	}
	return nil
}

func (b *billingNotifier) paymentSucceeded(ctx context.Context, user *model.User, n BillingNotice) error {
	in := n.Invoice
	template := "invoice"
	if in.BillingReason == "subscription_cycle" || in.BillingReason == "subscription_threshold" {
		template = "renewal"
	}
	levelName := b.levelName(ctx, n.LevelID, b.tr.T("billing.level_fallback"))

	amount := model.CentsToAmount(in.AmountPaid)
	due := model.CentsToAmount(in.AmountDue)
	code, savings := couponSavings(in)

	data := b.baseData(user, levelName, n.LevelID)
	data["amount"] = amount.StringFixed(2)
	data["formatted_amount"] = b.price(amount)
	data["due_today"] = due.StringFixed(2)
	data["formatted_due"] = b.price(due)
	data["invoice_id"] = in.ID
	data["billing_reason"] = in.BillingReason
	data["coupon_code"] = code
	data["savings"] = savings.StringFixed(2)
	data["formatted_savings"] = b.price(savings)
	data["discount_summary"] = ""
	data["trial_summary"] = ""
	data["recurring_summary"] = ""
	data["order_url"] = ""
	if code != "" && savings.IsPositive() {
		data["discount_summary"] = b.tr.T("billing.discount_summary", code, b.price(savings))
	}
	if sub := in.Subscription.String(); sub != "" {
		if o, err := found(b.orders.FindLastBySubscriptionID(ctx, repository.NoTX, sub)); err == nil && o != nil {
			data["trial_summary"] = b.trialSummary(o)
			data["recurring_summary"] = b.recurringSummary(o)
			data["order_url"] = b.orderURL(o.ID)
		}
	}

	err := b.send(ctx, template, user.Email, b.tr.T("subject."+template, levelName), data)
	if b.site.AdminEmail != "" {
		err = errors.Join(err, b.send(ctx, template+"_admin", b.site.AdminEmail, b.tr.T("subject."+template+"_admin", displayName(user)), data))
	}
	return err
}

func (b *billingNotifier) paymentFailed(ctx context.Context, user *model.User, n BillingNotice) error {
	in := n.Invoice
	levelName := b.levelName(ctx, n.LevelID, b.tr.T("billing.level_fallback"))
	amount := model.CentsToAmount(in.AmountDue)

	var reason, code string
	if e := in.LastPaymentError; e != nil {
		reason, code = e.Message, e.Code
		if reason == "" {
			reason = e.DeclineCode
		}
	}

	data := b.baseData(user, levelName, n.LevelID)
	data["subscription_id"] = in.Subscription.String()
	data["amount"] = amount.StringFixed(2)
	data["formatted_amount"] = b.price(amount)
	data["invoice_id"] = in.ID
	data["billing_url"] = b.url("/account/")
	data["failure_reason"] = reason
	data["failure_code"] = code
	data["member_edit_url"] = b.url(fmt.Sprintf("/admin/members/%d", user.ID))
	if n.Order != nil {
		data["order_id"] = n.Order.ID
		data["order_code"] = n.Order.Code
	}

	err := b.send(ctx, "billing_failure", user.Email, b.tr.T("subject.billing_failure"), data)
	if b.site.AdminEmail != "" {
		err = errors.Join(err, b.send(ctx, "billing_failure_admin", b.site.AdminEmail, b.tr.T("subject.billing_failure_admin", displayName(user)), data))
	}
	return err
}

func (b *billingNotifier) subscriptionDeleted(ctx context.Context, user *model.User, n BillingNotice) error {
	if b.site.AdminEmail == "" {
		return nil
	}
	levelName := b.levelName(ctx, n.LevelID, b.tr.T("billing.level_unknown"))
	data := b.baseData(user, levelName, n.LevelID)
	if n.Subscription != nil {
		data["subscription_id"] = n.Subscription.ID
	} else if n.Order != nil {
		data["subscription_id"] = n.Order.SubscriptionTransactionID
	}
	return b.send(ctx, "subscription_deleted_admin", b.site.AdminEmail, b.tr.T("subject.subscription_deleted_admin", displayName(user)), data)
}

func (b *billingNotifier) chargeRefunded(ctx context.Context, user *model.User, n BillingNotice) error {
	if b.site.AdminEmail == "" {
		return nil
	}
	o := n.Order
	refund := decimal.Zero
	if o.RefundAmount.Valid {
		refund = o.RefundAmount.Decimal
	}
	data := b.baseData(user, b.levelName(ctx, o.MembershipID, b.tr.T("billing.level_fallback")), o.MembershipID)
	data["order_id"] = o.ID
	data["order_code"] = o.Code
	data["order_total"] = o.Total.StringFixed(2)
	data["formatted_total"] = b.price(o.Total)
	data["refund_amount"] = refund.StringFixed(2)
	data["formatted_refund"] = b.price(refund)
	data["charge_id"] = o.PaymentTransactionID
	if n.Charge != nil {
		data["charge_id"] = n.Charge.ID
	}
	return b.send(ctx, "charge_refunded_admin", b.site.AdminEmail, b.tr.T("subject.charge_refunded_admin", o.Code), data)
}

func (b *billingNotifier) send(ctx context.Context, template, to, subject string, data map[string]any) error {
	if to == "" {
		return nil
	}
	err := b.email.Send(ctx, model.Message{TemplateKey: template, To: to, Subject: subject, Data: data})
	if err != nil {
		b.log.Error().Err(err).Str("template", template).Msg("billing email failed")
		return fmt.Errorf("send %s: %w", template, err)
	}
	return nil
}

func (b *billingNotifier) baseData(user *model.User, levelName string, levelID int64) map[string]any {
	return map[string]any{
		"user_name":   displayName(user),
		"user_email":  user.Email,
		"user_login":  user.Login,
		"user_id":     user.ID,
		"level_name":  levelName,
		"level_id":    levelID,
		"sitename":    b.site.Name,
		"siteurl":     b.site.URL,
		"account_url": b.url("/account/"),
		"date":        b.now().UTC().Format("2006-01-02 15:04:05"),
	}
}

func (b *billingNotifier) levelName(ctx context.Context, id int64, fallback string) string {
	if id == 0 {
		return fallback
	}
	lvl, err := b.levels.FindByID(ctx, repository.NoTX, id)
	if err != nil || lvl == nil || lvl.Name == "" {
		return fallback
	}
	return lvl.Name
}

func (b *billingNotifier) trialSummary(o *model.Order) string {
	if o.TrialDays <= 0 {
		return ""
	}
	if o.TrialAmount.Valid && o.TrialAmount.Decimal.IsPositive() {
		return b.tr.T("billing.trial_paid", o.TrialDays, b.price(o.TrialAmount.Decimal))
	}
	return b.tr.T("billing.trial_free", o.TrialDays)
}

func (b *billingNotifier) recurringSummary(o *model.Order) string {
	if !o.RecurringDiscountAmount.Valid || o.FirstPaymentOnly {
		return ""
	}
	amt := o.RecurringDiscountAmount.Decimal
	switch o.RecurringDiscountType {
	case "percent":
		return b.tr.T("billing.recurring_percent", amt.String())
	case "amount":
		return b.tr.T("billing.recurring_amount", b.price(amt))
	}
	return ""
}

func (b *billingNotifier) url(path string) string {
	return strings.TrimRight(b.site.URL, "/") + path
}

func (b *billingNotifier) orderURL(id int64) string {
	return b.url(fmt.Sprintf("/admin/orders/%d", id))
}

func (b *billingNotifier) price(d decimal.Decimal) string {
	return FormatPrice(b.site.Currency, d)
}

// couponSavings returns the coupon label (name, else id) and the amount saved
// on the invoice.
func couponSavings(in *model.StripeInvoice) (string, decimal.Decimal) {
	if in.Discount == nil || in.Discount.Coupon == nil {
		if amt, ok := in.TotalDiscount(); ok {
			return "", amt
		}
		return "", decimal.Zero
	}
	c := in.Discount.Coupon
	code := c.Name
	if code == "" {
		code = c.ID
	}
	if amt, ok := in.TotalDiscount(); ok {
		return code, amt
	}
	if c.AmountOff != nil {
		return code, model.CentsToAmount(*c.AmountOff)
	}
	if c.PercentOff != nil && in.AmountSubtotal != nil {
		// subtotal cents * percent / 100, then cents to units
		pct := decimal.NewFromFloat(*c.PercentOff)
		return code, decimal.NewFromInt(*in.AmountSubtotal).Mul(pct).Div(decimal.NewFromInt(10000)).Round(2)
	}
	return code, decimal.Zero
}

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
}

// FormatPrice renders an amount with the currency symbol and thousands separators, e.g. $1,234.50.
func FormatPrice(currency string, d decimal.Decimal) string {
	cur := strings.ToUpper(currency)
	symbol, ok := currencySymbols[cur]
	if !ok {
		symbol = cur + " "
		if cur == "" {
			symbol = "$"
		}
	}
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	s := d.StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]
	var sb strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	return sign + symbol + sb.String() + frac
}

func displayName(u *model.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Login
}
