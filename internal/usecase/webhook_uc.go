package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/adapter"
	"khm-membership/internal/domain/ports/repository"
	"khm-membership/internal/infra/logging"
	"khm-membership/internal/infra/metrics"
)

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

const (
	MsgWebhookNotConfigured = "Stripe webhook is not configured (missing secret)."
	MsgInvalidSignature     = "Invalid Stripe webhook signature."
	MsgMalformedEvent       = "Invalid Stripe webhook payload."
)

// Stripe event types handled by the reconciler.
const (
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
	EventInvoiceFinalized        = "invoice.finalized"
	EventInvoiceUpdated          = "invoice.updated"
	EventChargeFailed            = "charge.failed"
	EventChargeRefunded          = "charge.refunded"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventSubscriptionCanceled    = "customer.subscription.canceled"
	EventSubscriptionUpdated     = "customer.subscription.updated"
)

// WebhookUseCase reconciles Stripe webhook deliveries into orders and memberships.
type WebhookUseCase interface {
	HandleStripe(ctx context.Context, payload []byte, header http.Header) (*model.WebhookResult, error)
}

type WebhookConfig struct {
	Secret      string
	Environment string // production | sandbox
}

type webhookUC struct {
	tm          repository.TransactionManager
	idem        repository.IdempotencyStore
	orders      repository.OrderRepository
	orderUC     OrderUseCase
	memberships repository.MembershipRepository
	users       repository.UserRepository
	levels      repository.LevelRepository
	verifier    adapter.WebhookVerifier
	notifier    BillingNotifier
	cfg         WebhookConfig
	now         func() time.Time
	log         *zerolog.Logger
}

func NewWebhookUseCase(
	tm repository.TransactionManager,
	idem repository.IdempotencyStore,
	orders repository.OrderRepository,
	orderUC OrderUseCase,
	memberships repository.MembershipRepository,
	users repository.UserRepository,
	levels repository.LevelRepository,
	verifier adapter.WebhookVerifier,
	notifier BillingNotifier,
	cfg WebhookConfig,
	logger *zerolog.Logger,
) *webhookUC {
	if cfg.Environment == "" {
		cfg.Environment = model.GatewayEnvProduction
	}
	l := logger.With().Str("component", "webhook_uc").Logger()
	return &webhookUC{
		tm:          tm,
		idem:        idem,
		orders:      orders,
		orderUC:     orderUC,
		memberships: memberships,
		users:       users,
		levels:      levels,
		verifier:    verifier,
		notifier:    notifier,
		cfg:         cfg,
		now:         time.Now,
		log:         &l,
	}
}

// HandleStripe verifies, deduplicates and applies one Stripe event.
func (u *webhookUC) HandleStripe(ctx context.Context, payload []byte, header http.Header) (*model.WebhookResult, error) {
	defer logging.TraceDuration(u.log, "WebhookUC.HandleStripe")()
	start := time.Now()

	if u.cfg.Secret == "" {
		metrics.IncWebhookEvent("unknown", "not_configured")
		return nil, domain.NewPublicError(MsgWebhookNotConfigured, domain.ErrWebhookNotConfigured)
	}
	if err := u.verifier.Verify(payload, header, u.cfg.Secret); err != nil {
		metrics.IncWebhookEvent("unknown", "invalid_signature")
		u.log.Warn().Err(err).Msg("rejected webhook with invalid signature")
		return nil, domain.NewPublicError(MsgInvalidSignature, errors.Join(domain.ErrInvalidSignature, err))
	}

	var evt model.StripeEvent
	if err := json.Unmarshal(payload, &evt); err != nil || evt.ID == "" || evt.Type == "" {
		metrics.IncWebhookEvent("unknown", "malformed")
		return nil, domain.NewPublicError(MsgMalformedEvent, errors.Join(domain.ErrMalformedEvent, err))
	}
	defer func() { metrics.ObserveWebhook(evt.Type, time.Since(start)) }()

	ctx = logging.WithEventID(ctx, evt.ID)
	log := logging.With(ctx, u.log)

	done, err := u.idem.HasProcessed(ctx, repository.NoTX, evt.ID)
	if err != nil {
		metrics.IncWebhookEvent(evt.Type, "error")
		return nil, err
	}
	if done {
		metrics.IncWebhookEvent(evt.Type, "duplicate")
		log.Info().Str("type", evt.Type).Msg("duplicate webhook event ignored")
		return &model.WebhookResult{OK: true, Status: model.WebhookStatusDuplicate, ID: evt.ID, Type: evt.Type}, nil
	}

	var (
		notice    *BillingNotice
		duplicate bool
	)
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// Concurrent deliveries of one event serialize here; the loser sees it processed.
		if err := u.tm.AdvisoryLock(ctx, tx, "stripe_event:"+evt.ID); err != nil {
			return err
		}
		done, err := u.idem.HasProcessed(ctx, tx, evt.ID)
		if err != nil {
			return err
		}
		if done {
			duplicate = true
			return nil
		}
		notice, err = u.dispatch(ctx, tx, &evt)
		if err != nil {
			return err
		}
		return u.idem.MarkProcessed(ctx, tx, evt.ID, model.GatewayStripe, map[string]any{"type": evt.Type})
	})
	if err != nil {
		metrics.IncWebhookEvent(evt.Type, "error")
		log.Error().Err(err).Str("type", evt.Type).Msg("webhook processing failed")
		return nil, err
	}
	if duplicate {
		metrics.IncWebhookEvent(evt.Type, "duplicate")
		return &model.WebhookResult{OK: true, Status: model.WebhookStatusDuplicate, ID: evt.ID, Type: evt.Type}, nil
	}

	metrics.IncWebhookEvent(evt.Type, "processed")
	log.Info().Str("type", evt.Type).Msg("webhook processed")

	if notice != nil && u.notifier != nil {
		if err := u.notifier.Notify(ctx, *notice); err != nil {
			log.Warn().Err(err).Str("kind", string(notice.Kind)).Msg("billing notification not sent")
		}
	}
	return &model.WebhookResult{OK: true, Status: model.WebhookStatusProcessed, ID: evt.ID, Type: evt.Type}, nil
}

func (u *webhookUC) dispatch(ctx context.Context, tx repository.Tx, evt *model.StripeEvent) (*BillingNotice, error) {
	switch evt.Type {
	case EventInvoicePaymentSucceeded:
		var in model.StripeInvoice
		if err := decodeObject(evt, &in); err != nil {
			return nil, err
		}
		return u.onInvoicePaid(ctx, tx, &in)
	case EventInvoicePaymentFailed:
		var in model.StripeInvoice
		if err := decodeObject(evt, &in); err != nil {
			return nil, err
		}
		return u.onInvoiceFailed(ctx, tx, &in)
	case EventInvoiceFinalized, EventInvoiceUpdated:
		var in model.StripeInvoice
		if err := decodeObject(evt, &in); err != nil {
			return nil, err
		}
		return nil, u.onInvoiceDiscount(ctx, tx, &in)
	case EventChargeFailed:
		var ch model.StripeCharge
		if err := decodeObject(evt, &ch); err != nil {
			return nil, err
		}
		return nil, u.onChargeFailed(ctx, tx, &ch)
	case EventChargeRefunded:
		var ch model.StripeCharge
		if err := decodeObject(evt, &ch); err != nil {
			return nil, err
		}
		return u.onChargeRefunded(ctx, tx, &ch)
	case EventSubscriptionDeleted, EventSubscriptionCanceled:
		var sub model.StripeSubscription
		if err := decodeObject(evt, &sub); err != nil {
			return nil, err
		}
		return u.onSubscriptionDeleted(ctx, tx, &sub)
	case EventSubscriptionUpdated:
		var sub model.StripeSubscription
		if err := decodeObject(evt, &sub); err != nil {
			return nil, err
		}
		return nil, u.onSubscriptionUpdated(ctx, tx, &sub)
	}
	u.log.Debug().Str("type", evt.Type).Msg("unhandled event type acknowledged")
	return nil, nil
}

func decodeObject(evt *model.StripeEvent, dst any) error {
	if len(evt.Data.Object) == 0 {
		return domain.NewPublicError(MsgMalformedEvent, domain.ErrMalformedEvent)
	}
	if err := json.Unmarshal(evt.Data.Object, dst); err != nil {
		return domain.NewPublicError(MsgMalformedEvent, errors.Join(domain.ErrMalformedEvent, err))
	}
	return nil
}

// ---- invoice.payment_succeeded ----

func (u *webhookUC) onInvoicePaid(ctx context.Context, tx repository.Tx, in *model.StripeInvoice) (*BillingNotice, error) {
	user, err := u.resolveUser(ctx, tx, in.Metadata, in.Customer.String(), in.CustomerEmail)
	if err != nil {
		return nil, err
	}
	levelID, err := u.resolveLevel(ctx, tx, in.Metadata, in.PlanID())
	if err != nil {
		return nil, err
	}
	if user == nil || levelID == 0 {
		u.log.Warn().Str("invoice", in.ID).Msg("invoice paid for unknown user or level; skipped")
		return nil, nil
	}

	txnID := in.Charge.String()
	if txnID == "" {
		txnID = in.ID
	}
	status := model.OrderStatusSuccess
	gateway := model.GatewayStripe
	total := model.CentsToAmount(in.AmountPaid)
	notes := "Stripe invoice payment succeeded"
	c := model.OrderChanges{Status: &status, Gateway: &gateway, Total: &total, Notes: &notes}
	if sub := in.Subscription.String(); sub != "" {
		c.SubscriptionTransactionID = &sub
	}
	applyInvoiceDiscount(&c, in)

	if _, err := u.upsertOrder(ctx, tx, txnID, user.ID, levelID, c); err != nil {
		return nil, err
	}

	if _, err := u.memberships.Assign(ctx, tx, user.ID, levelID, model.AssignOptions{Status: model.MembershipStatusActive}); err != nil {
		return nil, err
	}
	metrics.IncMembershipTransition(string(model.MembershipStatusActive))

	return &BillingNotice{Kind: NoticePaymentSucceeded, UserID: user.ID, LevelID: levelID, Invoice: in}, nil
}

// ---- invoice.payment_failed ----

func (u *webhookUC) onInvoiceFailed(ctx context.Context, tx repository.Tx, in *model.StripeInvoice) (*BillingNotice, error) {
	user, err := u.resolveUser(ctx, tx, in.Metadata, in.Customer.String(), in.CustomerEmail)
	if err != nil {
		return nil, err
	}
	levelID, err := u.resolveLevel(ctx, tx, in.Metadata, in.PlanID())
	if err != nil {
		return nil, err
	}

	var code, msg string
	if e := in.LastPaymentError; e != nil {
		code = e.Code
		msg = e.Message
		if msg == "" {
			msg = e.DeclineCode
		}
	}
	status := model.OrderStatusFailed
	gateway := model.GatewayStripe
	total := model.CentsToAmount(in.AmountDue)
	now := u.now()
	notes := withReason("Stripe invoice payment failed", msg)
	c := model.OrderChanges{
		Status: &status, Gateway: &gateway, Total: &total, Notes: &notes,
		FailureCode: &code, FailureMessage: &msg, FailureAt: &now,
	}
	if sub := in.Subscription.String(); sub != "" {
		c.SubscriptionTransactionID = &sub
	}

	order, err := u.upsertOrder(ctx, tx, in.ID, userID(user), levelID, c)
	if err != nil {
		return nil, err
	}
	uid, lid := ownerOf(user, levelID, order)
	if err := u.transition(ctx, tx, uid, lid, model.MembershipStatusPastDue, func() error {
		return u.memberships.MarkPastDue(ctx, tx, uid, lid, "Stripe invoice payment failed")
	}); err != nil {
		return nil, err
	}
	if uid == 0 || lid == 0 {
		return nil, nil
	}
	return &BillingNotice{Kind: NoticePaymentFailed, UserID: uid, LevelID: lid, Invoice: in, Order: order}, nil
}

// ---- invoice.finalized / invoice.updated ----

func (u *webhookUC) onInvoiceDiscount(ctx context.Context, tx repository.Tx, in *model.StripeInvoice) error {
	sub := in.Subscription.String()
	if sub == "" {
		return nil
	}
	order, err := u.lastOrderFor(ctx, tx, sub)
	if err != nil || order == nil {
		return err
	}
	var c model.OrderChanges
	applyInvoiceDiscount(&c, in)
	if c.IsEmpty() {
		return nil
	}
	return u.orders.Update(ctx, tx, order.ID, c)
}

// ---- charge.failed ----

func (u *webhookUC) onChargeFailed(ctx context.Context, tx repository.Tx, ch *model.StripeCharge) error {
	email := ch.ReceiptEmail
	if ch.BillingDetails != nil && ch.BillingDetails.Email != "" {
		email = ch.BillingDetails.Email
	}
	user, err := u.resolveUser(ctx, tx, ch.Metadata, ch.Customer.String(), email)
	if err != nil {
		return err
	}
	levelID, err := u.resolveLevel(ctx, tx, ch.Metadata, "")
	if err != nil {
		return err
	}

	msg := ch.FailureMessage
	if msg == "" && ch.Outcome != nil {
		msg = ch.Outcome.SellerMessage
	}
	code := ch.FailureCode
	status := model.OrderStatusFailed
	gateway := model.GatewayStripe
	total := model.CentsToAmount(ch.Amount)
	now := u.now()
	notes := withReason("Stripe charge failed", msg)
	c := model.OrderChanges{
		Status: &status, Gateway: &gateway, Total: &total, Notes: &notes,
		FailureCode: &code, FailureMessage: &msg, FailureAt: &now,
	}

	order, err := u.upsertOrder(ctx, tx, ch.ID, userID(user), levelID, c)
	if err != nil {
		return err
	}
	uid, lid := ownerOf(user, levelID, order)
	return u.transition(ctx, tx, uid, lid, model.MembershipStatusPastDue, func() error {
		return u.memberships.MarkPastDue(ctx, tx, uid, lid, "Stripe charge failed")
	})
}

// ---- charge.refunded ----

func (u *webhookUC) onChargeRefunded(ctx context.Context, tx repository.Tx, ch *model.StripeCharge) (*BillingNotice, error) {
	order, err := u.orders.FindByPaymentTransactionID(ctx, tx, ch.ID)
	if errors.Is(err, domain.ErrNotFound) {
		u.log.Info().Str("charge", ch.ID).Msg("refund for unknown charge ignored")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	status := model.OrderStatusRefunded
	amount := model.CentsToAmount(ch.AmountRefunded)
	reason := ch.RefundReason()
	refundedAt := time.Unix(ch.Created, 0).UTC()
	if ch.Created == 0 {
		refundedAt = u.now()
	}
	notes := withReason("Charge refunded at Stripe", reason)
	c := model.OrderChanges{Status: &status, RefundAmount: &amount, RefundReason: &reason, RefundedAt: &refundedAt, Notes: &notes}
	if err := u.orders.Update(ctx, tx, order.ID, c); err != nil {
		return nil, err
	}
	metrics.IncOrderReconciled(string(status))
	full := amount.GreaterThanOrEqual(order.Total)
	c.ApplyTo(order)

	// Only a full refund ends the membership.
	if full {
		if err := u.transition(ctx, tx, order.UserID, order.MembershipID, model.MembershipStatusCancelled, func() error {
			return u.memberships.Cancel(ctx, tx, order.UserID, order.MembershipID, "Stripe refund processed")
		}); err != nil {
			return nil, err
		}
	}
	return &BillingNotice{Kind: NoticeChargeRefunded, UserID: order.UserID, LevelID: order.MembershipID, Charge: ch, Order: order}, nil
}

// ---- customer.subscription.deleted ----

func (u *webhookUC) onSubscriptionDeleted(ctx context.Context, tx repository.Tx, sub *model.StripeSubscription) (*BillingNotice, error) {
	order, err := u.lastOrderFor(ctx, tx, sub.ID)
	if err != nil {
		return nil, err
	}
	user, levelID, err := u.resolveSubscriptionOwner(ctx, tx, sub, order)
	if err != nil {
		return nil, err
	}
	uid, lid := ownerOf(user, levelID, order)

	if err := u.transition(ctx, tx, uid, lid, model.MembershipStatusCancelled, func() error {
		return u.memberships.Cancel(ctx, tx, uid, lid, "Stripe subscription deleted")
	}); err != nil {
		return nil, err
	}
	if order != nil {
		if err := u.orders.UpdateStatus(ctx, tx, order.ID, model.OrderStatusCancelled, "Subscription cancelled"); err != nil {
			return nil, err
		}
		metrics.IncOrderReconciled(string(model.OrderStatusCancelled))
	}
	if uid == 0 {
		return nil, nil
	}
	return &BillingNotice{Kind: NoticeSubscriptionDeleted, UserID: uid, LevelID: lid, Subscription: sub, Order: order}, nil
}

// ---- customer.subscription.updated ----

func (u *webhookUC) onSubscriptionUpdated(ctx context.Context, tx repository.Tx, sub *model.StripeSubscription) error {
	order, err := u.lastOrderFor(ctx, tx, sub.ID)
	if err != nil {
		return err
	}
	if order != nil {
		var c model.OrderChanges
		applySubscriptionDiscount(&c, sub)
		if !c.IsEmpty() {
			if err := u.orders.Update(ctx, tx, order.ID, c); err != nil {
				return err
			}
		}
	}

	user, levelID, err := u.resolveSubscriptionOwner(ctx, tx, sub, order)
	if err != nil {
		return err
	}
	uid, lid := ownerOf(user, levelID, order)
	if uid == 0 || lid == 0 {
		return nil
	}
	if _, err := u.memberships.Find(ctx, tx, uid, lid); errors.Is(err, domain.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}

	if p := billingProfileFrom(sub); !p.IsEmpty() {
		if err := u.memberships.UpdateBillingProfile(ctx, tx, uid, lid, p); err != nil {
			return err
		}
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		if err := u.memberships.UpdateEndDate(ctx, tx, uid, lid, &end); err != nil {
			return err
		}
	}

	switch sub.Status {
	case "past_due", "unpaid":
		return u.transition(ctx, tx, uid, lid, model.MembershipStatusPastDue, func() error {
			return u.memberships.MarkPastDue(ctx, tx, uid, lid, "Stripe subscription status "+sub.Status)
		})
	case "canceled", "incomplete_expired":
		return u.transition(ctx, tx, uid, lid, model.MembershipStatusCancelled, func() error {
			return u.memberships.Cancel(ctx, tx, uid, lid, "Stripe subscription cancelled")
		})
	case "active", "trialing":
		return u.transition(ctx, tx, uid, lid, model.MembershipStatusActive, func() error {
			return u.memberships.SetStatus(ctx, tx, uid, lid, model.MembershipStatusActive, "Stripe subscription active")
		})
	}
	return nil
}

// ---- helpers ----

// upsertOrder updates the order with this payment transaction id, or creates
// it. Nothing is created without a resolved user and level; the result is then
// nil.
func (u *webhookUC) upsertOrder(ctx context.Context, tx repository.Tx, txnID string, userID, levelID int64, c model.OrderChanges) (*model.Order, error) {
	order, err := u.orders.FindByPaymentTransactionID(ctx, tx, txnID)
	switch {
	case err == nil:
		if err := u.orders.Update(ctx, tx, order.ID, c); err != nil {
			return nil, err
		}
		c.ApplyTo(order)
	case errors.Is(err, domain.ErrNotFound) && (userID == 0 || levelID == 0):
		u.log.Warn().Str("txn", txnID).Int64("user_id", userID).Int64("level_id", levelID).
			Msg("unresolved context; no order created")
		return nil, nil
	case errors.Is(err, domain.ErrNotFound):
		order = &model.Order{
			UserID:               userID,
			MembershipID:         levelID,
			GatewayEnvironment:   u.cfg.Environment,
			PaymentTransactionID: txnID,
		}
		c.ApplyTo(order)
		order.Subtotal = order.Total
		if err := u.orderUC.Create(ctx, tx, order); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	metrics.IncOrderReconciled(string(order.Status))
	return order, nil
}

func (u *webhookUC) lastOrderFor(ctx context.Context, tx repository.Tx, subscriptionID string) (*model.Order, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	o, err := u.orders.FindLastBySubscriptionID(ctx, tx, subscriptionID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return o, err
}

// transition applies a membership change when the owner is known and the
// membership exists. A missing membership is not an error.
func (u *webhookUC) transition(ctx context.Context, tx repository.Tx, uid, lid int64, target model.MembershipStatus, fn func() error) error {
	if uid == 0 || lid == 0 {
		return nil
	}
	err := fn()
	if errors.Is(err, domain.ErrNotFound) {
		u.log.Debug().Int64("user_id", uid).Int64("level_id", lid).Msg("no membership to update")
		return nil
	}
	if err == nil {
		metrics.IncMembershipTransition(string(target))
	}
	return err
}

// resolveUser tries metadata user_id, then the Stripe customer id, then the email.
func (u *webhookUC) resolveUser(ctx context.Context, tx repository.Tx, meta model.StripeMetadata, customerID, email string) (*model.User, error) {
	if id := meta.Int("user_id"); id > 0 {
		if usr, err := found(u.users.FindByID(ctx, tx, id)); usr != nil || err != nil {
			return usr, err
		}
	}
	if customerID != "" {
		if usr, err := found(u.users.FindByStripeCustomerID(ctx, tx, customerID)); usr != nil || err != nil {
			return usr, err
		}
	}
	if email != "" {
		return found(u.users.FindByEmail(ctx, tx, email))
	}
	return nil, nil
}

var trailingDigits = regexp.MustCompile(`(\d+)$`)

// resolveLevel tries metadata membership_id, then the level mapped to the
// plan id, then the plan id's trailing digits.
func (u *webhookUC) resolveLevel(ctx context.Context, tx repository.Tx, meta model.StripeMetadata, planID string) (int64, error) {
	if id := meta.Int("membership_id"); id > 0 {
		return id, nil
	}
	if planID == "" {
		return 0, nil
	}
	lvl, err := found(u.levels.FindByStripePlanID(ctx, tx, planID))
	if err != nil || lvl != nil {
		return levelID(lvl), err
	}
	if m := trailingDigits.FindStringSubmatch(planID); m != nil {
		id, _ := strconv.ParseInt(m[1], 10, 64)
		if id > 0 {
			lvl, err := found(u.levels.FindByID(ctx, tx, id))
			return levelID(lvl), err
		}
	}
	return 0, nil
}

func (u *webhookUC) resolveSubscriptionOwner(ctx context.Context, tx repository.Tx, sub *model.StripeSubscription, order *model.Order) (*model.User, int64, error) {
	user, err := u.resolveUser(ctx, tx, sub.Metadata, sub.Customer.String(), "")
	if err != nil {
		return nil, 0, err
	}
	planID, _, _, _, _ := sub.BillingPlan()
	levelID, err := u.resolveLevel(ctx, tx, sub.Metadata, planID)
	if err != nil {
		return nil, 0, err
	}
	if levelID == 0 && order != nil {
		levelID = order.MembershipID
	}
	return user, levelID, nil
}

// found turns ErrNotFound into a nil result.
func found[T any](v *T, err error) (*T, error) {
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

func levelID(l *model.Level) int64 {
	if l == nil {
		return 0
	}
	return l.ID
}

func userID(u *model.User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}

// ownerOf prefers the resolved user/level and falls back to the order's.
func ownerOf(user *model.User, levelID int64, order *model.Order) (int64, int64) {
	uid := userID(user)
	if order != nil {
		if uid == 0 {
			uid = order.UserID
		}
		if levelID == 0 {
			levelID = order.MembershipID
		}
	}
	return uid, levelID
}

func withReason(base, reason string) string {
	if reason == "" {
		return base
	}
	return base + ": " + reason
}

// applyInvoiceDiscount copies the coupon code, one-time flag and the summed
// invoice discount. Recurring fields are left to the subscription events.
func applyInvoiceDiscount(c *model.OrderChanges, in *model.StripeInvoice) {
	if coupon := in.Coupon(); coupon != nil {
		code := coupon.ID
		c.DiscountCode = &code
		if coupon.Duration == "once" {
			once := true
			c.FirstPaymentOnly = &once
		}
	}
	if amt, ok := in.TotalDiscount(); ok {
		c.DiscountAmount = &amt
	}
}

func applySubscriptionDiscount(c *model.OrderChanges, sub *model.StripeSubscription) {
	if sub.Discount != nil && sub.Discount.Coupon != nil {
		coupon := sub.Discount.Coupon
		code := coupon.ID
		c.DiscountCode = &code
		switch {
		case coupon.PercentOff != nil:
			typ := "percent"
			amt := decimal.NewFromFloat(*coupon.PercentOff)
			c.RecurringDiscountType, c.RecurringDiscountAmount = &typ, &amt
		case coupon.AmountOff != nil:
			typ := "amount"
			amt := model.CentsToAmount(*coupon.AmountOff)
			c.RecurringDiscountType, c.RecurringDiscountAmount = &typ, &amt
		}
		once := coupon.Duration == "once"
		c.FirstPaymentOnly = &once
	}
	if sub.TrialStart > 0 && sub.TrialEnd > sub.TrialStart {
		days := int((sub.TrialEnd - sub.TrialStart) / 86400)
		c.TrialDays = &days
	}
}

func billingProfileFrom(sub *model.StripeSubscription) model.BillingProfile {
	var p model.BillingProfile
	_, cents, interval, count, ok := sub.BillingPlan()
	if !ok {
		return p
	}
	if cents != nil {
		amt := model.CentsToAmount(*cents)
		p.BillingAmount = &amt
	}
	if count > 0 {
		p.CycleNumber = &count
	}
	if interval != "" {
		period := strings.ToUpper(interval[:1]) + interval[1:]
		p.CyclePeriod = &period
	}
	return p
}
