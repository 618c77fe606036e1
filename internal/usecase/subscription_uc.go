package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/adapter"
	"khm-membership/internal/domain/ports/repository"
	"khm-membership/internal/infra/logging"
	"khm-membership/internal/infra/metrics"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

const (
	ReasonUserImmediateCancel = "User-initiated immediate cancel"
	ReasonUserPause           = "User-initiated pause"
	ReasonUserResume          = "User-initiated resume"

	subscriptionOrderScan = 50
)

// SubscriptionUseCase lets members manage their Stripe subscription.
// Every method returns a user-facing message; errors are domain.PublicError.
type SubscriptionUseCase interface {
	Cancel(ctx context.Context, userID, levelID int64, atPeriodEnd bool) (string, error)
	Reactivate(ctx context.Context, userID, levelID int64) (string, error)
	Pause(ctx context.Context, userID, levelID int64, resumeAt *time.Time) (string, error)
	Resume(ctx context.Context, userID, levelID int64) (string, error)
}

type subscriptionUC struct {
	tm          repository.TransactionManager
	orders      repository.OrderRepository
	memberships repository.MembershipRepository
	gateway     adapter.StripeGateway // nil when Stripe is not configured
	tr          Translator
	log         *zerolog.Logger
}

func NewSubscriptionUseCase(
	tm repository.TransactionManager,
	orders repository.OrderRepository,
	memberships repository.MembershipRepository,
	gateway adapter.StripeGateway,
	tr Translator,
	logger *zerolog.Logger,
) *subscriptionUC {
	l := logger.With().Str("component", "subscription_uc").Logger()
	return &subscriptionUC{
		tm:          tm,
		orders:      orders,
		memberships: memberships,
		gateway:     gateway,
		tr:          tr,
		log:         &l,
	}
}

// subscriptionOrder finds the most recent order of the membership that is
// linked to a gateway subscription.
func subscriptionOrder(ctx context.Context, orders repository.OrderRepository, userID, levelID int64) (*model.Order, error) {
	list, err := orders.FindByUser(ctx, repository.NoTX, userID, model.OrderFilter{MembershipID: levelID, Limit: subscriptionOrderScan})
	if err != nil {
		return nil, err
	}
	for _, o := range list {
		if o.HasSubscription() {
			return o, nil
		}
	}
	return nil, domain.ErrNoSubscription
}

// resolve runs the shared lookup and gateway checks. notFoundKey is the
// catalogue key reported when no subscription order exists.
func (u *subscriptionUC) resolve(ctx context.Context, userID, levelID int64, notFoundKey string) (*model.Order, error) {
	o, err := subscriptionOrder(ctx, u.orders, userID, levelID)
	if errors.Is(err, domain.ErrNoSubscription) {
		return nil, domain.NewPublicError(u.tr.T(notFoundKey), err)
	}
	if err != nil {
		return nil, err
	}
	if o.Gateway != model.GatewayStripe {
		return nil, domain.NewPublicError(u.tr.T("subscription.unsupported_gateway"), domain.ErrUnsupportedGateway)
	}
	if u.gateway == nil {
		return nil, domain.NewPublicError(u.tr.T("subscription.gateway_missing"), domain.ErrGatewayNotConfigured)
	}
	return o, nil
}

func (u *subscriptionUC) Cancel(ctx context.Context, userID, levelID int64, atPeriodEnd bool) (string, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Cancel")()
	log := logging.With(ctx, u.log)

	o, err := u.resolve(ctx, userID, levelID, "subscription.not_found")
	if err != nil {
		return "", err
	}
	if err := u.gateway.CancelSubscription(ctx, o.SubscriptionTransactionID, atPeriodEnd); err != nil {
		log.Error().Err(err).Str("subscription", o.SubscriptionTransactionID).Msg("gateway cancel failed")
		return "", u.gatewayError(err, "subscription.cancel_failed")
	}
	if atPeriodEnd {
		log.Info().Int64("user_id", userID).Int64("level_id", levelID).Msg("subscription set to cancel at period end")
		return u.tr.T("subscription.cancel_at_period_end"), nil
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		err := u.memberships.Cancel(ctx, tx, userID, levelID, ReasonUserImmediateCancel)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return u.orders.UpdateStatus(ctx, tx, o.ID, model.OrderStatusCancelled, ReasonUserImmediateCancel)
	})
	if err != nil {
		return "", err
	}
	metrics.IncMembershipTransition(string(model.MembershipStatusCancelled))
	log.Info().Int64("user_id", userID).Int64("level_id", levelID).Msg("subscription cancelled immediately")
	return u.tr.T("subscription.cancelled"), nil
}

func (u *subscriptionUC) Reactivate(ctx context.Context, userID, levelID int64) (string, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Reactivate")()

	o, err := u.resolve(ctx, userID, levelID, "subscription.reactivate_not_found")
	if err != nil {
		return "", err
	}
	keep := false
	if err := u.gateway.UpdateSubscription(ctx, o.SubscriptionTransactionID, adapter.SubscriptionUpdate{CancelAtPeriodEnd: &keep}); err != nil {
		u.log.Error().Err(err).Str("subscription", o.SubscriptionTransactionID).Msg("gateway reactivate failed")
		return "", u.gatewayError(err, "subscription.reactivate_failed")
	}
	return u.tr.T("subscription.reactivated"), nil
}

func (u *subscriptionUC) Pause(ctx context.Context, userID, levelID int64, resumeAt *time.Time) (string, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Pause")()

	o, err := u.resolve(ctx, userID, levelID, "subscription.not_found")
	if err != nil {
		return "", err
	}
	upd := adapter.SubscriptionUpdate{
		PauseCollection: &adapter.PauseCollection{Behavior: "mark_uncollectible", ResumesAt: resumeAt},
	}
	if err := u.gateway.UpdateSubscription(ctx, o.SubscriptionTransactionID, upd); err != nil {
		u.log.Error().Err(err).Str("subscription", o.SubscriptionTransactionID).Msg("gateway pause failed")
		return "", u.gatewayError(err, "subscription.pause_failed")
	}
	if err := u.memberships.Pause(ctx, repository.NoTX, userID, levelID, ReasonUserPause); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	metrics.IncMembershipTransition(string(model.MembershipStatusPaused))
	return u.tr.T("subscription.paused"), nil
}

func (u *subscriptionUC) Resume(ctx context.Context, userID, levelID int64) (string, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Resume")()

	o, err := u.resolve(ctx, userID, levelID, "subscription.not_found")
	if err != nil {
		return "", err
	}
	if err := u.gateway.UpdateSubscription(ctx, o.SubscriptionTransactionID, adapter.SubscriptionUpdate{ClearPauseCollection: true}); err != nil {
		u.log.Error().Err(err).Str("subscription", o.SubscriptionTransactionID).Msg("gateway resume failed")
		return "", u.gatewayError(err, "subscription.resume_failed")
	}
	if err := u.memberships.Resume(ctx, repository.NoTX, userID, levelID, ReasonUserResume); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	metrics.IncMembershipTransition(string(model.MembershipStatusActive))
	return u.tr.T("subscription.resumed"), nil
}

// gatewayError keeps the gateway's own message when it has one.
func (u *subscriptionUC) gatewayError(err error, fallbackKey string) error {
	return domain.NewPublicError(domain.PublicMessage(err, u.tr.T(fallbackKey)), err)
}
