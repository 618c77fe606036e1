package usecase

import (
	"context"
	"errors"
	"strconv"

	"github.com/rs/zerolog"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/adapter"
	"khm-membership/internal/domain/ports/repository"
	"khm-membership/internal/infra/logging"
)

// Compile-time check
var _ PaymentMethodUseCase = (*paymentMethodUC)(nil)

const maskedCardPrefix = "************"

// SetupIntentResult is handed to the browser to confirm a card with Stripe.js.
type SetupIntentResult struct {
	ClientSecret   string `json:"client_secret"`
	PublishableKey string `json:"publishable_key"`
}

// PaymentMethodUseCase updates the card behind a member's subscription.
type PaymentMethodUseCase interface {
	CreateSetupIntent(ctx context.Context, userID, levelID int64) (*SetupIntentResult, error)
	ApplyPaymentMethod(ctx context.Context, userID, levelID int64, paymentMethodID string) (string, error)
}

type paymentMethodUC struct {
	orders  repository.OrderRepository
	gateway adapter.StripeGateway
	tr      Translator
	log     *zerolog.Logger
}

func NewPaymentMethodUseCase(orders repository.OrderRepository, gateway adapter.StripeGateway, tr Translator, logger *zerolog.Logger) *paymentMethodUC {
	l := logger.With().Str("component", "payment_method_uc").Logger()
	return &paymentMethodUC{orders: orders, gateway: gateway, tr: tr, log: &l}
}

func (u *paymentMethodUC) resolve(ctx context.Context, userID, levelID int64) (*model.Order, error) {
	o, err := subscriptionOrder(ctx, u.orders, userID, levelID)
	if errors.Is(err, domain.ErrNoSubscription) {
		return nil, domain.NewPublicError(u.tr.T("subscription.not_found"), err)
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

func (u *paymentMethodUC) CreateSetupIntent(ctx context.Context, userID, levelID int64) (*SetupIntentResult, error) {
	defer logging.TraceDuration(u.log, "PaymentMethodUC.CreateSetupIntent")()

	o, err := u.resolve(ctx, userID, levelID)
	if err != nil {
		return nil, err
	}
	fail := func(err error) error {
		u.log.Error().Err(err).Int64("order_id", o.ID).Msg("setup intent failed")
		return domain.NewPublicError(u.tr.T("payment_method.setup_failed"), err)
	}

	sub, err := u.gateway.RetrieveSubscription(ctx, o.SubscriptionTransactionID)
	if err != nil {
		return nil, fail(err)
	}
	si, err := u.gateway.CreateSetupIntent(ctx, adapter.SetupIntentParams{
		CustomerID:         sub.CustomerID,
		Usage:              "off_session",
		PaymentMethodTypes: []string{"card"},
		Metadata: map[string]string{
			"user_id":       strconv.FormatInt(userID, 10),
			"membership_id": strconv.FormatInt(levelID, 10),
		},
	})
	if err != nil {
		return nil, fail(err)
	}
	return &SetupIntentResult{ClientSecret: si.ClientSecret, PublishableKey: u.gateway.PublishableKey()}, nil
}

// ApplyPaymentMethod makes pmID the default card of the customer and the
// subscription, then records the card on the subscription order.
func (u *paymentMethodUC) ApplyPaymentMethod(ctx context.Context, userID, levelID int64, pmID string) (string, error) {
	defer logging.TraceDuration(u.log, "PaymentMethodUC.ApplyPaymentMethod")()

	if pmID == "" {
		return "", domain.NewPublicError(u.tr.T("payment_method.update_failed"), domain.ErrInvalidArgument)
	}
	o, err := u.resolve(ctx, userID, levelID)
	if err != nil {
		return "", err
	}
	fail := func(err error) error {
		u.log.Error().Err(err).Int64("order_id", o.ID).Msg("payment method update failed")
		return domain.NewPublicError(u.tr.T("payment_method.update_failed"), err)
	}

	sub, err := u.gateway.RetrieveSubscription(ctx, o.SubscriptionTransactionID)
	if err != nil {
		return "", fail(err)
	}
	if err := u.gateway.AttachPaymentMethod(ctx, pmID, sub.CustomerID); err != nil {
		return "", fail(err)
	}
	if err := u.gateway.SetCustomerDefaultPaymentMethod(ctx, sub.CustomerID, pmID); err != nil {
		return "", fail(err)
	}
	if err := u.gateway.UpdateSubscription(ctx, o.SubscriptionTransactionID, adapter.SubscriptionUpdate{DefaultPaymentMethod: pmID}); err != nil {
		return "", fail(err)
	}
	pm, err := u.gateway.RetrievePaymentMethod(ctx, pmID)
	if err != nil {
		return "", fail(err)
	}

	account := maskedCardPrefix + pm.Last4
	changes := model.OrderChanges{
		CardType:        &pm.Brand,
		AccountNumber:   &account,
		ExpirationMonth: &pm.ExpMonth,
		ExpirationYear:  &pm.ExpYear,
	}
	if err := u.orders.Update(ctx, repository.NoTX, o.ID, changes); err != nil {
		return "", err
	}
	return u.tr.T("payment_method.updated"), nil
}
