package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/ports/adapter"
	"khm-membership/internal/infra/metrics"
)

var _ adapter.StripeGateway = (*StripeGateway)(nil)

// StripeGateway implements adapter.StripeGateway on top of the stripe-go client.
type StripeGateway struct {
	api            *client.API
	publishableKey string
	log            *zerolog.Logger
}

// NewStripeGateway creates a gateway for secretKey. backends may be nil to
// use the default Stripe endpoints.
func NewStripeGateway(secretKey, publishableKey string, backends *stripe.Backends, logger *zerolog.Logger) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, backends)
	l := logger.With().Str("component", "stripe_gateway").Logger()
	return &StripeGateway{api: api, publishableKey: publishableKey, log: &l}
}

// NewBackends points every Stripe backend at baseURL (stripe-mock or tests).
func NewBackends(baseURL string) *stripe.Backends {
	cfg := &stripe.BackendConfig{
		URL:               stripe.String(baseURL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	b := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
	return &stripe.Backends{API: b, Connect: b, Uploads: b}
}

func (g *StripeGateway) PublishableKey() string { return g.publishableKey }

func (g *StripeGateway) RetrieveSubscription(ctx context.Context, subscriptionID string) (*adapter.GatewaySubscription, error) {
	p := &stripe.SubscriptionParams{}
	p.Context = ctx
	sub, err := g.api.Subscriptions.Get(subscriptionID, p)
	metrics.IncGatewayCall("subscription_get", err)
	if err != nil {
		return nil, g.wrap("retrieve subscription", err)
	}
	out := &adapter.GatewaySubscription{ID: sub.ID, Status: string(sub.Status)}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	return out, nil
}

// CancelSubscription cancels now, or flags cancel_at_period_end when atPeriodEnd is set.
func (g *StripeGateway) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) error {
	if atPeriodEnd {
		p := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
		p.Context = ctx
		_, err := g.api.Subscriptions.Update(subscriptionID, p)
		metrics.IncGatewayCall("subscription_cancel", err)
		return g.wrap("cancel subscription", err)
	}
	p := &stripe.SubscriptionCancelParams{}
	p.Context = ctx
	_, err := g.api.Subscriptions.Cancel(subscriptionID, p)
	metrics.IncGatewayCall("subscription_cancel", err)
	return g.wrap("cancel subscription", err)
}

func (g *StripeGateway) UpdateSubscription(ctx context.Context, subscriptionID string, upd adapter.SubscriptionUpdate) error {
	p := &stripe.SubscriptionParams{}
	p.Context = ctx
	if upd.CancelAtPeriodEnd != nil {
		p.CancelAtPeriodEnd = stripe.Bool(*upd.CancelAtPeriodEnd)
	}
	if upd.DefaultPaymentMethod != "" {
		p.DefaultPaymentMethod = stripe.String(upd.DefaultPaymentMethod)
	}
	if pc := upd.PauseCollection; pc != nil {
		p.PauseCollection = &stripe.SubscriptionPauseCollectionParams{Behavior: stripe.String(pc.Behavior)}
		if pc.ResumesAt != nil {
			p.PauseCollection.ResumesAt = stripe.Int64(pc.ResumesAt.Unix())
		}
	}
	if upd.ClearPauseCollection {
		// An empty value unsets pause_collection.
		p.AddExtra("pause_collection", "")
	}
	_, err := g.api.Subscriptions.Update(subscriptionID, p)
	metrics.IncGatewayCall("subscription_update", err)
	return g.wrap("update subscription", err)
}

func (g *StripeGateway) CreateSetupIntent(ctx context.Context, in adapter.SetupIntentParams) (*adapter.SetupIntent, error) {
	p := &stripe.SetupIntentParams{
		Customer:           stripe.String(in.CustomerID),
		Usage:              stripe.String(in.Usage),
		PaymentMethodTypes: stripe.StringSlice(in.PaymentMethodTypes),
	}
	p.Context = ctx
	for k, v := range in.Metadata {
		p.AddMetadata(k, v)
	}
	si, err := g.api.SetupIntents.New(p)
	metrics.IncGatewayCall("setup_intent_create", err)
	if err != nil {
		return nil, g.wrap("create setup intent", err)
	}
	return &adapter.SetupIntent{ID: si.ID, ClientSecret: si.ClientSecret}, nil
}

func (g *StripeGateway) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error {
	p := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
	p.Context = ctx
	_, err := g.api.PaymentMethods.Attach(paymentMethodID, p)
	metrics.IncGatewayCall("payment_method_attach", err)
	return g.wrap("attach payment method", err)
}

func (g *StripeGateway) SetCustomerDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	p := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	p.Context = ctx
	_, err := g.api.Customers.Update(customerID, p)
	metrics.IncGatewayCall("customer_update", err)
	return g.wrap("set default payment method", err)
}

func (g *StripeGateway) RetrievePaymentMethod(ctx context.Context, paymentMethodID string) (*adapter.PaymentMethod, error) {
	p := &stripe.PaymentMethodParams{}
	p.Context = ctx
	pm, err := g.api.PaymentMethods.Get(paymentMethodID, p)
	metrics.IncGatewayCall("payment_method_get", err)
	if err != nil {
		return nil, g.wrap("retrieve payment method", err)
	}
	out := &adapter.PaymentMethod{ID: pm.ID}
	if pm.Card != nil {
		out.Brand = string(pm.Card.Brand)
		out.Last4 = pm.Card.Last4
		out.ExpMonth = int(pm.Card.ExpMonth)
		out.ExpYear = int(pm.Card.ExpYear)
	}
	return out, nil
}

// wrap turns a Stripe API error into a PublicError carrying Stripe's message.
// Transport errors keep a generic cause and no public message.
func (g *StripeGateway) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	g.log.Warn().Err(err).Str("op", op).Msg("stripe call failed")
	var se *stripe.Error
	if errors.As(err, &se) && se.Msg != "" {
		return domain.NewPublicError(se.Msg, fmt.Errorf("stripe %s: %w", op, errors.Join(domain.ErrOperationFailed, err)))
	}
	return fmt.Errorf("stripe %s: %w", op, errors.Join(domain.ErrOperationFailed, err))
}

