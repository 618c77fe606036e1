package adapter

import (
	"context"
	"net/http"
	"time"
)

// WebhookVerifier checks a webhook payload against its signature headers.
type WebhookVerifier interface {
	Verify(payload []byte, header http.Header, secret string) error
}

// GatewaySubscription is the part of a gateway subscription the services need.
type GatewaySubscription struct {
	ID         string
	CustomerID string
	Status     string
}

// PauseCollection pauses invoice collection for a subscription.
type PauseCollection struct {
	Behavior  string // mark_uncollectible | keep_as_draft | void
	ResumesAt *time.Time
}

// SubscriptionUpdate describes a subscription mutation. Zero fields are not sent.
type SubscriptionUpdate struct {
	CancelAtPeriodEnd    *bool
	DefaultPaymentMethod string
	PauseCollection      *PauseCollection
	ClearPauseCollection bool
}

type SetupIntentParams struct {
	CustomerID         string
	Usage              string
	PaymentMethodTypes []string
	Metadata           map[string]string
}

type SetupIntent struct {
	ID           string
	ClientSecret string
}

type PaymentMethod struct {
	ID       string
	Brand    string
	Last4    string
	ExpMonth int
	ExpYear  int
}

// StripeGateway is the port for subscription and payment-method calls against Stripe.
// Errors may carry a user-facing message (domain.PublicError).
type StripeGateway interface {
	PublishableKey() string

	RetrieveSubscription(ctx context.Context, subscriptionID string) (*GatewaySubscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) error
	UpdateSubscription(ctx context.Context, subscriptionID string, upd SubscriptionUpdate) error

	CreateSetupIntent(ctx context.Context, p SetupIntentParams) (*SetupIntent, error)
	AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error
	SetCustomerDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	RetrievePaymentMethod(ctx context.Context, paymentMethodID string) (*PaymentMethod, error)
}
