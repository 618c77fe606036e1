package payment

import (
	"errors"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76/webhook"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/ports/adapter"
)

var _ adapter.WebhookVerifier = (*StripeWebhookVerifier)(nil)

const signatureHeader = "Stripe-Signature"

// StripeWebhookVerifier checks the Stripe-Signature header (t=...,v1=...).
type StripeWebhookVerifier struct {
	tolerance time.Duration
}

func NewStripeWebhookVerifier(tolerance time.Duration) *StripeWebhookVerifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &StripeWebhookVerifier{tolerance: tolerance}
}

func (v *StripeWebhookVerifier) Verify(payload []byte, header http.Header, secret string) error {
	if secret == "" {
		return domain.ErrWebhookNotConfigured
	}
	sig := header.Get(signatureHeader)
	if sig == "" {
		return domain.ErrInvalidSignature
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, sig, secret, v.tolerance); err != nil {
		return errors.Join(domain.ErrInvalidSignature, err)
	}
	return nil
}
