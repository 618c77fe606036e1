package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"khm-membership/internal/domain"
	"khm-membership/internal/infra/logging"
	"khm-membership/internal/usecase"
)

// Stripe caps event payloads well below this.
const maxWebhookBody = 1 << 20

func stripeWebhookHandler(uc usecase.WebhookUseCase, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("khm_invalid_payload", "Unable to read webhook payload.", http.StatusBadRequest))
			return
		}

		res, err := uc.HandleStripe(r.Context(), body, r.Header)
		if err != nil {
			status, code := webhookErrorStatus(err)
			if status >= http.StatusInternalServerError {
				logging.With(r.Context(), logger).Error().Err(err).Msg("stripe webhook failed")
			}
			writeJSON(w, status, errorBody(code, domain.PublicMessage(err, "Webhook processing failed."), status))
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func webhookErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrWebhookNotConfigured):
		return http.StatusInternalServerError, "khm_missing_secret"
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusBadRequest, "khm_invalid_signature"
	case errors.Is(err, domain.ErrMalformedEvent):
		return http.StatusBadRequest, "khm_invalid_payload"
	default:
		return http.StatusInternalServerError, "khm_webhook_failed"
	}
}
