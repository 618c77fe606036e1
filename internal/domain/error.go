package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Webhooks
	ErrWebhookNotConfigured = errors.New("webhook secret is not configured")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrMalformedEvent       = errors.New("malformed webhook event")

	// Gateways
	ErrGatewayNotConfigured = errors.New("payment gateway is not configured")
	ErrUnsupportedGateway   = errors.New("unsupported gateway")
	ErrNoSubscription       = errors.New("no subscription order found")

	// Email
	ErrTemplateNotFound      = errors.New("email template not found")
	ErrDeliveryFailed        = errors.New("email delivery failed")
	ErrDeliveryNotConfigured = errors.New("email delivery method is not configured")

	// Locking / auth
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
)

// PublicError carries a message that is safe to show to the end user.
// The wrapped cause is for logs only and must never be serialized.
type PublicError struct {
	Msg string
	Err error
}

func (e *PublicError) Error() string { return e.Msg }

func (e *PublicError) Unwrap() error { return e.Err }

// NewPublicError wraps cause with a user-facing message.
func NewPublicError(msg string, cause error) *PublicError {
	return &PublicError{Msg: msg, Err: cause}
}

// PublicMessage returns the user-facing message of err, or fallback when err
// carries none.
func PublicMessage(err error, fallback string) string {
	var pe *PublicError
	if errors.As(err, &pe) && pe.Msg != "" {
		return pe.Msg
	}
	return fallback
}
