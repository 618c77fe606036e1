package adapter

import (
	"context"
	"time"

	"khm-membership/internal/domain/model"
)

// Mailer delivers one rendered email.
type Mailer interface {
	Method() model.DeliveryMethod
	Send(ctx context.Context, env model.Envelope) error
}

// MailerFactory builds the mailer for the current delivery settings.
type MailerFactory interface {
	For(settings model.EmailSettings) (Mailer, error)
}

// TemplateSource loads raw email templates and their default subjects.
type TemplateSource interface {
	// Load returns the template body for key; domain.ErrTemplateNotFound if none exists.
	Load(key string) (string, error)
	// Subject returns the localized default subject for key.
	Subject(key string) (string, bool)
}

// Locker is a cross-process mutex keyed by name.
type Locker interface {
	// TryLock returns domain.ErrLockNotAcquired if the key is held.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
