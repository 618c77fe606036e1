package mail

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"khm-membership/internal/config"
	"khm-membership/internal/domain"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/adapter"
)

var _ adapter.MailerFactory = (*Factory)(nil)

// Factory picks the mailer for the delivery settings in effect.
type Factory struct {
	relayHost   string
	relayPort   int
	timeout     time.Duration
	client      *http.Client
	sendGridURL string
	mailgunURL  string
}

type Option func(*Factory)

// WithAPIBaseURLs overrides the provider endpoints.
func WithAPIBaseURLs(sendGrid, mailgun string) Option {
	return func(f *Factory) { f.sendGridURL, f.mailgunURL = sendGrid, mailgun }
}

func WithHTTPClient(c *http.Client) Option {
	return func(f *Factory) { f.client = c }
}

func NewFactory(cfg config.EmailConfig, opts ...Option) *Factory {
	f := &Factory{
		relayHost: cfg.RelayHost,
		relayPort: cfg.RelayPort,
		timeout:   cfg.SendTimeout,
		client:    &http.Client{Timeout: cfg.SendTimeout},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *Factory) For(s model.EmailSettings) (adapter.Mailer, error) {
	switch s.Delivery.Method {
	case model.DeliveryDefault, "":
		return NewRelayMailer(f.relayHost, f.relayPort, f.timeout), nil
	case model.DeliverySMTP:
		return NewSMTPMailer(s.SMTP, f.timeout)
	case model.DeliveryAPI:
		if s.API.APIKey == "" {
			return nil, fmt.Errorf("api key: %w", domain.ErrDeliveryNotConfigured)
		}
		switch s.API.Provider {
		case model.APIProviderSendGrid:
			return NewSendGridMailer(s.API.APIKey, f.sendGridURL, f.client), nil
		case model.APIProviderMailgun:
			if s.API.Domain == "" {
				return nil, fmt.Errorf("mailgun domain: %w", domain.ErrDeliveryNotConfigured)
			}
			return NewMailgunMailer(s.API.APIKey, s.API.Domain, f.mailgunURL, f.client), nil
		}
		return nil, fmt.Errorf("api provider %q: %w", s.API.Provider, domain.ErrDeliveryNotConfigured)
	}
	return nil, fmt.Errorf("delivery method %q: %w", s.Delivery.Method, domain.ErrDeliveryNotConfigured)
}

// NewMessageID returns "<ULID@host>" where host is taken from the sender address.
func NewMessageID(fromEmail string) string {
	host := "localhost"
	if i := strings.LastIndex(fromEmail, "@"); i >= 0 && i+1 < len(fromEmail) {
		host = fromEmail[i+1:]
	}
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader)
	return fmt.Sprintf("<%s@%s>", id.String(), host)
}
