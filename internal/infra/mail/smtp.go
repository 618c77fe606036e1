package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/adapter"
)

var _ adapter.Mailer = (*SMTPMailer)(nil)

// SMTPMailer delivers through an SMTP server with go-mail. The "default"
// method is the same mailer pointed at the local relay without auth.
type SMTPMailer struct {
	method   model.DeliveryMethod
	host     string
	opts     []gomail.Option
	dialFunc func(ctx context.Context, c *gomail.Client, m *gomail.Msg) error
}

// NewSMTPMailer builds a mailer for an authenticated SMTP server.
func NewSMTPMailer(s model.SMTPSettings, timeout time.Duration) (*SMTPMailer, error) {
	if s.Host == "" {
		return nil, fmt.Errorf("smtp host: %w", domain.ErrDeliveryNotConfigured)
	}
	port := s.Port
	if port == 0 {
		port = 587
	}
	opts := []gomail.Option{gomail.WithPort(port), gomail.WithTimeout(orDefault(timeout))}
	switch s.Encryption {
	case "ssl":
		opts = append(opts, gomail.WithSSL())
	case "tls":
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}
	if s.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.Username),
			gomail.WithPassword(s.Password),
		)
	}
	return &SMTPMailer{method: model.DeliverySMTP, host: s.Host, opts: opts, dialFunc: dialAndSend}, nil
}

// NewRelayMailer builds the "default" mailer: a local MTA, no auth, opportunistic TLS.
func NewRelayMailer(host string, port int, timeout time.Duration) *SMTPMailer {
	if port == 0 {
		port = 25
	}
	opts := []gomail.Option{
		gomail.WithPort(port),
		gomail.WithTimeout(orDefault(timeout)),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	return &SMTPMailer{method: model.DeliveryDefault, host: host, opts: opts, dialFunc: dialAndSend}
}

func (m *SMTPMailer) Method() model.DeliveryMethod { return m.method }

func (m *SMTPMailer) Send(ctx context.Context, env model.Envelope) error {
	msg, err := buildMsg(env)
	if err != nil {
		return err
	}
	c, err := gomail.NewClient(m.host, m.opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := m.dialFunc(ctx, c, msg); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrDeliveryFailed, m.method, err)
	}
	return nil
}

func dialAndSend(ctx context.Context, c *gomail.Client, m *gomail.Msg) error {
	return c.DialAndSendWithContext(ctx, m)
}

func buildMsg(env model.Envelope) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	var err error
	if env.FromName != "" {
		err = msg.FromFormat(env.FromName, env.FromEmail)
	} else {
		err = msg.From(env.FromEmail)
	}
	if err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(env.To); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	msg.Subject(env.Subject)
	msg.SetBodyString(gomail.TypeTextHTML, env.HTMLBody)
	id := env.MessageID
	if id == "" {
		id = NewMessageID(env.FromEmail)
	}
	// go-mail adds the angle brackets.
	msg.SetMessageIDWithValue(strings.Trim(id, "<>"))
	for k, v := range env.Headers {
		msg.SetGenHeader(gomail.Header(k), v)
	}
	return msg, nil
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}
