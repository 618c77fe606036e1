package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/adapter"
)

const (
	defaultSendGridURL = "https://api.sendgrid.com"
	defaultMailgunURL  = "https://api.mailgun.net"
)

var (
	_ adapter.Mailer = (*SendGridMailer)(nil)
	_ adapter.Mailer = (*MailgunMailer)(nil)
)

// SendGridMailer posts to the SendGrid v3 mail/send endpoint. Success is 202.
type SendGridMailer struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewSendGridMailer(apiKey, baseURL string, client *http.Client) *SendGridMailer {
	if baseURL == "" {
		baseURL = defaultSendGridURL
	}
	return &SendGridMailer{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (m *SendGridMailer) Method() model.DeliveryMethod { return model.DeliveryAPI }

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridRequest struct {
	Personalizations []struct {
		To []sendGridAddress `json:"to"`
	} `json:"personalizations"`
	From    sendGridAddress   `json:"from"`
	Subject string            `json:"subject"`
	Content []sendGridContent `json:"content"`
	Headers map[string]string `json:"headers,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (m *SendGridMailer) Send(ctx context.Context, env model.Envelope) error {
	body := sendGridRequest{
		From:    sendGridAddress{Email: env.FromEmail, Name: env.FromName},
		Subject: env.Subject,
		Content: []sendGridContent{{Type: "text/html", Value: env.HTMLBody}},
		Headers: withMessageID(env),
	}
	body.Personalizations = make([]struct {
		To []sendGridAddress `json:"to"`
	}, 1)
	body.Personalizations[0].To = []sendGridAddress{{Email: env.To}}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal sendgrid request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v3/mail/send", bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return do(m.client, req, "sendgrid", http.StatusAccepted)
}

// MailgunMailer posts form-encoded messages to /v3/<domain>/messages. Success is 200.
type MailgunMailer struct {
	apiKey  string
	domain  string
	baseURL string
	client  *http.Client
}

func NewMailgunMailer(apiKey, domainName, baseURL string, client *http.Client) *MailgunMailer {
	if baseURL == "" {
		baseURL = defaultMailgunURL
	}
	return &MailgunMailer{apiKey: apiKey, domain: domainName, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (m *MailgunMailer) Method() model.DeliveryMethod { return model.DeliveryAPI }

func (m *MailgunMailer) Send(ctx context.Context, env model.Envelope) error {
	form := url.Values{}
	from := env.FromEmail
	if env.FromName != "" {
		from = fmt.Sprintf("%s <%s>", env.FromName, env.FromEmail)
	}
	form.Set("from", from)
	form.Set("to", env.To)
	form.Set("subject", env.Subject)
	form.Set("html", env.HTMLBody)
	for k, v := range withMessageID(env) {
		form.Set("h:"+k, v)
	}

	endpoint := fmt.Sprintf("%s/v3/%s/messages", m.baseURL, url.PathEscape(m.domain))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth("api", m.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return do(m.client, req, "mailgun", http.StatusOK)
}

func withMessageID(env model.Envelope) map[string]string {
	h := make(map[string]string, len(env.Headers)+1)
	for k, v := range env.Headers {
		h[k] = v
	}
	h["Message-ID"] = env.MessageID
	if h["Message-ID"] == "" {
		h["Message-ID"] = NewMessageID(env.FromEmail)
	}
	return h
}

func do(client *http.Client, req *http.Request, provider string, want int) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrDeliveryFailed, provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s returned %d: %s", domain.ErrDeliveryFailed, provider, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
