package model

import "time"

type EmailStatus string

const (
	EmailStatusPending    EmailStatus = "pending"
	EmailStatusQueued     EmailStatus = "queued"
	EmailStatusProcessing EmailStatus = "processing"
	EmailStatusSent       EmailStatus = "sent"
	EmailStatusFailed     EmailStatus = "failed"
)

// DeliveryMethod selects how an email leaves the system.
type DeliveryMethod string

const (
	DeliveryDefault DeliveryMethod = "default" // local relay, no auth
	DeliverySMTP    DeliveryMethod = "smtp"
	DeliveryAPI     DeliveryMethod = "api"
)

const (
	APIProviderSendGrid = "sendgrid"
	APIProviderMailgun  = "mailgun"
)

// Message is a request to send a templated email.
type Message struct {
	TemplateKey string
	To          string
	Subject     string // optional; defaults to the template's localized subject
	FromEmail   string
	FromName    string
	Headers     map[string]string
	Data        map[string]any
}

// Envelope is a rendered email ready for delivery.
type Envelope struct {
	MessageID string
	FromEmail string
	FromName  string
	To        string
	Subject   string
	HTMLBody  string
	Headers   map[string]string
}

// EmailLog records every send attempt.
type EmailLog struct {
	ID             int64
	TemplateKey    string
	Recipient      string
	Subject        string
	DeliveryMethod DeliveryMethod
	Status         EmailStatus
	Priority       int
	Data           map[string]any
	ErrorMessage   string
	CreatedAt      time.Time
	SentAt         *time.Time
	UpdatedAt      *time.Time
}

// QueuedEmail is a row of the background delivery queue.
type QueuedEmail struct {
	ID          int64
	EmailLogID  int64
	TemplateKey string
	Recipient   string
	Subject     string
	Body        string
	Headers     map[string]string
	Data        map[string]any
	Priority    int
	RetryCount  int
	MaxRetries  int
	Status      EmailStatus
	Error       string
	NextRetry   time.Time
	ProcessedAt *time.Time
	SentAt      *time.Time
	CreatedAt   time.Time
}

// EmailStats summarizes the email log.
type EmailStats struct {
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}

// CleanupResult reports rows removed by a cleanup run.
type CleanupResult struct {
	QueueRows int64 `json:"queue_rows"`
	LogRows   int64 `json:"log_rows"`
}

// EmailSettings mirrors the khm_email_delivery / khm_email_smtp / khm_email_api option groups.
type EmailSettings struct {
	Delivery DeliverySettings `json:"delivery"`
	SMTP     SMTPSettings     `json:"smtp"`
	API      APISettings      `json:"api"`
}

type DeliverySettings struct {
	Method    DeliveryMethod `json:"method"`
	UseQueue  bool           `json:"use_queue"`
	FromEmail string         `json:"from_email"`
	FromName  string         `json:"from_name"`
}

type SMTPSettings struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Encryption string `json:"encryption"` // tls | ssl | none
	Username   string `json:"username"`
	Password   string `json:"password,omitempty"`
}

type APISettings struct {
	Provider string `json:"provider"` // sendgrid | mailgun
	APIKey   string `json:"api_key,omitempty"`
	Domain   string `json:"domain"` // mailgun only
}
