package model

import "time"

// ProcessedEvent is an idempotency record for a gateway webhook event.
type ProcessedEvent struct {
	EventID     string
	Gateway     string
	Metadata    map[string]any
	ProcessedAt time.Time
}

// WebhookStatus is the outcome reported back to the gateway.
type WebhookStatus string

const (
	WebhookStatusProcessed WebhookStatus = "processed"
	WebhookStatusDuplicate WebhookStatus = "duplicate"
)

// WebhookResult is the body returned for an accepted webhook delivery.
type WebhookResult struct {
	OK     bool          `json:"ok"`
	Status WebhookStatus `json:"status"`
	ID     string        `json:"id"`
	Type   string        `json:"type"`
}
