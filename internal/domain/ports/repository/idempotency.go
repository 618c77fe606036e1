package repository

import "context"

// -----------------------------
// Webhook idempotency
// -----------------------------

// IdempotencyStore prevents a gateway event from being processed twice.
type IdempotencyStore interface {
	HasProcessed(ctx context.Context, tx Tx, eventID string) (bool, error)
	// MarkProcessed records the event. Marking an already recorded event is a no-op.
	MarkProcessed(ctx context.Context, tx Tx, eventID, gateway string, metadata map[string]any) error
}
