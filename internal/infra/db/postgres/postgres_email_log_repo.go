package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/repository"
)

var _ repository.EmailLogRepository = (*emailLogRepo)(nil)

type emailLogRepo struct {
	pool *pgxpool.Pool
}

func NewEmailLogRepo(pool *pgxpool.Pool) repository.EmailLogRepository {
	return &emailLogRepo{pool: pool}
}

func (r *emailLogRepo) Create(ctx context.Context, tx repository.Tx, l *model.EmailLog) (int64, error) {
	if l == nil || l.TemplateKey == "" || l.Recipient == "" {
		return 0, domain.ErrInvalidArgument
	}
	if l.Status == "" {
		l.Status = model.EmailStatusPending
	}
	data, err := json.Marshal(nonNilData(l.Data))
	if err != nil {
		return 0, domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO email_logs (template_key, recipient, subject, delivery_method, status, priority, data, error_message, sent_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id, created_at`
	row, err := pickRow(ctx, r.pool, tx, q,
		l.TemplateKey, l.Recipient, l.Subject, string(l.DeliveryMethod), string(l.Status), l.Priority, data, l.ErrorMessage, l.SentAt)
	if err != nil {
		return 0, err
	}
	if err := row.Scan(&l.ID, &l.CreatedAt); err != nil {
		return 0, mapErr(err)
	}
	return l.ID, nil
}

// UpdateStatus stamps sent_at when the new status is sent.
func (r *emailLogRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id int64, status model.EmailStatus, errMsg string) error {
	const q = `
UPDATE email_logs
   SET status = $2,
       error_message = $3,
       sent_at = CASE WHEN $2 = 'sent' THEN NOW() ELSE sent_at END,
       updated_at = NOW()
 WHERE id = $1`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(status), errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *emailLogRepo) Stats(ctx context.Context, tx repository.Tx) (model.EmailStats, error) {
	const q = `
SELECT
  COUNT(*) FILTER (WHERE status IN ('pending', 'queued', 'processing')),
  COUNT(*) FILTER (WHERE status = 'sent'),
  COUNT(*) FILTER (WHERE status = 'failed'),
  COUNT(*)
FROM email_logs`
	var s model.EmailStats
	row, err := pickRow(ctx, r.pool, tx, q)
	if err != nil {
		return s, err
	}
	if err := row.Scan(&s.Pending, &s.Sent, &s.Failed, &s.Total); err != nil {
		return model.EmailStats{}, mapScanErr(err)
	}
	return s, nil
}

func (r *emailLogRepo) DeleteOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM email_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nonNilData(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
