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

var _ repository.EmailQueueRepository = (*emailQueueRepo)(nil)

type emailQueueRepo struct {
	pool *pgxpool.Pool
}

func NewEmailQueueRepo(pool *pgxpool.Pool) repository.EmailQueueRepository {
	return &emailQueueRepo{pool: pool}
}

func (r *emailQueueRepo) Enqueue(ctx context.Context, tx repository.Tx, e *model.QueuedEmail) (int64, error) {
	if e == nil || e.EmailLogID == 0 || e.Recipient == "" {
		return 0, domain.ErrInvalidArgument
	}
	if e.Status == "" {
		e.Status = model.EmailStatusPending
	}
	if e.NextRetry.IsZero() {
		e.NextRetry = time.Now()
	}
	headers, err := json.Marshal(nonNilHeaders(e.Headers))
	if err != nil {
		return 0, domain.ErrInvalidArgument
	}
	data, err := json.Marshal(nonNilData(e.Data))
	if err != nil {
		return 0, domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO email_queue (
  email_log_id, template_key, recipient, subject, body, headers, data,
  priority, retry_count, max_retries, status, next_retry
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING id, created_at`
	row, err := pickRow(ctx, r.pool, tx, q,
		e.EmailLogID, e.TemplateKey, e.Recipient, e.Subject, e.Body, headers, data,
		e.Priority, e.RetryCount, e.MaxRetries, string(e.Status), e.NextRetry)
	if err != nil {
		return 0, err
	}
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		return 0, mapErr(err)
	}
	return e.ID, nil
}

// FetchDue skips rows locked by a concurrent runner when called inside a transaction.
func (r *emailQueueRepo) FetchDue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.QueuedEmail, error) {
	if limit <= 0 {
		limit = 10
	}
	q := `
SELECT id, email_log_id, template_key, recipient, subject, body, headers, data,
       priority, retry_count, max_retries, status, error, next_retry, processed_at, sent_at, created_at
  FROM email_queue
 WHERE status = 'pending' AND next_retry <= $1
 ORDER BY priority DESC, next_retry ASC, id ASC
 LIMIT $2`
	if lockClause(tx) != "" {
		q += " FOR UPDATE SKIP LOCKED"
	}
	rows, err := queryRows(ctx, r.pool, tx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.QueuedEmail
	for rows.Next() {
		var (
			e             model.QueuedEmail
			headers, data []byte
		)
		if err := rows.Scan(&e.ID, &e.EmailLogID, &e.TemplateKey, &e.Recipient, &e.Subject, &e.Body, &headers, &data,
			&e.Priority, &e.RetryCount, &e.MaxRetries, &e.Status, &e.Error, &e.NextRetry, &e.ProcessedAt, &e.SentAt, &e.CreatedAt); err != nil {
			return nil, mapScanErr(err)
		}
		if len(headers) > 0 {
			if err := json.Unmarshal(headers, &e.Headers); err != nil {
				return nil, domain.ErrReadDatabaseRow
			}
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, domain.ErrReadDatabaseRow
			}
		}
		out = append(out, &e)
	}
	return out, mapErr(rows.Err())
}

func (r *emailQueueRepo) MarkProcessing(ctx context.Context, tx repository.Tx, id int64, at time.Time) error {
	return r.exec(ctx, tx, `UPDATE email_queue SET status = 'processing', processed_at = $2 WHERE id = $1`, id, at)
}

func (r *emailQueueRepo) ReclaimStale(ctx context.Context, tx repository.Tx, before time.Time) (int64, error) {
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE email_queue SET status = 'pending' WHERE status = 'processing' AND processed_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *emailQueueRepo) MarkSent(ctx context.Context, tx repository.Tx, id int64, at time.Time) error {
	return r.exec(ctx, tx, `UPDATE email_queue SET status = 'sent', sent_at = $2, error = '' WHERE id = $1`, id, at)
}

func (r *emailQueueRepo) ScheduleRetry(ctx context.Context, tx repository.Tx, id int64, retryCount int, nextRetry time.Time, errMsg string) error {
	return r.exec(ctx, tx,
		`UPDATE email_queue SET status = 'pending', retry_count = $2, next_retry = $3, error = $4 WHERE id = $1`,
		id, retryCount, nextRetry, errMsg)
}

func (r *emailQueueRepo) MarkFailed(ctx context.Context, tx repository.Tx, id int64, retryCount int, errMsg string) error {
	return r.exec(ctx, tx,
		`UPDATE email_queue SET status = 'failed', retry_count = $2, error = $3 WHERE id = $1`,
		id, retryCount, errMsg)
}

func (r *emailQueueRepo) CountPending(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM email_queue WHERE status IN ('pending', 'processing')`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, mapScanErr(err)
	}
	return n, nil
}

// DeleteOlderThan removes finished rows (sent or failed) created before cutoff.
func (r *emailQueueRepo) DeleteOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	tag, err := execSQL(ctx, r.pool, tx,
		`DELETE FROM email_queue WHERE status IN ('sent', 'failed') AND created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *emailQueueRepo) exec(ctx context.Context, tx repository.Tx, q string, args ...any) error {
	tag, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func nonNilHeaders(h map[string]string) map[string]string {
	if h == nil {
		return map[string]string{}
	}
	return h
}
