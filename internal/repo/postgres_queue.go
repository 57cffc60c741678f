package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/luisf-nog/h2link-mailer/internal/model"
)

type PostgresQueueRepo struct {
	db *sql.DB
}

func NewPostgresQueueRepo(db *sql.DB) *PostgresQueueRepo {
	return &PostgresQueueRepo{db: db}
}

const queueColumns = `id, user_id, job_id, manual_job_id, status, sent_at,
       last_error, last_attempt_at, processing_started_at, created_at`

func (r *PostgresQueueRepo) PendingForUser(ctx context.Context, userID string, limit int, ids []string) ([]model.QueueItem, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	args := []any{userID}
	var b strings.Builder
	fmt.Fprintf(&b, `
		SELECT %s
		FROM my_queue
		WHERE user_id = $1 AND status = 'pending'`, queueColumns)

	if len(ids) > 0 {
		ph := make([]string, len(ids))
		for i, id := range ids {
			args = append(args, id)
			ph[i] = fmt.Sprintf("$%d", len(args))
		}
		fmt.Fprintf(&b, " AND id IN (%s)", strings.Join(ph, ", "))
	}

	args = append(args, limit)
	fmt.Fprintf(&b, `
		ORDER BY created_at ASC
		LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *PostgresQueueRepo) FirstPendingID(ctx context.Context, userID string) (string, bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id
		FROM my_queue
		WHERE user_id = $1 AND status = 'pending'
		ORDER BY created_at ASC
		LIMIT 1
	`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// Claim is a single conditional update: whoever flips pending → processing
// first owns the item, everyone else sees zero rows affected.
func (r *PostgresQueueRepo) Claim(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE my_queue
		SET status = 'processing',
		    processing_started_at = now(),
		    last_attempt_at = now(),
		    last_error = NULL
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresQueueRepo) MarkSent(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE my_queue
		SET status = 'sent',
		    sent_at = now(),
		    last_error = NULL
		WHERE id = $1
	`, id)
	return err
}

func (r *PostgresQueueRepo) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE my_queue
		SET status = 'failed',
		    last_error = $2,
		    last_attempt_at = now()
		WHERE id = $1
	`, id, reason)
	return err
}

func (r *PostgresQueueRepo) PauseAllPending(ctx context.Context, userID, reason string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE my_queue
		SET status = 'paused',
		    last_error = $2
		WHERE user_id = $1 AND status = 'pending'
	`, userID, reason)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresQueueRepo) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := r.db.ExecContext(ctx, `
		UPDATE my_queue
		SET status = 'pending',
		    processing_started_at = NULL
		WHERE status = 'processing' AND processing_started_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanQueueItem(rows *sql.Rows) (model.QueueItem, error) {
	var item model.QueueItem
	var status string
	var jobID, manualJobID, lastErr sql.NullString
	var sentAt, lastAttemptAt, processingStartedAt sql.NullTime

	if err := rows.Scan(
		&item.ID,
		&item.UserID,
		&jobID,
		&manualJobID,
		&status,
		&sentAt,
		&lastErr,
		&lastAttemptAt,
		&processingStartedAt,
		&item.CreatedAt,
	); err != nil {
		return model.QueueItem{}, err
	}

	item.Status = model.Status(status)
	if jobID.Valid {
		s := jobID.String
		item.JobID = &s
	}
	if manualJobID.Valid {
		s := manualJobID.String
		item.ManualJobID = &s
	}
	if lastErr.Valid {
		s := lastErr.String
		item.LastError = &s
	}
	if sentAt.Valid {
		t := sentAt.Time
		item.SentAt = &t
	}
	if lastAttemptAt.Valid {
		t := lastAttemptAt.Time
		item.LastAttemptAt = &t
	}
	if processingStartedAt.Valid {
		t := processingStartedAt.Time
		item.ProcessingStartedAt = &t
	}
	return item, nil
}
