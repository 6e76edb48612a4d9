package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/nutshell/internal/core/domain"
)

// Newsletter queue statuses. A row moves pending -> processing -> one of
// the three terminal states.
const (
	NewsletterStatusPending      = "pending"
	NewsletterStatusProcessing   = "processing"
	NewsletterStatusProcessed    = "processed"
	NewsletterStatusFailed       = "failed"
	NewsletterStatusSkippedEmpty = "skipped_empty"
)

// QueuedNewsletter is one claimed row from the newsletter queue.
type QueuedNewsletter struct {
	ID           string
	MessageID    string
	Sender       string
	Subject      string
	Date         time.Time
	Text         string
	AttemptCount int
}

// QueueStat is the per-status row count of the newsletter queue.
type QueueStat struct {
	Status string
	Count  int
}

// EnqueueNewsletter inserts an inbound newsletter into the queue and
// reports whether a row was written. The message id is unique, so a
// redelivered newsletter is dropped and reported as not inserted.
func (db *DB) EnqueueNewsletter(ctx context.Context, n *domain.RawNewsletter) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		INSERT INTO newsletters (message_id, sender, subject, email_date, body)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (message_id) DO NOTHING
	`, n.MessageID, sanitizeUTF8(n.Sender), sanitizeUTF8(n.Subject), toTimestamptz(n.Date), sanitizeUTF8(n.Text))
	if err != nil {
		return false, fmt.Errorf("enqueue newsletter: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ClaimNextNewsletter picks the oldest pending newsletter, marks it
// processing and increments its attempt count. Rows locked by a
// concurrent worker are skipped.
func (db *DB) ClaimNextNewsletter(ctx context.Context) (*QueuedNewsletter, error) {
	var (
		n         QueuedNewsletter
		id        uuid.UUID
		emailDate pgtype.Timestamptz
	)

	err := db.Pool.QueryRow(ctx, `
		WITH picked AS (
			SELECT id
			FROM newsletters
			WHERE status = $1
			ORDER BY received_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE newsletters n
		SET status = $2,
			attempt_count = n.attempt_count + 1,
			updated_at = now()
		FROM picked
		WHERE n.id = picked.id
		RETURNING n.id, n.message_id, n.sender, n.subject, n.email_date, n.body, n.attempt_count
	`, NewsletterStatusPending, NewsletterStatusProcessing).Scan(
		&id, &n.MessageID, &n.Sender, &n.Subject, &emailDate, &n.Text, &n.AttemptCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // nil,nil indicates an empty queue
		}

		return nil, fmt.Errorf("claim next newsletter: %w", err)
	}

	n.ID = id.String()
	n.Date = fromTimestamptz(emailDate)

	return &n, nil
}

// UpdateNewsletterStatus records the terminal status of a claimed
// newsletter together with an optional error message.
func (db *DB) UpdateNewsletterStatus(ctx context.Context, id, status, errMsg string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE newsletters
		SET status = $2,
			error_message = $3,
			updated_at = now()
		WHERE id = $1
	`, toUUID(id), status, toText(errMsg))
	if err != nil {
		return fmt.Errorf("update newsletter status: %w", err)
	}

	return nil
}

// ReclaimStuckNewsletters requeues processing rows whose worker died
// mid-flight. Rows untouched for longer than olderThan go back to pending
// unless their attempt count is exhausted, in which case they are failed.
// Returns the number of rows moved.
func (db *DB) ReclaimStuckNewsletters(ctx context.Context, olderThan time.Duration, maxAttempts int) (int, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE newsletters
		SET status = CASE WHEN attempt_count >= $2 THEN $3 ELSE $4 END,
			error_message = CASE WHEN attempt_count >= $2 THEN 'processing attempts exhausted' ELSE error_message END,
			updated_at = now()
		WHERE status = $5
		  AND updated_at < now() - make_interval(secs => $1)
	`, olderThan.Seconds(), maxAttempts, NewsletterStatusFailed, NewsletterStatusPending, NewsletterStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("reclaim stuck newsletters: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// CountPendingNewsletters returns the queue backlog size.
func (db *DB) CountPendingNewsletters(ctx context.Context) (int, error) {
	var count int

	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM newsletters
		WHERE status = $1
	`, NewsletterStatusPending).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending newsletters: %w", err)
	}

	return count, nil
}

// GetNewsletterQueueStats returns the queue row counts grouped by status.
func (db *DB) GetNewsletterQueueStats(ctx context.Context) ([]QueueStat, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT status, COUNT(*)::bigint
		FROM newsletters
		GROUP BY status
		ORDER BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("get newsletter queue stats: %w", err)
	}
	defer rows.Close()

	stats := []QueueStat{}

	for rows.Next() {
		var (
			status string
			count  int64
		)

		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan newsletter queue stats: %w", err)
		}

		stats = append(stats, QueueStat{
			Status: status,
			Count:  int(count),
		})
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate newsletter queue stats: %w", rows.Err())
	}

	return stats, nil
}
