package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AFixt/meetabl-api/internal/domain"
)

// SaveFunc persists one notification's state transition inside the batch
// transaction handed out by WithDueBatch.
type SaveFunc func(n domain.Notification) error

type NotificationRepository interface {
	CreateBatch(ctx context.Context, ns []domain.Notification) ([]domain.Notification, error)
	GetByID(ctx context.Context, id int64) (*domain.Notification, error)
	ListByBooking(ctx context.Context, bookingID int64) ([]domain.Notification, error)
	Update(ctx context.Context, n domain.Notification) (*domain.Notification, error)
	FailPendingForBooking(ctx context.Context, bookingID int64, msg string) (int64, error)

	// WithDueBatch claims due pending notifications with row-level locks and
	// runs fn over the batch within the claiming transaction. Rows locked by
	// a concurrent sweep are skipped, so a notification is never delivered
	// twice.
	WithDueBatch(ctx context.Context, now time.Time, limit int, fn func(ctx context.Context, batch []domain.Notification, save SaveFunc) error) error
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

const notificationCols = `id, booking_id, type, channel, recipient, status,
scheduled_for, attempt_count, error_message, sent_at, created_at, updated_at`

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(
		&n.ID, &n.BookingID, &n.Type, &n.Channel, &n.Recipient, &n.Status,
		&n.ScheduledFor, &n.AttemptCount, &n.ErrorMessage, &n.SentAt,
		&n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepository) CreateBatch(ctx context.Context, ns []domain.Notification) ([]domain.Notification, error) {
	if len(ns) == 0 {
		return nil, nil
	}

	const q = `INSERT INTO notifications (
		booking_id, type, channel, recipient, status, scheduled_for, attempt_count, error_message
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	RETURNING ` + notificationCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	created := make([]domain.Notification, 0, len(ns))
	for _, n := range ns {
		row, err := scanNotification(tx.QueryRow(ctx, q,
			n.BookingID, n.Type, n.Channel, n.Recipient, n.Status,
			n.ScheduledFor.UTC(), n.AttemptCount, n.ErrorMessage,
		))
		if err != nil {
			return nil, err
		}
		created = append(created, *row)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

func (r *notificationRepository) GetByID(ctx context.Context, id int64) (*domain.Notification, error) {
	const q = `SELECT ` + notificationCols + ` FROM notifications WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	n, err := scanNotification(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return n, err
}

func (r *notificationRepository) ListByBooking(ctx context.Context, bookingID int64) ([]domain.Notification, error) {
	const q = `SELECT ` + notificationCols + ` FROM notifications
		WHERE booking_id=$1 ORDER BY scheduled_for, id`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ns []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		ns = append(ns, *n)
	}
	return ns, rows.Err()
}

const updateNotificationQ = `UPDATE notifications SET
	status = $2,
	attempt_count = $3,
	error_message = $4,
	sent_at = $5,
	updated_at = now()
WHERE id = $1
RETURNING ` + notificationCols

func (r *notificationRepository) Update(ctx context.Context, n domain.Notification) (*domain.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	updated, err := scanNotification(r.pool.QueryRow(ctx, updateNotificationQ,
		n.ID, n.Status, n.AttemptCount, n.ErrorMessage, n.SentAt,
	))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return updated, err
}

func (r *notificationRepository) FailPendingForBooking(ctx context.Context, bookingID int64, msg string) (int64, error) {
	const q = `UPDATE notifications SET
		status = 'failed',
		error_message = $2,
		updated_at = now()
	WHERE booking_id = $1 AND status = 'pending'`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, bookingID, msg)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func (r *notificationRepository) WithDueBatch(ctx context.Context, now time.Time, limit int, fn func(ctx context.Context, batch []domain.Notification, save SaveFunc) error) error {
	if limit <= 0 {
		limit = 100
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return classify("sweep.begin", err)
	}
	defer tx.Rollback(ctx)

	const claimQ = `SELECT ` + notificationCols + ` FROM notifications
		WHERE status = 'pending' AND scheduled_for <= $1
		ORDER BY scheduled_for
		LIMIT $2
		FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, claimQ, now.UTC(), limit)
	if err != nil {
		return classify("sweep.claim", err)
	}

	var batch []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			rows.Close()
			return err
		}
		batch = append(batch, *n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return classify("sweep.claim", err)
	}

	const saveQ = `UPDATE notifications SET
		status = $2,
		attempt_count = $3,
		error_message = $4,
		sent_at = $5,
		updated_at = now()
	WHERE id = $1`

	save := func(n domain.Notification) error {
		_, err := tx.Exec(ctx, saveQ, n.ID, n.Status, n.AttemptCount, n.ErrorMessage, n.SentAt)
		return err
	}

	if err := fn(ctx, batch, save); err != nil {
		return err
	}

	return classify("sweep.commit", tx.Commit(ctx))
}
